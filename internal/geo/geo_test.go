package geo

import (
	"math"
	"testing"

	"fleettrack/internal/types"
)

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantM     float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: -23.5635, Lng: -46.6523},
			b:         types.Point{Lat: -23.5635, Lng: -46.6523},
			wantM:     0,
			tolerance: 0.001,
		},
		{
			name:      "Paulista short hop (~25m)",
			a:         types.Point{Lat: -23.5637, Lng: -46.6524},
			b:         types.Point{Lat: -23.5635, Lng: -46.6523},
			wantM:     24.5,
			tolerance: 2,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantM:     3944000,
			tolerance: 50000,
		},
		{
			name:      "antipodal",
			a:         types.Point{Lat: 0, Lng: 0},
			b:         types.Point{Lat: 0, Lng: 180},
			wantM:     20015000,
			tolerance: 20015000 * 0.005,
		},
		{
			name:      "antipodal off-equator",
			a:         types.Point{Lat: -23.5635, Lng: -46.6523},
			b:         types.Point{Lat: 23.5635, Lng: 133.3477},
			wantM:     20015000,
			tolerance: 20015000 * 0.005,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if math.Abs(got-tt.wantM) > tt.tolerance {
				t.Errorf("DistanceMeters() = %f, want %f (±%f)", got, tt.wantM, tt.tolerance)
			}
			if got < 0 {
				t.Errorf("DistanceMeters() negative: %f", got)
			}
		})
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25.0, Lng: 121.0}
	b := types.Point{Lat: 26.0, Lng: 122.0}
	d1 := DistanceMeters(a, b)
	d2 := DistanceMeters(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestEstimatedDurationSeconds(t *testing.T) {
	cases := []struct {
		meters float64
		want   int
	}{
		{0, 0},
		{-10, 0},
		{40000, 3600},
		{1000, 90},
	}
	for _, tc := range cases {
		if got := EstimatedDurationSeconds(tc.meters); got != tc.want {
			t.Errorf("EstimatedDurationSeconds(%f) = %d, want %d", tc.meters, got, tc.want)
		}
	}
	if EstimatedDurationAt(1000, 0) != 0 {
		t.Errorf("zero speed should yield 0")
	}
}

func TestContainsPoint(t *testing.T) {
	square := []types.Point{
		{Lat: -23.564, Lng: -46.653},
		{Lat: -23.564, Lng: -46.651},
		{Lat: -23.562, Lng: -46.651},
		{Lat: -23.562, Lng: -46.653},
	}
	if !ContainsPoint(square, types.Point{Lat: -23.563, Lng: -46.652}) {
		t.Errorf("expected center inside square")
	}
	if ContainsPoint(square, types.Point{Lat: -23.570, Lng: -46.652}) {
		t.Errorf("expected point south of square outside")
	}
	if ContainsPoint(square[:2], types.Point{Lat: -23.563, Lng: -46.652}) {
		t.Errorf("degenerate polygon must not contain anything")
	}
	c := Centroid(square)
	if math.Abs(c.Lat+23.563) > 1e-9 || math.Abs(c.Lng+46.652) > 1e-9 {
		t.Errorf("unexpected centroid %v", c)
	}
}

func TestBucketRoundTrip(t *testing.T) {
	p := types.Point{Lat: -23.59, Lng: -46.66}
	b := Bucket(p)
	if len(b) != bucketPrecision {
		t.Fatalf("bucket %q has wrong precision", b)
	}
	if d := DistanceMeters(p, BucketCenter(b)); d > 30 {
		t.Errorf("bucket center drifted %fm from origin", d)
	}
}
