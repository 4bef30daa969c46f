package maps

import (
	"testing"

	"googlemaps.github.io/maps"

	"fleettrack/internal/types"
)

func TestEncodePathRoundTrip(t *testing.T) {
	points := []types.Point{
		{Lat: -23.59, Lng: -46.66},
		{Lat: -23.565, Lng: -46.653},
		{Lat: -23.5637, Lng: -46.6524},
	}
	enc := EncodePath(points)
	if enc == "" {
		t.Fatal("expected non-empty polyline")
	}
	decoded, err := (&maps.Polyline{Points: enc}).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), len(decoded))
	}
	for i, ll := range decoded {
		if diff := ll.Lat - points[i].Lat; diff > 1e-5 || diff < -1e-5 {
			t.Errorf("point %d lat drift: %f vs %f", i, ll.Lat, points[i].Lat)
		}
	}
}

func TestPointString(t *testing.T) {
	if got := (types.Point{Lat: -23.5635, Lng: -46.6523}).String(); got != "-23.563500,-46.652300" {
		t.Errorf("unexpected origin format %q", got)
	}
}
