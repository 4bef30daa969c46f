package arrival

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/geo"
	"fleettrack/internal/modules/geofence"
	"fleettrack/internal/types"
)

const metersPerDegreeLat = 111194.93

var center = types.Point{Lat: -23.5635, Lng: -46.6523}

func positionAt(metersSouth float64, at time.Time) *types.Position {
	return &types.Position{Lat: center.Lat - metersSouth/metersPerDegreeLat, Lng: center.Lng, CapturedAt: at}
}

func TestEvaluate_WalkEmitsExactlyOnce(t *testing.T) {
	g := geofence.Circle(center, 300)
	var d Detector
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

	var arrivals []float64
	firstInside := -1.0
	walk := []float64{1000, 850, 700, 560, 420, 330, 280, 210, 140, 90, 50}
	for i, m := range walk {
		pos := positionAt(m, start.Add(time.Duration(i)*30*time.Second))
		res, err := d.Evaluate(Observation{InProgress: true, Geofence: &g, Position: pos})
		require.NoError(t, err)
		require.False(t, res.Skipped)
		assert.InDelta(t, m, res.DistanceMeters, 1)
		if res.Inside && firstInside < 0 {
			firstInside = res.DistanceMeters
		}
		if res.Arrived {
			arrivals = append(arrivals, res.DistanceMeters)
		}
	}
	require.Len(t, arrivals, 1)
	assert.Equal(t, firstInside, arrivals[0])
	assert.LessOrEqual(t, arrivals[0], 300.0)
	assert.InDelta(t, 280, arrivals[0], 1)
}

func TestEvaluate_Skips(t *testing.T) {
	g := geofence.Circle(center, 300)
	pos := positionAt(10, time.Now())
	var d Detector

	tests := []struct {
		name string
		obs  Observation
	}{
		{"not in progress", Observation{InProgress: false, Geofence: &g, Position: pos}},
		{"no geofence", Observation{InProgress: true, Position: pos}},
		{"no position", Observation{InProgress: true, Geofence: &g}},
	}
	for _, tt := range tests {
		res, err := d.Evaluate(tt.obs)
		require.NoError(t, err, tt.name)
		assert.True(t, res.Skipped, tt.name)
		assert.False(t, res.Arrived, tt.name)
	}
	assert.False(t, d.emitted)
}

func TestEvaluate_MalformedGeofence(t *testing.T) {
	bad := geofence.Geofence{Kind: geofence.KindCircle, Center: center}
	var d Detector
	_, err := d.Evaluate(Observation{InProgress: true, Geofence: &bad, Position: positionAt(0, time.Now())})
	assert.ErrorIs(t, err, geofence.ErrMalformed)
	assert.False(t, d.emitted)
}

func TestRearm(t *testing.T) {
	g := geofence.Circle(center, 300)
	var d Detector
	obs := Observation{InProgress: true, Geofence: &g, Position: positionAt(20, time.Now())}

	res, err := d.Evaluate(obs)
	require.NoError(t, err)
	assert.True(t, res.Arrived)

	res, err = d.Evaluate(obs)
	require.NoError(t, err)
	assert.False(t, res.Arrived)
	assert.True(t, res.Inside)

	d.Rearm()
	res, err = d.Evaluate(obs)
	require.NoError(t, err)
	assert.True(t, res.Arrived)
}

func TestEvaluate_PolygonUsesContainment(t *testing.T) {
	square := []types.Point{
		{Lat: center.Lat - 0.001, Lng: center.Lng - 0.001},
		{Lat: center.Lat - 0.001, Lng: center.Lng + 0.001},
		{Lat: center.Lat + 0.001, Lng: center.Lng + 0.001},
		{Lat: center.Lat + 0.001, Lng: center.Lng - 0.001},
	}
	g := geofence.Polygon(square)
	var d Detector

	outside := positionAt(150, time.Now())
	res, err := d.Evaluate(Observation{InProgress: true, Geofence: &g, Position: outside})
	require.NoError(t, err)
	assert.False(t, res.Inside)
	assert.InDelta(t, geo.DistanceMeters(geo.Centroid(square), outside.Point()), res.DistanceMeters, 1e-6)

	res, err = d.Evaluate(Observation{InProgress: true, Geofence: &g, Position: positionAt(50, time.Now())})
	require.NoError(t, err)
	assert.True(t, res.Arrived)
}
