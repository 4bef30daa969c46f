// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"fleettrack/internal/types"
)

const earthRadiusMeters = 6371000.0

// DefaultAverageSpeedKmh is the fallback speed used when no routed duration exists.
const DefaultAverageSpeedKmh = 40.0

// DistanceMeters returns the haversine great-circle distance between two points.
func DistanceMeters(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	// rounding can push h marginally outside [0,1] for antipodal points
	h = math.Min(1, math.Max(0, h))
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// EstimatedDurationSeconds converts a distance into seconds at DefaultAverageSpeedKmh.
func EstimatedDurationSeconds(distanceMeters float64) int {
	return EstimatedDurationAt(distanceMeters, DefaultAverageSpeedKmh)
}

// EstimatedDurationAt is EstimatedDurationSeconds with an explicit average speed.
func EstimatedDurationAt(distanceMeters, speedKmh float64) int {
	if distanceMeters <= 0 || speedKmh <= 0 {
		return 0
	}
	return int(math.Ceil(distanceMeters * 3600 / (speedKmh * 1000)))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
