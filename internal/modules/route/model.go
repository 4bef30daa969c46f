// README: Route value, cache contract and route errors.
package route

import (
	"fmt"
	"time"

	"fleettrack/internal/geo"
	"fleettrack/internal/maps"
	"fleettrack/internal/types"
)

// Route is derived and replaceable. Points is non-empty only for a successful
// upstream computation.
type Route struct {
	Points          []types.Point `json:"points"`
	Destination     types.Point   `json:"destination"`
	DistanceMeters  float64       `json:"distance_meters"`
	DurationSeconds int           `json:"duration_seconds"`
	ComputedAt      time.Time     `json:"computed_at"`
	OriginBucket    string        `json:"origin_bucket"`
}

// Origin returns the center of the bucket the route was computed from.
func (r Route) Origin() types.Point {
	return geo.BucketCenter(r.OriginBucket)
}

// Usable reports whether the route came from a successful computation.
func (r Route) Usable() bool {
	return len(r.Points) > 0 && r.DistanceMeters >= 0
}

// Summary projects the route into the fields stored on the trip record.
func (r Route) Summary() Summary {
	return Summary{
		DistanceMeters:  r.DistanceMeters,
		DurationSeconds: r.DurationSeconds,
		Polyline:        maps.EncodePath(r.Points),
		ComputedAt:      r.ComputedAt,
	}
}

// Clone returns a copy that does not share the points slice.
func (r Route) Clone() Route {
	cp := r
	cp.Points = append([]types.Point(nil), r.Points...)
	return cp
}

// RouteError reports an upstream routing failure. The previously cached route,
// if any, is left untouched.
type RouteError struct {
	TripID types.ID
	Cause  error
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("route for trip %s: %v", e.TripID, e.Cause)
}

func (e *RouteError) Unwrap() error {
	return e.Cause
}
