// README: Geofence shapes, destination references and containment checks.
package geofence

import (
	"errors"
	"fmt"
	"strings"

	"fleettrack/internal/geo"
	"fleettrack/internal/types"
)

type Kind string

const (
	KindCircle  Kind = "circle"
	KindPolygon Kind = "polygon"
)

var ErrMalformed = errors.New("malformed geofence")

// Geofence is immutable once resolved.
type Geofence struct {
	Kind         Kind          `json:"kind" firestore:"kind"`
	Center       types.Point   `json:"center" firestore:"center"`
	RadiusMeters float64       `json:"radius_meters" firestore:"radiusMeters"`
	Vertices     []types.Point `json:"vertices,omitempty" firestore:"vertices,omitempty"`
	SourceTripID types.ID      `json:"source_trip_id" firestore:"sourceTripId"`
	Source       string        `json:"source" firestore:"source"`
}

func Circle(center types.Point, radiusMeters float64) Geofence {
	return Geofence{Kind: KindCircle, Center: center, RadiusMeters: radiusMeters}
}

func Polygon(vertices []types.Point) Geofence {
	vs := append([]types.Point(nil), vertices...)
	return Geofence{Kind: KindPolygon, Center: geo.Centroid(vs), Vertices: vs}
}

func (g Geofence) Validate() error {
	switch g.Kind {
	case KindCircle:
		if !g.Center.Valid() {
			return fmt.Errorf("%w: center %s out of range", ErrMalformed, g.Center)
		}
		if g.RadiusMeters <= 0 {
			return fmt.Errorf("%w: radius %.1f", ErrMalformed, g.RadiusMeters)
		}
	case KindPolygon:
		if len(g.Vertices) < 3 {
			return fmt.Errorf("%w: polygon has %d vertices", ErrMalformed, len(g.Vertices))
		}
		for _, v := range g.Vertices {
			if !v.Valid() {
				return fmt.Errorf("%w: vertex %s out of range", ErrMalformed, v)
			}
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformed, g.Kind)
	}
	return nil
}

// Check returns the distance from p to the geofence center and whether p is
// inside. Polygons use point-in-polygon and measure distance to the centroid.
func (g Geofence) Check(p types.Point) (float64, bool, error) {
	if err := g.Validate(); err != nil {
		return 0, false, err
	}
	if g.Kind == KindPolygon {
		return geo.DistanceMeters(geo.Centroid(g.Vertices), p), geo.ContainsPoint(g.Vertices, p), nil
	}
	d := geo.DistanceMeters(g.Center, p)
	return d, d <= g.RadiusMeters, nil
}

func (g Geofence) Clone() Geofence {
	cp := g
	cp.Vertices = append([]types.Point(nil), g.Vertices...)
	return cp
}

// Destination is the trip's reference to where it ends: a known place, an
// explicit coordinate, a free-text address or maps link, or a name and city.
type Destination struct {
	PlaceID string       `json:"place_id,omitempty" firestore:"placeId,omitempty"`
	Name    string       `json:"name,omitempty" firestore:"name,omitempty"`
	City    string       `json:"city,omitempty" firestore:"city,omitempty"`
	Address string       `json:"address,omitempty" firestore:"address,omitempty"`
	Point   *types.Point `json:"point,omitempty" firestore:"point,omitempty"`
}

// Key identifies the reference; a changed key means the geofence must be re-resolved.
func (d Destination) Key() string {
	var pt string
	if d.Point != nil {
		pt = d.Point.String()
	}
	return strings.Join([]string{d.PlaceID, d.Name, d.City, d.Address, pt}, "|")
}

func (d Destination) Empty() bool {
	return d.PlaceID == "" && d.Name == "" && d.Address == "" && d.Point == nil
}

// Request carries what a strategy needs. RadiusMeters is already resolved to
// the operator override or the default.
type Request struct {
	TripID       types.ID
	Destination  Destination
	RadiusMeters float64
}
