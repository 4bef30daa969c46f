// README: Shared identifiers and geographic value objects used across modules.
package types

import (
	"fmt"
	"time"
)

type ID string

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" firestore:"lat"`
	Lng float64 `json:"lng" firestore:"lng"`
}

func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Valid reports whether the point lies within latitude/longitude bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Position is a normalized device fix. Values are copied, never shared.
type Position struct {
	Lat        float64   `json:"lat" firestore:"lat"`
	Lng        float64   `json:"lng" firestore:"lng"`
	Speed      float64   `json:"speed"` // m/s
	CapturedAt time.Time `json:"captured_at"`
}

func (p Position) Point() Point {
	return Point{Lat: p.Lat, Lng: p.Lng}
}

// Newer reports whether p was captured strictly after other.
func (p Position) Newer(other Position) bool {
	return p.CapturedAt.After(other.CapturedAt)
}
