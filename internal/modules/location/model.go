// README: Raw device updates, normalized positions and snapshot rows.
package location

import (
	"time"

	"fleettrack/internal/types"
)

// RawUpdate is the device payload as published on MQTT or sent over HTTP.
type RawUpdate struct {
	DriverID  string  `json:"driver_id"`
	TripID    string  `json:"trip_id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	SpeedUnit string  `json:"speed_unit,omitempty"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"` // unix ms
}

// Update is a validated device fix.
type Update struct {
	DriverID types.ID
	TripID   types.ID
	Position types.Position
	Accuracy float64
}

type Snapshot struct {
	DriverID   types.ID
	TripID     types.ID
	Position   types.Position
	Accuracy   float64
	RecordedAt time.Time
}
