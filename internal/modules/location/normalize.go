package location

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"fleettrack/internal/types"
)

// MaxClockSkew is how far in the future a device timestamp may be.
const MaxClockSkew = 2 * time.Minute

var ErrInvalidUpdate = errors.New("invalid location update")

// Normalize validates raw and converts it to an Update. Speed is reported
// in m/s; negative speeds are clamped to zero and km/h is converted.
func Normalize(raw RawUpdate, now time.Time) (Update, error) {
	driverID := strings.TrimSpace(raw.DriverID)
	switch {
	case driverID == "":
		return Update{}, fmt.Errorf("%w: driver_id required", ErrInvalidUpdate)
	case math.IsNaN(raw.Latitude) || raw.Latitude < -90 || raw.Latitude > 90:
		return Update{}, fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidUpdate)
	case math.IsNaN(raw.Longitude) || raw.Longitude < -180 || raw.Longitude > 180:
		return Update{}, fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidUpdate)
	case raw.Timestamp <= 0:
		return Update{}, fmt.Errorf("%w: timestamp must be positive", ErrInvalidUpdate)
	}
	captured := time.UnixMilli(raw.Timestamp).UTC()
	if captured.After(now.Add(MaxClockSkew)) {
		return Update{}, fmt.Errorf("%w: timestamp %s is in the future", ErrInvalidUpdate, captured.Format(time.RFC3339))
	}

	speed := raw.Speed
	if math.IsNaN(speed) || speed < 0 {
		speed = 0
	}
	if strings.EqualFold(raw.SpeedUnit, "kmh") || strings.EqualFold(raw.SpeedUnit, "km/h") {
		speed = speed / 3.6
	}
	accuracy := raw.Accuracy
	if accuracy < 0 {
		accuracy = 0
	}
	return Update{
		DriverID: types.ID(driverID),
		TripID:   types.ID(strings.TrimSpace(raw.TripID)),
		Position: types.Position{
			Lat:        raw.Latitude,
			Lng:        raw.Longitude,
			Speed:      speed,
			CapturedAt: captured,
		},
		Accuracy: accuracy,
	}, nil
}
