// README: Per-trip arrival detector; emits one arrival event per trip.
package arrival

import (
	"fmt"

	"fleettrack/internal/modules/geofence"
	"fleettrack/internal/types"
)

// Observation is the trip state a tick evaluates.
type Observation struct {
	InProgress bool
	Geofence   *geofence.Geofence
	Position   *types.Position
}

type Result struct {
	Skipped        bool
	DistanceMeters float64
	Inside         bool
	// Arrived is true on the single tick that emits the arrival event.
	Arrived bool
}

// Detector is owned by one trip worker and is not safe for concurrent use.
type Detector struct {
	emitted bool
}

// Evaluate skips when the trip is not in progress, has no geofence or has no
// position yet. A malformed geofence fails only this evaluation.
func (d *Detector) Evaluate(o Observation) (Result, error) {
	if !o.InProgress || o.Geofence == nil || o.Position == nil {
		return Result{Skipped: true}, nil
	}
	dist, inside, err := o.Geofence.Check(o.Position.Point())
	if err != nil {
		return Result{}, fmt.Errorf("evaluate arrival: %w", err)
	}
	res := Result{DistanceMeters: dist, Inside: inside}
	if inside && !d.emitted {
		d.emitted = true
		res.Arrived = true
	}
	return res, nil
}

// Rearm lets the next inside tick emit again. Used when the transition the
// event triggered could not be persisted.
func (d *Detector) Rearm() {
	d.emitted = false
}
