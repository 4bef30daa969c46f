package alerts

import (
	"context"
	"errors"

	"fleettrack/internal/modules/trip"
)

// Multi delivers to every notifier and joins their errors.
type Multi []trip.Notifier

func (m Multi) Notify(ctx context.Context, t trip.Trip, e trip.Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, t, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
