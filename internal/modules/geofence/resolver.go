// README: Ordered geofence resolution; first strategy that yields a valid zone wins.
package geofence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fleettrack/internal/types"
)

type Resolver struct {
	strategies    []Strategy
	defaultRadius float64
	timeout       time.Duration
	log           *zap.Logger
}

func NewResolver(defaultRadius float64, timeout time.Duration, log *zap.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, defaultRadius: defaultRadius, timeout: timeout, log: log}
}

// DefaultStrategies is the production chain: authored place, explicit
// coordinates, address or link, then "name, city".
func DefaultStrategies(places PlaceLookup, addresses, names Geocoder) []Strategy {
	return []Strategy{
		AuthoredPlace{Places: places},
		ExplicitCoordinates{},
		AddressGeocode{Geocoder: addresses},
		NameCity{Geocoder: names},
	}
}

// Resolve returns nil when no strategy produced a usable geofence. Strategy
// errors are logged and the chain continues.
func (r *Resolver) Resolve(ctx context.Context, tripID types.ID, dest Destination, radiusOverride float64) *Geofence {
	req := Request{TripID: tripID, Destination: dest, RadiusMeters: r.defaultRadius}
	if radiusOverride > 0 {
		req.RadiusMeters = radiusOverride
	}
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			return nil
		}
		g, err := r.try(ctx, s, req)
		if err != nil {
			r.log.Warn("geofence strategy failed",
				zap.String("trip_id", string(tripID)),
				zap.String("strategy", s.Name()),
				zap.Error(err))
			continue
		}
		if g == nil {
			continue
		}
		if err := g.Validate(); err != nil {
			r.log.Warn("geofence strategy returned malformed zone",
				zap.String("trip_id", string(tripID)),
				zap.String("strategy", s.Name()),
				zap.Error(err))
			continue
		}
		out := g.Clone()
		out.SourceTripID = tripID
		out.Source = s.Name()
		r.log.Info("geofence resolved",
			zap.String("trip_id", string(tripID)),
			zap.String("strategy", out.Source),
			zap.String("kind", string(out.Kind)),
			zap.Float64("radius_m", out.RadiusMeters))
		return &out
	}
	r.log.Info("geofence unresolved", zap.String("trip_id", string(tripID)))
	return nil
}

func (r *Resolver) try(ctx context.Context, s Strategy, req Request) (*Geofence, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return s.Resolve(ctx, req)
}
