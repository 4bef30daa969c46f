// README: Route fetcher with per-trip caching keyed by a coarse origin bucket.
package route

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"fleettrack/internal/geo"
	"fleettrack/internal/maps"
	"fleettrack/internal/types"
)

// destinationToleranceMeters is how far the destination may move before a
// cached route is considered stale regardless of origin.
const destinationToleranceMeters = 5.0

// Provider is the external routing collaborator.
type Provider interface {
	Directions(ctx context.Context, origin, destination types.Point) (maps.Directions, error)
}

// Summary is the dispatcher-visible projection of a route.
type Summary struct {
	DistanceMeters  float64   `firestore:"distanceMeters" json:"distance_meters"`
	DurationSeconds int       `firestore:"durationSeconds" json:"duration_seconds"`
	Polyline        string    `firestore:"polyline" json:"polyline"`
	ComputedAt      time.Time `firestore:"computedAt" json:"computed_at"`
}

// SummaryWriter persists route summaries next to the trip record.
type SummaryWriter interface {
	WriteRouteSummary(ctx context.Context, tripID types.ID, s Summary) error
}

type Config struct {
	ReuseMeters float64
	Timeout     time.Duration
}

type Service struct {
	provider  Provider
	cache     Cache
	summaries SummaryWriter
	cfg       Config
	log       *zap.Logger
	now       func() time.Time

	group   singleflight.Group
	pending sync.WaitGroup
}

func NewService(provider Provider, cache Cache, summaries SummaryWriter, cfg Config, log *zap.Logger) *Service {
	return &Service{
		provider:  provider,
		cache:     cache,
		summaries: summaries,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// GetRoute returns the cached route for tripID when origin is still within
// ReuseMeters of the cached origin bucket; otherwise it asks the provider.
// Upstream failures return *RouteError and leave the cache untouched.
func (s *Service) GetRoute(ctx context.Context, tripID types.ID, origin, destination types.Point) (Route, error) {
	if cached, ok := s.cached(ctx, tripID, origin, destination); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(string(tripID), func() (any, error) {
		// another caller may have refreshed while we waited
		if cached, ok := s.cached(ctx, tripID, origin, destination); ok {
			return cached, nil
		}
		return s.fetch(ctx, tripID, origin, destination)
	})
	if err != nil {
		return Route{}, err
	}
	return v.(Route).Clone(), nil
}

// Cached returns the last route for tripID regardless of origin.
func (s *Service) Cached(ctx context.Context, tripID types.ID) (Route, bool) {
	r, ok, err := s.cache.Get(ctx, tripID)
	if err != nil {
		s.log.Warn("route cache read failed", zap.String("trip_id", string(tripID)), zap.Error(err))
		return Route{}, false
	}
	return r, ok
}

// Forget drops the cached route, e.g. after a destination change or completion.
func (s *Service) Forget(ctx context.Context, tripID types.ID) {
	if err := s.cache.Delete(ctx, tripID); err != nil {
		s.log.Warn("route cache delete failed", zap.String("trip_id", string(tripID)), zap.Error(err))
	}
}

// Wait blocks until in-flight summary writes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}

func (s *Service) cached(ctx context.Context, tripID types.ID, origin, destination types.Point) (Route, bool) {
	r, ok := s.Cached(ctx, tripID)
	if !ok || !r.Usable() {
		return Route{}, false
	}
	if geo.DistanceMeters(r.Destination, destination) > destinationToleranceMeters {
		return Route{}, false
	}
	if geo.DistanceMeters(r.Origin(), origin) >= s.cfg.ReuseMeters {
		return Route{}, false
	}
	return r, true
}

func (s *Service) fetch(parent context.Context, tripID types.ID, origin, destination types.Point) (Route, error) {
	ctx := parent
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	d, err := s.provider.Directions(ctx, origin, destination)
	if err != nil {
		return Route{}, &RouteError{TripID: tripID, Cause: err}
	}
	if len(d.Points) == 0 {
		return Route{}, &RouteError{TripID: tripID, Cause: maps.ErrNoRoute}
	}
	if d.DistanceMeters < 0 {
		return Route{}, &RouteError{TripID: tripID, Cause: errors.New("negative route distance")}
	}

	r := Route{
		Points:          append([]types.Point(nil), d.Points...),
		Destination:     destination,
		DistanceMeters:  float64(d.DistanceMeters),
		DurationSeconds: d.DurationSeconds,
		ComputedAt:      s.now(),
		OriginBucket:    geo.Bucket(origin),
	}
	if err := s.cache.Put(ctx, tripID, r); err != nil {
		s.log.Warn("route cache write failed", zap.String("trip_id", string(tripID)), zap.Error(err))
	}
	s.writeSummary(parent, tripID, r)

	s.log.Debug("route refreshed",
		zap.String("trip_id", string(tripID)),
		zap.Float64("distance_m", r.DistanceMeters),
		zap.Int("duration_s", r.DurationSeconds),
		zap.String("origin_bucket", r.OriginBucket))
	return r, nil
}

// writeSummary is fire-and-forget so position processing never waits on it.
// It is bound to the caller's ctx: once the trip's tracking is cancelled the
// summary is no longer written.
func (s *Service) writeSummary(parent context.Context, tripID types.ID, r Route) {
	if s.summaries == nil || parent.Err() != nil {
		return
	}
	sum := r.Summary()
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		err := s.summaries.WriteRouteSummary(ctx, tripID, sum)
		switch {
		case err == nil:
		case parent.Err() != nil:
			s.log.Debug("route summary dropped, tracking stopped", zap.String("trip_id", string(tripID)))
		default:
			s.log.Warn("route summary write failed", zap.String("trip_id", string(tripID)), zap.Error(err))
		}
	}()
}
