// README: Tracker keeps one worker goroutine per active trip and routes positions and commands to it.
package trip

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleettrack/internal/modules/geofence"
	"fleettrack/internal/modules/route"
	"fleettrack/internal/types"
)

// GeofenceResolver derives the arrival zone for a destination; nil means unresolved.
type GeofenceResolver interface {
	Resolve(ctx context.Context, tripID types.ID, dest geofence.Destination, radiusOverride float64) *geofence.Geofence
}

// RouteSource returns the current route for a trip, reusing its cache when possible.
type RouteSource interface {
	GetRoute(ctx context.Context, tripID types.ID, origin, destination types.Point) (route.Route, error)
	Forget(ctx context.Context, tripID types.ID)
}

type Config struct {
	ArrivalTick        time.Duration
	RouteTick          time.Duration
	RouteRefreshMeters float64
	AverageSpeedKmh    float64
	// WriteTimeout bounds best-effort progress and geofence writes.
	WriteTimeout time.Duration
	InboxSize    int
}

type Tracker struct {
	svc      *Service
	store    Store
	resolver GeofenceResolver
	routes   RouteSource
	cfg      Config
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	workers  map[types.ID]*worker
	byDriver map[types.ID]map[types.ID]*worker
	closed   bool

	running sync.WaitGroup
	pending sync.WaitGroup
}

func NewTracker(svc *Service, store Store, resolver GeofenceResolver, routes RouteSource, cfg Config, log *zap.Logger) *Tracker {
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		svc:      svc,
		store:    store,
		resolver: resolver,
		routes:   routes,
		cfg:      cfg,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		workers:  make(map[types.ID]*worker),
		byDriver: make(map[types.ID]map[types.ID]*worker),
	}
}

// Track starts a worker for an active trip, or forwards the record to the
// running worker. Completed trips are ignored.
func (t *Tracker) Track(tr Trip) error {
	if tr.Status.Terminal() {
		return nil
	}
	w, started, err := t.ensure(tr)
	if err != nil || started {
		return err
	}
	if !w.offer(message{kind: msgSync, trip: tr.Clone()}) {
		t.log.Warn("trip sync dropped", zap.String("trip_id", string(tr.ID)))
	}
	return nil
}

// HandleChange applies one change-feed entry.
func (t *Tracker) HandleChange(ch Change) {
	tr := ch.Trip
	if ch.Removed {
		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.WriteTimeout)
		fresh, err := t.store.Get(ctx, tr.ID)
		cancel()
		switch {
		case errors.Is(err, ErrNotFound):
			t.stop(tr.ID)
			return
		case err != nil:
			t.log.Warn("reload of removed trip failed", zap.String("trip_id", string(tr.ID)), zap.Error(err))
			return
		}
		tr = fresh
	}
	if tr.Status.Terminal() {
		if w := t.lookup(tr.ID); w != nil {
			w.offer(message{kind: msgSync, trip: tr.Clone()})
		}
		return
	}
	if err := t.Track(tr); err != nil {
		t.log.Warn("track trip failed", zap.String("trip_id", string(tr.ID)), zap.Error(err))
	}
}

// Ingest hands a position to every active trip of the driver, or only to
// tripID when given. It returns how many trips received it.
func (t *Tracker) Ingest(_ context.Context, driverID, tripID types.ID, pos types.Position) int {
	t.mu.Lock()
	targets := make([]*worker, 0, len(t.byDriver[driverID]))
	for id, w := range t.byDriver[driverID] {
		if tripID == "" || id == tripID {
			targets = append(targets, w)
		}
	}
	t.mu.Unlock()

	delivered := 0
	for _, w := range targets {
		if w.offer(message{kind: msgPosition, pos: pos}) {
			delivered++
			continue
		}
		t.log.Warn("position dropped, trip inbox full",
			zap.String("trip_id", string(w.id)),
			zap.String("driver_id", string(driverID)))
	}
	return delivered
}

func (t *Tracker) Accept(ctx context.Context, tripID, driverID types.ID) (Trip, error) {
	return t.command(ctx, tripID, message{kind: msgAccept, actor: Actor{Type: ActorDriver, ID: string(driverID)}})
}

func (t *Tracker) ConfirmArrival(ctx context.Context, tripID, driverID types.ID) (Trip, error) {
	return t.command(ctx, tripID, message{kind: msgConfirm, actor: Actor{Type: ActorDriver, ID: string(driverID)}})
}

func (t *Tracker) ForceComplete(ctx context.Context, tripID types.ID, operatorID, reason string) (Trip, error) {
	return t.command(ctx, tripID, message{
		kind:   msgForceComplete,
		actor:  Actor{Type: ActorOperator, ID: operatorID},
		reason: reason,
	})
}

// Snapshot returns the live view of a tracked trip, or the stored record.
func (t *Tracker) Snapshot(ctx context.Context, tripID types.ID) (Trip, error) {
	if w := t.lookup(tripID); w != nil {
		r, err := w.call(ctx, message{kind: msgSnapshot})
		if err == nil {
			return r.trip, nil
		}
		if !errors.Is(err, errWorkerStopped) {
			return Trip{}, err
		}
	}
	return t.store.Get(ctx, tripID)
}

// Len reports the number of trips being tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.workers)
}

// Close stops every worker and waits for pending best-effort writes.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.cancel()
	t.running.Wait()
	t.pending.Wait()
}

// evaluate runs one arrival tick for tripID and returns the resulting view.
func (t *Tracker) evaluate(ctx context.Context, tripID types.ID) (Trip, error) {
	return t.command(ctx, tripID, message{kind: msgTick})
}

// routeCycle runs one scheduled route refresh for tripID.
func (t *Tracker) routeCycle(ctx context.Context, tripID types.ID) (Trip, error) {
	return t.command(ctx, tripID, message{kind: msgRouteTick})
}

func (t *Tracker) command(ctx context.Context, tripID types.ID, m message) (Trip, error) {
	for attempt := 0; attempt < 2; attempt++ {
		w, err := t.load(ctx, tripID)
		if err != nil {
			return Trip{}, err
		}
		r, err := w.call(ctx, m)
		if errors.Is(err, errWorkerStopped) {
			continue
		}
		if err != nil {
			return Trip{}, err
		}
		return r.trip, r.err
	}
	return Trip{}, ErrConflict
}

// load returns the worker for tripID, starting one from the stored record
// when the trip is not tracked yet.
func (t *Tracker) load(ctx context.Context, tripID types.ID) (*worker, error) {
	if w := t.lookup(tripID); w != nil {
		return w, nil
	}
	tr, err := t.store.Get(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if tr.Status.Terminal() {
		return nil, ErrInvalidState
	}
	w, _, err := t.ensure(tr)
	return w, err
}

func (t *Tracker) lookup(tripID types.ID) *worker {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.workers[tripID]
}

func (t *Tracker) ensure(tr Trip) (*worker, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, false, ErrTrackerClosed
	}
	if w, ok := t.workers[tr.ID]; ok {
		if w.indexedDriver != tr.DriverID {
			t.unindex(w)
			w.indexedDriver = tr.DriverID
			t.index(w)
		}
		return w, false, nil
	}

	w := newWorker(t, tr)
	t.workers[tr.ID] = w
	t.index(w)
	t.running.Add(1)
	go func() {
		defer t.running.Done()
		w.run()
	}()
	t.log.Info("trip tracking started",
		zap.String("trip_id", string(tr.ID)),
		zap.String("driver_id", string(tr.DriverID)),
		zap.String("status", string(tr.Status)))
	return w, true, nil
}

// remove is called by a worker as it finishes.
func (t *Tracker) remove(w *worker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.workers[w.id] == w {
		delete(t.workers, w.id)
		t.unindex(w)
	}
}

func (t *Tracker) stop(tripID types.ID) {
	t.mu.Lock()
	w, ok := t.workers[tripID]
	if ok {
		delete(t.workers, tripID)
		t.unindex(w)
	}
	t.mu.Unlock()
	if ok {
		w.cancel()
		t.forgetRoute(tripID)
	}
}

func (t *Tracker) index(w *worker) {
	set, ok := t.byDriver[w.indexedDriver]
	if !ok {
		set = make(map[types.ID]*worker)
		t.byDriver[w.indexedDriver] = set
	}
	set[w.id] = w
}

func (t *Tracker) unindex(w *worker) {
	set := t.byDriver[w.indexedDriver]
	delete(set, w.id)
	if len(set) == 0 {
		delete(t.byDriver, w.indexedDriver)
	}
}

func (t *Tracker) saveProgress(id types.ID, p Progress) {
	t.background(func(ctx context.Context) {
		if err := t.store.UpdateProgress(ctx, id, p); err != nil {
			t.log.Debug("progress write failed", zap.String("trip_id", string(id)), zap.Error(err))
		}
	})
}

func (t *Tracker) saveGeofence(id types.ID, g geofence.Geofence, key string) {
	t.background(func(ctx context.Context) {
		if err := t.store.SaveGeofence(ctx, id, g, key); err != nil {
			t.log.Warn("geofence write failed", zap.String("trip_id", string(id)), zap.Error(err))
		}
	})
}

func (t *Tracker) forgetRoute(id types.ID) {
	if t.routes == nil {
		return
	}
	t.background(func(ctx context.Context) {
		t.routes.Forget(ctx, id)
	})
}

func (t *Tracker) background(fn func(ctx context.Context)) {
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.WriteTimeout)
		defer cancel()
		fn(ctx)
	}()
}
