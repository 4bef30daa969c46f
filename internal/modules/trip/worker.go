package trip

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"fleettrack/internal/geo"
	"fleettrack/internal/modules/arrival"
	"fleettrack/internal/modules/geofence"
	"fleettrack/internal/modules/route"
	"fleettrack/internal/types"
)

var errWorkerStopped = errors.New("trip worker stopped")

type msgKind int

const (
	msgPosition msgKind = iota
	msgAccept
	msgConfirm
	msgForceComplete
	msgSync
	msgSnapshot
	msgTick
	msgRouteTick
)

type message struct {
	kind   msgKind
	pos    types.Position
	actor  Actor
	reason string
	trip   Trip
	reply  chan reply
}

type reply struct {
	trip Trip
	err  error
}

type routeResult struct {
	gen    int
	origin types.Point
	route  route.Route
	err    error
}

type fenceResult struct {
	gen   int
	fence *geofence.Geofence
}

// worker owns one trip. Every field below is touched only by the run
// goroutine; external callers talk to it through inbox.
type worker struct {
	id  types.ID
	t   *Tracker
	log *zap.Logger

	trip        Trip
	detector    arrival.Detector
	routeOrigin *types.Point
	fetching    bool
	resolving   bool
	destGen     int
	// routeFailed holds position-driven refreshes until the next route tick.
	routeFailed bool

	inbox        chan message
	routeResults chan routeResult
	fenceResults chan fenceResult

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// indexedDriver is guarded by Tracker.mu.
	indexedDriver types.ID
}

func newWorker(t *Tracker, tr Trip) *worker {
	ctx, cancel := context.WithCancel(t.ctx)
	tr = tr.Clone()
	if tr.Geofence != nil && tr.GeofenceKey != tr.Destination.Key() {
		tr.Geofence = nil
	}
	tr.Route = nil
	tr.LastPosition = nil
	return &worker{
		id:            tr.ID,
		t:             t,
		log:           t.log.With(zap.String("trip_id", string(tr.ID))),
		trip:          tr,
		inbox:         make(chan message, t.cfg.InboxSize),
		routeResults:  make(chan routeResult, 1),
		fenceResults:  make(chan fenceResult, 1),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		indexedDriver: tr.DriverID,
	}
}

func (w *worker) run() {
	defer close(w.done)
	defer w.cancel()

	arrivalTick := time.NewTicker(w.t.cfg.ArrivalTick)
	defer arrivalTick.Stop()
	routeTick := time.NewTicker(w.t.cfg.RouteTick)
	defer routeTick.Stop()

	if w.trip.Geofence == nil {
		w.resolveGeofence()
	}
	for {
		select {
		case <-w.ctx.Done():
			return
		case m := <-w.inbox:
			w.handle(m)
		case r := <-w.routeResults:
			w.applyRoute(r)
		case f := <-w.fenceResults:
			w.applyGeofence(f)
		case <-arrivalTick.C:
			w.evaluateArrival()
		case <-routeTick.C:
			w.routeCycle()
		}
		if w.trip.Status.Terminal() {
			w.finish()
			return
		}
	}
}

func (w *worker) handle(m message) {
	var err error
	switch m.kind {
	case msgPosition:
		w.onPosition(m.pos)
		return
	case msgSync:
		w.onSync(m.trip)
		return
	case msgAccept:
		err = w.driverTransition(m.actor, StatusAccepted)
	case msgConfirm:
		err = w.driverTransition(m.actor, StatusCompleted)
	case msgForceComplete:
		var next Trip
		next, _, err = w.t.svc.ForceComplete(w.ctx, w.trip, m.actor, m.reason)
		if err == nil {
			w.trip = next
		}
	case msgTick:
		w.evaluateArrival()
	case msgRouteTick:
		w.routeCycle()
	case msgSnapshot:
	}
	if m.reply != nil {
		m.reply <- reply{trip: w.trip.Clone(), err: err}
	}
}

func (w *worker) driverTransition(actor Actor, to Status) error {
	if actor.ID != string(w.trip.DriverID) {
		return ErrWrongDriver
	}
	return w.transition(to, actor)
}

// transition replaces the trip only after the store accepted the write.
func (w *worker) transition(to Status, actor Actor) error {
	next, _, err := w.t.svc.Apply(w.ctx, w.trip, to, actor)
	if err != nil {
		return err
	}
	w.trip = next
	return nil
}

func (w *worker) onPosition(p types.Position) {
	if last := w.trip.LastPosition; last != nil && !p.Newer(*last) {
		w.log.Debug("stale position dropped",
			zap.Time("captured_at", p.CapturedAt),
			zap.Time("latest", last.CapturedAt))
		return
	}
	w.trip.LastPosition = &p

	if w.trip.Status == StatusAccepted {
		if err := w.transition(StatusInProgress, Actor{Type: ActorSystem}); err != nil {
			w.log.Warn("start on first position failed", zap.Error(err))
		}
	}
	if w.routeFailed {
		return
	}
	if w.routeOrigin == nil || geo.DistanceMeters(*w.routeOrigin, p.Point()) > w.t.cfg.RouteRefreshMeters {
		w.refreshRoute()
	}
}

func (w *worker) evaluateArrival() {
	res, err := w.detector.Evaluate(arrival.Observation{
		InProgress: w.trip.Status == StatusInProgress,
		Geofence:   w.trip.Geofence,
		Position:   w.trip.LastPosition,
	})
	if err != nil {
		w.log.Warn("arrival evaluation failed", zap.Error(err))
		return
	}
	if res.Skipped {
		return
	}

	d := res.DistanceMeters
	eta := w.eta(d)
	w.trip.DistanceRemainingMeters = &d
	w.trip.ETASeconds = &eta
	w.t.saveProgress(w.trip.ID, Progress{DistanceRemainingMeters: d, ETASeconds: eta, UpdatedAt: time.Now()})

	if res.Arrived {
		w.arrive(d)
	}
}

func (w *worker) arrive(distance float64) {
	if w.trip.Status == StatusAwaitingConfirmation {
		return
	}
	if err := w.transition(StatusAwaitingConfirmation, Actor{Type: ActorSystem}); err != nil {
		w.detector.Rearm()
		w.log.Warn("arrival not recorded, will retry", zap.Float64("distance_m", distance), zap.Error(err))
		return
	}
	w.log.Info("arrival detected", zap.Float64("distance_m", distance))
}

// eta scales the routed duration by the remaining share of the route, or
// falls back to the average-speed estimate when no route is known.
func (w *worker) eta(distance float64) int {
	if r := w.trip.Route; r != nil && r.Usable() && r.DistanceMeters > 0 {
		share := math.Min(1, distance/r.DistanceMeters)
		return int(math.Round(float64(r.DurationSeconds) * share))
	}
	return geo.EstimatedDurationAt(distance, w.t.cfg.AverageSpeedKmh)
}

func (w *worker) routeCycle() {
	w.routeFailed = false
	if w.trip.Geofence == nil {
		w.resolveGeofence()
		return
	}
	w.refreshRoute()
}

func (w *worker) refreshRoute() {
	if w.fetching || w.t.routes == nil || w.trip.Geofence == nil || w.trip.LastPosition == nil {
		return
	}
	w.fetching = true
	id, gen := w.trip.ID, w.destGen
	origin, dest := w.trip.LastPosition.Point(), w.trip.Geofence.Center
	go func() {
		r, err := w.t.routes.GetRoute(w.ctx, id, origin, dest)
		select {
		case w.routeResults <- routeResult{gen: gen, origin: origin, route: r, err: err}:
		case <-w.ctx.Done():
		}
	}()
}

func (w *worker) applyRoute(r routeResult) {
	w.fetching = false
	if r.gen != w.destGen {
		return
	}
	if r.err != nil {
		w.routeFailed = true
		w.log.Warn("route refresh failed, keeping previous route until next route tick", zap.Error(r.err))
		return
	}
	w.routeFailed = false
	rt := r.route
	sum := rt.Summary()
	w.trip.Route = &rt
	w.trip.RouteSummary = &sum
	origin := r.origin
	w.routeOrigin = &origin
}

func (w *worker) resolveGeofence() {
	if w.resolving || w.t.resolver == nil || w.trip.Destination.Empty() {
		return
	}
	w.resolving = true
	id, gen := w.trip.ID, w.destGen
	dest, radius := w.trip.Destination, w.trip.GeofenceRadiusMeters
	go func() {
		g := w.t.resolver.Resolve(w.ctx, id, dest, radius)
		select {
		case w.fenceResults <- fenceResult{gen: gen, fence: g}:
		case <-w.ctx.Done():
		}
	}()
}

func (w *worker) applyGeofence(f fenceResult) {
	w.resolving = false
	if f.gen != w.destGen {
		w.resolveGeofence()
		return
	}
	if f.fence == nil {
		return
	}
	g := f.fence.Clone()
	w.trip.Geofence = &g
	w.trip.GeofenceKey = w.trip.Destination.Key()
	w.t.saveGeofence(w.trip.ID, g, w.trip.GeofenceKey)
	w.evaluateArrival()
	w.refreshRoute()
}

// onSync folds a change-feed record into the worker. Status changes made
// elsewhere are adopted only when they are newer than ours.
func (w *worker) onSync(in Trip) {
	if in.StatusVersion > w.trip.StatusVersion {
		w.log.Info("adopting external status change",
			zap.String("from", string(w.trip.Status)),
			zap.String("to", string(in.Status)))
		w.trip.Status = in.Status
		w.trip.StatusVersion = in.StatusVersion
		w.trip.StartedAt = clonePtr(in.StartedAt)
		w.trip.MovingAt = clonePtr(in.MovingAt)
		w.trip.ArrivedAt = clonePtr(in.ArrivedAt)
		w.trip.ConfirmedAt = clonePtr(in.ConfirmedAt)
		w.trip.CompletedAt = clonePtr(in.CompletedAt)
		w.trip.ForceCompleted = in.ForceCompleted
		w.trip.ForceReason = in.ForceReason
		w.trip.ForcedBy = in.ForcedBy
	}
	w.trip.DriverID = in.DriverID

	if in.Destination.Key() == w.trip.Destination.Key() && in.GeofenceRadiusMeters == w.trip.GeofenceRadiusMeters {
		return
	}
	w.log.Info("destination changed, re-resolving geofence")
	w.trip.Destination = in.Clone().Destination
	w.trip.GeofenceRadiusMeters = in.GeofenceRadiusMeters
	w.trip.Geofence = nil
	w.trip.GeofenceKey = ""
	w.trip.Route = nil
	w.trip.RouteSummary = nil
	w.routeOrigin = nil
	w.routeFailed = false
	w.destGen++
	if w.trip.Status == StatusInProgress {
		w.detector.Rearm()
	}
	w.t.forgetRoute(w.trip.ID)
	w.resolveGeofence()
}

func (w *worker) finish() {
	w.cancel()
	w.t.forgetRoute(w.trip.ID)
	w.t.remove(w)
	w.log.Info("trip tracking stopped", zap.String("status", string(w.trip.Status)))
}

// call sends m and waits for its reply. A reply that raced with the worker
// stopping is still returned.
func (w *worker) call(ctx context.Context, m message) (reply, error) {
	m.reply = make(chan reply, 1)
	select {
	case w.inbox <- m:
	case <-w.done:
		return reply{}, errWorkerStopped
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
	select {
	case r := <-m.reply:
		return r, nil
	case <-w.done:
		select {
		case r := <-m.reply:
			return r, nil
		default:
			return reply{}, errWorkerStopped
		}
	case <-ctx.Done():
		return reply{}, ctx.Err()
	}
}

// offer never blocks; a full inbox drops the message.
func (w *worker) offer(m message) bool {
	select {
	case w.inbox <- m:
		return true
	case <-w.done:
		return false
	default:
		return false
	}
}
