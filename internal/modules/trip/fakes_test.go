package trip

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleettrack/internal/geo"
	"fleettrack/internal/modules/geofence"
	"fleettrack/internal/modules/route"
	"fleettrack/internal/types"
)

type fakeStore struct {
	mu        sync.Mutex
	trips     map[types.ID]Trip
	failures  int
	failErr   error
	progress  []Progress
	geofences []geofence.Geofence
}

func newFakeStore(trips ...Trip) *fakeStore {
	s := &fakeStore{trips: make(map[types.ID]Trip)}
	for _, t := range trips {
		s.trips[t.ID] = t.Clone()
	}
	return s
}

func (s *fakeStore) Get(_ context.Context, id types.ID) (Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return Trip{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *fakeStore) ApplyTransition(_ context.Context, tr Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return s.failErr
	}
	t, ok := s.trips[tr.TripID]
	if !ok {
		return ErrNotFound
	}
	if t.Status != tr.From || t.StatusVersion != tr.FromVersion {
		return ErrConflict
	}
	s.trips[tr.TripID] = t.Apply(tr)
	return nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, id types.ID, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, p)
	t := s.trips[id]
	d, eta := p.DistanceRemainingMeters, p.ETASeconds
	t.DistanceRemainingMeters, t.ETASeconds = &d, &eta
	s.trips[id] = t
	return nil
}

func (s *fakeStore) SaveGeofence(_ context.Context, id types.ID, g geofence.Geofence, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geofences = append(s.geofences, g)
	t := s.trips[id]
	t.Geofence, t.GeofenceKey = &g, key
	s.trips[id] = t
	return nil
}

func (s *fakeStore) WriteRouteSummary(_ context.Context, id types.ID, sum route.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.trips[id]
	t.RouteSummary = &sum
	s.trips[id] = t
	return nil
}

func (s *fakeStore) failNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures, s.failErr = n, err
}

func (s *fakeStore) status(id types.ID) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trips[id].Status
}

func (s *fakeStore) put(t Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips[t.ID] = t.Clone()
}

type fakeHistory struct {
	mu     sync.Mutex
	events []Event
}

func (h *fakeHistory) Append(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *fakeHistory) List(_ context.Context, id types.ID) ([]Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events {
		if e.TripID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (h *fakeHistory) count(to Status) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.To == to {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *fakeNotifier) Notify(_ context.Context, _ Trip, e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

type fakeRoutes struct {
	mu      sync.Mutex
	calls   int
	err     error
	forgets []types.ID
}

func (f *fakeRoutes) GetRoute(_ context.Context, _ types.ID, origin, destination types.Point) (route.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return route.Route{}, &route.RouteError{Cause: f.err}
	}
	d := geo.DistanceMeters(origin, destination) * 1.3
	return route.Route{
		Points:          []types.Point{origin, destination},
		Destination:     destination,
		DistanceMeters:  d,
		DurationSeconds: geo.EstimatedDurationSeconds(d),
		ComputedAt:      time.Now(),
		OriginBucket:    geo.Bucket(origin),
	}, nil
}

func (f *fakeRoutes) Forget(_ context.Context, id types.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgets = append(f.forgets, id)
}

func (f *fakeRoutes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRoutes) forgot(id types.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.forgets {
		if x == id {
			return true
		}
	}
	return false
}

func (f *fakeRoutes) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type harness struct {
	store   *fakeStore
	history *fakeHistory
	notes   *fakeNotifier
	routes  *fakeRoutes
	svc     *Service
	tracker *Tracker
}

func newHarness(t *testing.T, trips ...Trip) *harness {
	t.Helper()
	h := &harness{
		store:   newFakeStore(trips...),
		history: &fakeHistory{},
		notes:   &fakeNotifier{},
		routes:  &fakeRoutes{},
	}
	log := zap.NewNop()
	h.svc = NewService(h.store, h.history, h.notes, time.Second, log)
	resolver := geofence.NewResolver(300, time.Second, log, geofence.ExplicitCoordinates{})
	h.tracker = NewTracker(h.svc, h.store, resolver, h.routes, Config{
		ArrivalTick:        time.Hour,
		RouteTick:          time.Hour,
		RouteRefreshMeters: 500,
		AverageSpeedKmh:    40,
		WriteTimeout:       time.Second,
	}, log)
	t.Cleanup(func() {
		h.tracker.Close()
		h.svc.Wait()
	})
	return h
}

func (h *harness) track(t *testing.T, id types.ID) {
	t.Helper()
	tr, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, h.tracker.Track(tr))
	require.Eventually(t, func() bool {
		snap, err := h.tracker.Snapshot(context.Background(), id)
		return err == nil && snap.Geofence != nil
	}, 2*time.Second, 5*time.Millisecond, "geofence not resolved")
}

var destination = types.Point{Lat: -23.5635, Lng: -46.6523}

func newTrip(id types.ID, status Status, radius float64) Trip {
	dest := destination
	return Trip{
		ID:                   id,
		Status:               status,
		DriverID:             "driver-1",
		Destination:          geofence.Destination{Name: "Depot", Point: &dest},
		GeofenceRadiusMeters: radius,
		CreatedAt:            time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC),
	}
}

func positionAt(p types.Point, at time.Time) types.Position {
	return types.Position{Lat: p.Lat, Lng: p.Lng, Speed: 8, CapturedAt: at}
}
