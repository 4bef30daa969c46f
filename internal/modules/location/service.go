// README: Location service normalizes device updates and fans them out to trips and mirrors.
package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleettrack/internal/types"
)

// PositionSink receives copies of accepted positions.
type PositionSink interface {
	Ingest(ctx context.Context, driverID, tripID types.ID, pos types.Position) int
}

// Mirror publishes the latest position somewhere outside the tracker.
type Mirror interface {
	Mirror(ctx context.Context, u Update) error
}

type SnapshotRecorder interface {
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

type Result struct {
	Accepted  bool `json:"accepted"`
	Delivered int  `json:"delivered"`
}

type Service struct {
	sink      PositionSink
	snapshots SnapshotRecorder
	mirrors   []Mirror
	timeout   time.Duration
	log       *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	drivers map[types.ID]*driverState

	pending sync.WaitGroup
}

// driverState orders mirror writes for one driver. seen is guarded by
// Service.mu; mirrored by mu.
type driverState struct {
	seen time.Time

	mu       sync.Mutex
	mirrored time.Time
}

func NewService(sink PositionSink, snapshots SnapshotRecorder, timeout time.Duration, log *zap.Logger, mirrors ...Mirror) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		sink:      sink,
		snapshots: snapshots,
		mirrors:   mirrors,
		timeout:   timeout,
		log:       log,
		now:       time.Now,
		drivers:   make(map[types.ID]*driverState),
	}
}

// Ingest normalizes raw and hands it to the tracker. Invalid updates are
// dropped. Mirror and snapshot writes run in the background.
func (s *Service) Ingest(ctx context.Context, raw RawUpdate) Result {
	u, err := Normalize(raw, s.now())
	if err != nil {
		s.log.Debug("location update dropped", zap.String("driver_id", raw.DriverID), zap.Error(err))
		return Result{}
	}
	delivered := s.sink.Ingest(ctx, u.DriverID, u.TripID, u.Position)
	s.record(u, s.observe(u))
	return Result{Accepted: true, Delivered: delivered}
}

// observe returns the driver's state, or nil when u is not newer than a
// position already seen for that driver.
func (s *Service) observe(u Update) *driverState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.drivers[u.DriverID]
	if !ok {
		st = &driverState{}
		s.drivers[u.DriverID] = st
	}
	if !st.seen.IsZero() && !u.Position.CapturedAt.After(st.seen) {
		return nil
	}
	st.seen = u.Position.CapturedAt
	return st
}

// record appends the snapshot for every accepted update. Mirrors only
// receive the newest position per driver.
func (s *Service) record(u Update, st *driverState) {
	if st == nil {
		s.log.Debug("stale position not mirrored", zap.String("driver_id", string(u.DriverID)))
	}
	if (st == nil || len(s.mirrors) == 0) && s.snapshots == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if st != nil {
			s.mirror(ctx, u, st)
		}
		if s.snapshots == nil {
			return
		}
		err := s.snapshots.AppendSnapshot(ctx, Snapshot{
			DriverID:   u.DriverID,
			TripID:     u.TripID,
			Position:   u.Position,
			Accuracy:   u.Accuracy,
			RecordedAt: s.now(),
		})
		if err != nil {
			s.log.Warn("position snapshot failed", zap.String("driver_id", string(u.DriverID)), zap.Error(err))
		}
	}()
}

func (s *Service) mirror(ctx context.Context, u Update, st *driverState) {
	if len(s.mirrors) == 0 {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	// a newer position overtook this one on its way here
	if !st.mirrored.IsZero() && !u.Position.CapturedAt.After(st.mirrored) {
		return
	}
	for _, m := range s.mirrors {
		if err := m.Mirror(ctx, u); err != nil {
			s.log.Warn("location mirror failed", zap.String("driver_id", string(u.DriverID)), zap.Error(err))
		}
	}
	st.mirrored = u.Position.CapturedAt
}

// Wait blocks until background writes finish.
func (s *Service) Wait() {
	s.pending.Wait()
}
