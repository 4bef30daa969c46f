package location

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleettrack/internal/types"
)

var now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func TestNormalize(t *testing.T) {
	valid := RawUpdate{DriverID: "d1", Latitude: -23.56, Longitude: -46.65, Speed: 10, Timestamp: now.UnixMilli()}

	tests := []struct {
		name    string
		mutate  func(r *RawUpdate)
		wantErr bool
		speed   float64
	}{
		{name: "valid", mutate: func(r *RawUpdate) {}, speed: 10},
		{name: "missing driver", mutate: func(r *RawUpdate) { r.DriverID = " " }, wantErr: true},
		{name: "latitude out of range", mutate: func(r *RawUpdate) { r.Latitude = 91 }, wantErr: true},
		{name: "longitude out of range", mutate: func(r *RawUpdate) { r.Longitude = -181 }, wantErr: true},
		{name: "zero timestamp", mutate: func(r *RawUpdate) { r.Timestamp = 0 }, wantErr: true},
		{name: "far future", mutate: func(r *RawUpdate) { r.Timestamp = now.Add(3 * time.Minute).UnixMilli() }, wantErr: true},
		{name: "small skew allowed", mutate: func(r *RawUpdate) { r.Timestamp = now.Add(time.Minute).UnixMilli() }, speed: 10},
		{name: "negative speed clamped", mutate: func(r *RawUpdate) { r.Speed = -3 }, speed: 0},
		{name: "kmh converted", mutate: func(r *RawUpdate) { r.Speed, r.SpeedUnit = 36, "kmh" }, speed: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := valid
			tt.mutate(&raw)
			u, err := Normalize(raw, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUpdate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, types.ID("d1"), u.DriverID)
			assert.InDelta(t, tt.speed, u.Position.Speed, 1e-9)
			assert.Equal(t, time.UnixMilli(raw.Timestamp).UTC(), u.Position.CapturedAt)
		})
	}
}

type fakeSink struct {
	mu    sync.Mutex
	got   []types.Position
	trips []types.ID
}

func (f *fakeSink) Ingest(_ context.Context, _, tripID types.ID, pos types.Position) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, pos)
	f.trips = append(f.trips, tripID)
	return 1
}

type fakeMirror struct {
	mu      sync.Mutex
	updates []Update
	err     error
}

func (f *fakeMirror) Mirror(_ context.Context, u Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return f.err
}

type fakeSnapshots struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (f *fakeSnapshots) AppendSnapshot(_ context.Context, s Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps = append(f.snaps, s)
	return nil
}

func newTestService(sink PositionSink, snaps SnapshotRecorder, mirrors ...Mirror) *Service {
	svc := NewService(sink, snaps, time.Second, zap.NewNop(), mirrors...)
	svc.now = func() time.Time { return now }
	return svc
}

func TestServiceIngest(t *testing.T) {
	sink := &fakeSink{}
	failing := &fakeMirror{err: errors.New("rtdb down")}
	ok := &fakeMirror{}
	snaps := &fakeSnapshots{}
	svc := newTestService(sink, snaps, failing, ok)

	res := svc.Ingest(context.Background(), RawUpdate{
		DriverID: "d1", TripID: "t1", Latitude: -23.56, Longitude: -46.65, Speed: 5, Accuracy: 8, Timestamp: now.UnixMilli(),
	})
	assert.True(t, res.Accepted)
	assert.Equal(t, 1, res.Delivered)
	svc.Wait()

	require.Len(t, sink.got, 1)
	assert.Equal(t, types.ID("t1"), sink.trips[0])
	assert.Len(t, failing.updates, 1)
	assert.Len(t, ok.updates, 1)
	require.Len(t, snaps.snaps, 1)
	assert.Equal(t, 8.0, snaps.snaps[0].Accuracy)
	assert.Equal(t, now, snaps.snaps[0].RecordedAt)
}

func TestServiceIngest_MirrorsOnlyNewestPosition(t *testing.T) {
	sink := &fakeSink{}
	mirror := &fakeMirror{}
	snaps := &fakeSnapshots{}
	svc := newTestService(sink, snaps, mirror)
	ctx := context.Background()

	svc.Ingest(ctx, RawUpdate{DriverID: "d1", Latitude: -23.565, Longitude: -46.653, Timestamp: now.UnixMilli()})
	res := svc.Ingest(ctx, RawUpdate{DriverID: "d1", Latitude: -23.59, Longitude: -46.66, Timestamp: now.Add(-time.Minute).UnixMilli()})
	svc.Wait()

	assert.True(t, res.Accepted)
	assert.Len(t, sink.got, 2)
	assert.Len(t, snaps.snaps, 2)
	require.Len(t, mirror.updates, 1)
	assert.Equal(t, now, mirror.updates[0].Position.CapturedAt)
	assert.Equal(t, -23.565, mirror.updates[0].Position.Lat)
}

func TestServiceIngest_MirrorEndsOnLatestUnderBurst(t *testing.T) {
	mirror := &fakeMirror{}
	svc := newTestService(&fakeSink{}, nil, mirror)
	ctx := context.Background()

	const n = 50
	for i := 0; i < n; i++ {
		ts := now.Add(-time.Duration(n-i) * time.Second)
		svc.Ingest(ctx, RawUpdate{DriverID: "d1", Latitude: -23.6 + float64(i)*0.001, Longitude: -46.66, Timestamp: ts.UnixMilli()})
		svc.Ingest(ctx, RawUpdate{DriverID: "d2", Latitude: 10, Longitude: 10, Timestamp: ts.UnixMilli()})
	}
	svc.Wait()

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	last := map[types.ID]time.Time{}
	for _, u := range mirror.updates {
		assert.True(t, u.Position.CapturedAt.After(last[u.DriverID]), "mirror went backwards for %s", u.DriverID)
		last[u.DriverID] = u.Position.CapturedAt
	}
	assert.Equal(t, now.Add(-time.Second), last["d1"])
	assert.Equal(t, now.Add(-time.Second), last["d2"])
}

func TestServiceIngest_DropsInvalid(t *testing.T) {
	sink := &fakeSink{}
	snaps := &fakeSnapshots{}
	svc := newTestService(sink, snaps)

	res := svc.Ingest(context.Background(), RawUpdate{DriverID: "d1", Latitude: 120, Timestamp: now.UnixMilli()})
	svc.Wait()
	assert.False(t, res.Accepted)
	assert.Empty(t, sink.got)
	assert.Empty(t, snaps.snaps)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func TestSubscriberHandleMessage(t *testing.T) {
	sink := &fakeSink{}
	svc := newTestService(sink, nil)
	sub := NewSubscriber(nil, svc, "", zap.NewNop())

	body, err := json.Marshal(map[string]any{
		"latitude": -23.56, "longitude": -46.65, "speed": 72, "speed_unit": "kmh", "timestamp": now.UnixMilli(),
	})
	require.NoError(t, err)
	sub.handleMessage(nil, fakeMessage{topic: "fleet/drivers/d42/location", payload: body})
	sub.handleMessage(nil, fakeMessage{topic: "fleet/drivers/d42/location", payload: []byte("{not json")})

	require.Len(t, sink.got, 1)
	assert.InDelta(t, 20, sink.got[0].Speed, 1e-9)
	assert.Equal(t, DefaultTopic, sub.topic)
}

func TestDriverFromTopic(t *testing.T) {
	assert.Equal(t, "d42", driverFromTopic("fleet/drivers/d42/location"))
	assert.Equal(t, "d42", driverFromTopic("/fleet/drivers/d42/location"))
	assert.Equal(t, "", driverFromTopic("fleet/vehicles/d42/status"))
}

func TestStoreGeoIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewStore(nil, rdb)
	ctx := context.Background()

	_, ok, err := store.Latest(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, ok)

	m := GeoMirror(store)
	require.NoError(t, m.Mirror(ctx, Update{DriverID: "d1", Position: types.Position{Lat: -23.56, Lng: -46.65}}))
	p, ok, err := store.Latest(ctx, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, -23.56, p.Lat, 1e-4)
	assert.InDelta(t, -46.65, p.Lng, 1e-4)

	assert.NoError(t, store.AppendSnapshot(ctx, Snapshot{DriverID: "d1"}))
}
