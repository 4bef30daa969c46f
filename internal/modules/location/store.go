// README: Location store backed by Redis GEO and Postgres snapshots.
package location

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"fleettrack/internal/types"
)

const driversGeoKey = "geo:drivers"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

// NewStore accepts a nil db or redis; the matching writes become no-ops.
func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

// SetGeo indexes the driver's latest position.
func (s *Store) SetGeo(ctx context.Context, driverID types.ID, p types.Point) error {
	if s.redis == nil {
		return nil
	}
	err := s.redis.GeoAdd(ctx, driversGeoKey, &redis.GeoLocation{
		Name:      string(driverID),
		Latitude:  p.Lat,
		Longitude: p.Lng,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoadd %s: %w", driverID, err)
	}
	return nil
}

// Latest returns the indexed position of a driver.
func (s *Store) Latest(ctx context.Context, driverID types.ID) (types.Point, bool, error) {
	if s.redis == nil {
		return types.Point{}, false, nil
	}
	pos, err := s.redis.GeoPos(ctx, driversGeoKey, string(driverID)).Result()
	if err != nil {
		return types.Point{}, false, fmt.Errorf("geopos %s: %w", driverID, err)
	}
	if len(pos) == 0 || pos[0] == nil {
		return types.Point{}, false, nil
	}
	return types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude}, true, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO position_snapshots (
			driver_id, trip_id, lat, lng, speed, accuracy, captured_at, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(snap.DriverID),
		nullableID(snap.TripID),
		snap.Position.Lat,
		snap.Position.Lng,
		snap.Position.Speed,
		snap.Accuracy,
		snap.Position.CapturedAt,
		snap.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append position snapshot: %w", err)
	}
	return nil
}

func nullableID(id types.ID) *string {
	if id == "" {
		return nil
	}
	s := string(id)
	return &s
}
