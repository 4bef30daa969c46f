package trip

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"fleettrack/internal/types"
)

// History records applied transitions.
type History interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, tripID types.ID) ([]Event, error)
}

// EventStore keeps transition history in Postgres. Force-completions are
// stored with forced = true so they never read as a normal completion.
type EventStore struct {
	db *pgxpool.Pool
}

func NewEventStore(db *pgxpool.Pool) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Append(ctx context.Context, e Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_events (
			id, trip_id, from_status, to_status, actor_type, actor_id, reason, forced, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID,
		string(e.TripID),
		string(e.From),
		string(e.To),
		string(e.ActorType),
		nullIfEmpty(e.ActorID),
		nullIfEmpty(e.Reason),
		e.Forced,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append trip event: %w", err)
	}
	return nil
}

func (s *EventStore) List(ctx context.Context, tripID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, trip_id, from_status, to_status, actor_type,
		       COALESCE(actor_id, ''), COALESCE(reason, ''), forced, created_at
		FROM trip_events
		WHERE trip_id = $1
		ORDER BY created_at, id`, string(tripID),
	)
	if err != nil {
		return nil, fmt.Errorf("list trip events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TripID, &e.From, &e.To, &e.ActorType,
			&e.ActorID, &e.Reason, &e.Forced, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
