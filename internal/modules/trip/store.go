// README: Trip persistence contract and its Firestore implementation.
package trip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"fleettrack/internal/modules/geofence"
	"fleettrack/internal/modules/route"
	"fleettrack/internal/types"
)

// Store is the shared persistent record of trips.
type Store interface {
	Get(ctx context.Context, id types.ID) (Trip, error)
	// ApplyTransition writes tr atomically, failing with ErrConflict when the
	// stored status or version no longer match tr.From and tr.FromVersion.
	ApplyTransition(ctx context.Context, tr Transition) error
	UpdateProgress(ctx context.Context, id types.ID, p Progress) error
	SaveGeofence(ctx context.Context, id types.ID, g geofence.Geofence, destinationKey string) error
	WriteRouteSummary(ctx context.Context, id types.ID, s route.Summary) error
}

// Change is one entry of the trip change feed. Removed means the trip left
// the watched set.
type Change struct {
	Trip    Trip
	Removed bool
}

const tripsCollection = "trips"

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) doc(id types.ID) *firestore.DocumentRef {
	return s.client.Collection(tripsCollection).Doc(string(id))
}

func (s *FirestoreStore) Get(ctx context.Context, id types.ID) (Trip, error) {
	snap, err := s.doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Trip{}, ErrNotFound
	}
	if err != nil {
		return Trip{}, fmt.Errorf("get trip %s: %w", id, err)
	}
	return decodeTrip(snap)
}

func (s *FirestoreStore) ApplyTransition(ctx context.Context, tr Transition) error {
	ref := s.doc(tr.TripID)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur struct {
			Status        Status `firestore:"status"`
			StatusVersion int    `firestore:"statusVersion"`
		}
		if err := snap.DataTo(&cur); err != nil {
			return fmt.Errorf("decode trip %s: %w", tr.TripID, err)
		}
		if cur.Status != tr.From || cur.StatusVersion != tr.FromVersion {
			return ErrConflict
		}
		return tx.Update(ref, toUpdates(tr.Fields()))
	})
}

func (s *FirestoreStore) UpdateProgress(ctx context.Context, id types.ID, p Progress) error {
	_, err := s.doc(id).Update(ctx, []firestore.Update{
		{Path: "distanceRemainingMeters", Value: p.DistanceRemainingMeters},
		{Path: "etaSeconds", Value: p.ETASeconds},
		{Path: "progressUpdatedAt", Value: p.UpdatedAt},
	})
	if err != nil {
		return fmt.Errorf("update progress %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) SaveGeofence(ctx context.Context, id types.ID, g geofence.Geofence, destinationKey string) error {
	_, err := s.doc(id).Update(ctx, []firestore.Update{
		{Path: "geofence", Value: g},
		{Path: "geofenceKey", Value: destinationKey},
	})
	if err != nil {
		return fmt.Errorf("save geofence %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreStore) WriteRouteSummary(ctx context.Context, id types.ID, sum route.Summary) error {
	_, err := s.doc(id).Update(ctx, []firestore.Update{{Path: "routeSummary", Value: sum}})
	if err != nil {
		return fmt.Errorf("write route summary %s: %w", id, err)
	}
	return nil
}

// Watch streams changes to active trips, optionally limited to one driver,
// until ctx is done.
func (s *FirestoreStore) Watch(ctx context.Context, driverID types.ID, fn func(Change)) error {
	statuses := make([]string, 0, len(ActiveStatuses))
	for _, st := range ActiveStatuses {
		statuses = append(statuses, string(st))
	}
	q := s.client.Collection(tripsCollection).Where("status", "in", statuses)
	if driverID != "" {
		q = q.Where("assignedDriverId", "==", string(driverID))
	}

	it := q.Snapshots(ctx)
	defer it.Stop()
	for {
		qs, err := it.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return ctx.Err()
			}
			return fmt.Errorf("watch trips: %w", err)
		}
		for _, ch := range qs.Changes {
			t, err := decodeTrip(ch.Doc)
			if err != nil {
				continue
			}
			fn(Change{Trip: t, Removed: ch.Kind == firestore.DocumentRemoved})
		}
	}
}

func decodeTrip(snap *firestore.DocumentSnapshot) (Trip, error) {
	var t Trip
	if err := snap.DataTo(&t); err != nil {
		return Trip{}, fmt.Errorf("decode trip %s: %w", snap.Ref.ID, err)
	}
	t.ID = types.ID(snap.Ref.ID)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = snap.CreateTime
	}
	return t, nil
}

func toUpdates(fields map[string]any) []firestore.Update {
	ups := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		if ts, ok := v.(time.Time); ok {
			v = ts.UTC()
		}
		ups = append(ups, firestore.Update{Path: k, Value: v})
	}
	return ups
}

// isPermanent reports store errors that retrying cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound)
}
