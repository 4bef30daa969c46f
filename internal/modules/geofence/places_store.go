package geofence

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const placesCollection = "places"

// FirestorePlaces reads authored destination zones from the places collection.
type FirestorePlaces struct {
	client *firestore.Client
}

func NewFirestorePlaces(client *firestore.Client) *FirestorePlaces {
	return &FirestorePlaces{client: client}
}

func (s *FirestorePlaces) FindPlace(ctx context.Context, d Destination) (Place, bool, error) {
	if d.PlaceID != "" {
		snap, err := s.client.Collection(placesCollection).Doc(d.PlaceID).Get(ctx)
		if status.Code(err) == codes.NotFound {
			return Place{}, false, nil
		}
		if err != nil {
			return Place{}, false, fmt.Errorf("get place %s: %w", d.PlaceID, err)
		}
		return decodePlace(snap)
	}

	q := s.client.Collection(placesCollection).Where("name", "==", d.Name)
	if d.City != "" {
		q = q.Where("city", "==", d.City)
	}
	it := q.Limit(1).Documents(ctx)
	defer it.Stop()
	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return Place{}, false, nil
	}
	if err != nil {
		return Place{}, false, fmt.Errorf("query place %q: %w", d.Name, err)
	}
	return decodePlace(snap)
}

func decodePlace(snap *firestore.DocumentSnapshot) (Place, bool, error) {
	var p Place
	if err := snap.DataTo(&p); err != nil {
		return Place{}, false, fmt.Errorf("decode place %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return p, true, nil
}
