package location

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/db"
)

// rtdbDriverEntry is the shape stored under driver_locations/{driverID}
// for the dispatcher map.
type rtdbDriverEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Speed     float64 `json:"speed"`
	TripID    string  `json:"trip_id,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// RTDBMirror publishes the latest driver position to Firebase RTDB.
type RTDBMirror struct {
	client *db.Client
}

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{client: client}
}

func (m *RTDBMirror) Mirror(ctx context.Context, u Update) error {
	ref := m.client.NewRef("driver_locations/" + string(u.DriverID))
	entry := rtdbDriverEntry{
		Lat:       u.Position.Lat,
		Lng:       u.Position.Lng,
		Speed:     u.Position.Speed,
		TripID:    string(u.TripID),
		Timestamp: u.Position.CapturedAt.UnixMilli(),
	}
	if err := ref.Set(ctx, entry); err != nil {
		return fmt.Errorf("mirror driver %s: %w", u.DriverID, err)
	}
	return nil
}

var _ Mirror = (*RTDBMirror)(nil)
var _ Mirror = (*geoMirror)(nil)

// geoMirror adapts Store's Redis GEO index to Mirror.
type geoMirror struct {
	store *Store
}

func (m geoMirror) Mirror(ctx context.Context, u Update) error {
	return m.store.SetGeo(ctx, u.DriverID, u.Position.Point())
}

// GeoMirror exposes the store's GEO index as a Mirror.
func GeoMirror(store *Store) Mirror {
	return geoMirror{store: store}
}
