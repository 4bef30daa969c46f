package geofence

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"fleettrack/internal/types"
)

// Strategy is one step of the resolution chain. A nil geofence with a nil
// error means the strategy does not apply to this destination.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, req Request) (*Geofence, error)
}

// Geocoder turns free text into a single best coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (types.Point, bool, error)
}

// Place is an authored destination with its own zone.
type Place struct {
	ID           string        `firestore:"-"`
	Name         string        `firestore:"name"`
	City         string        `firestore:"city"`
	Center       types.Point   `firestore:"center"`
	RadiusMeters float64       `firestore:"radiusMeters"`
	Vertices     []types.Point `firestore:"vertices"`
}

// PlaceLookup finds an authored place by id, or by name and city when the id is empty.
type PlaceLookup interface {
	FindPlace(ctx context.Context, d Destination) (Place, bool, error)
}

// AuthoredPlace uses the zone drawn for a known place.
type AuthoredPlace struct {
	Places PlaceLookup
}

func (AuthoredPlace) Name() string { return "authored_place" }

func (s AuthoredPlace) Resolve(ctx context.Context, req Request) (*Geofence, error) {
	d := req.Destination
	if d.PlaceID == "" && d.Name == "" {
		return nil, nil
	}
	p, ok, err := s.Places.FindPlace(ctx, d)
	if err != nil || !ok {
		return nil, err
	}
	var g Geofence
	switch {
	case len(p.Vertices) >= 3:
		g = Polygon(p.Vertices)
	case p.RadiusMeters > 0:
		g = Circle(p.Center, p.RadiusMeters)
	default:
		g = Circle(p.Center, req.RadiusMeters)
	}
	return &g, nil
}

// ExplicitCoordinates uses the coordinate stored on the trip.
type ExplicitCoordinates struct{}

func (ExplicitCoordinates) Name() string { return "explicit_coordinates" }

func (ExplicitCoordinates) Resolve(_ context.Context, req Request) (*Geofence, error) {
	pt := req.Destination.Point
	if pt == nil || !pt.Valid() {
		return nil, nil
	}
	g := Circle(*pt, req.RadiusMeters)
	return &g, nil
}

// AddressGeocode reads coordinates out of a maps link, falling back to
// geocoding the address text.
type AddressGeocode struct {
	Geocoder Geocoder
}

func (AddressGeocode) Name() string { return "address_geocode" }

func (s AddressGeocode) Resolve(ctx context.Context, req Request) (*Geofence, error) {
	addr := strings.TrimSpace(req.Destination.Address)
	if addr == "" {
		return nil, nil
	}
	if pt, ok := CoordinatesFromLink(addr); ok {
		g := Circle(pt, req.RadiusMeters)
		return &g, nil
	}
	if isLink(addr) {
		// a link without coordinates is not geocodable text
		return nil, nil
	}
	return geocodeCircle(ctx, s.Geocoder, addr, req.RadiusMeters)
}

// NameCity geocodes "name, city".
type NameCity struct {
	Geocoder Geocoder
}

func (NameCity) Name() string { return "name_city" }

func (s NameCity) Resolve(ctx context.Context, req Request) (*Geofence, error) {
	name := strings.TrimSpace(req.Destination.Name)
	if name == "" {
		return nil, nil
	}
	q := name
	if city := strings.TrimSpace(req.Destination.City); city != "" {
		q = name + ", " + city
	}
	return geocodeCircle(ctx, s.Geocoder, q, req.RadiusMeters)
}

func geocodeCircle(ctx context.Context, gc Geocoder, text string, radius float64) (*Geofence, error) {
	pt, found, err := gc.Geocode(ctx, text)
	if err != nil || !found {
		return nil, err
	}
	g := Circle(pt, radius)
	return &g, nil
}

var (
	atCoords   = regexp.MustCompile(`@(-?\d{1,3}(?:\.\d+)?),(-?\d{1,3}(?:\.\d+)?)`)
	pairCoords = regexp.MustCompile(`^\s*(-?\d{1,3}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)\s*$`)
	linkParams = []string{"destination", "daddr", "q", "query", "ll"}
)

// CoordinatesFromLink extracts a coordinate from a bare "lat,lng" string or a
// maps link carrying one in a known query parameter or an "@lat,lng" segment.
func CoordinatesFromLink(s string) (types.Point, bool) {
	if pt, ok := parsePair(pairCoords.FindStringSubmatch(s)); ok {
		return pt, true
	}
	if u, err := url.Parse(strings.TrimSpace(s)); err == nil && u.Scheme != "" {
		q := u.Query()
		for _, k := range linkParams {
			if pt, ok := parsePair(pairCoords.FindStringSubmatch(q.Get(k))); ok {
				return pt, true
			}
		}
	}
	return parsePair(atCoords.FindStringSubmatch(s))
}

func parsePair(m []string) (types.Point, bool) {
	if len(m) != 3 {
		return types.Point{}, false
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return types.Point{}, false
	}
	lng, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return types.Point{}, false
	}
	pt := types.Point{Lat: lat, Lng: lng}
	return pt, pt.Valid()
}

func isLink(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
