package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"fleettrack/internal/types"
)

// ErrNoRoute is returned when the upstream answered without a usable route.
var ErrNoRoute = errors.New("no route found")

// Directions is the routed geometry and totals for a single origin/destination pair.
type Directions struct {
	Points          []types.Point
	DistanceMeters  int
	DurationSeconds int
}

// RouteService handles interactions with the Google Maps Directions API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a RouteService on a shared client.
func NewRouteService(client *maps.Client) *RouteService {
	return &RouteService{client: client}
}

// NewClient builds the Maps client shared by the route, geocode and places services.
func NewClient(apiKey string, requestsPerSecond int) (*maps.Client, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if requestsPerSecond > 0 {
		opts = append(opts, maps.WithRateLimit(requestsPerSecond))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}

// Directions returns the driving route between two coordinates.
// The caller bounds the call through ctx.
func (s *RouteService) Directions(ctx context.Context, origin, destination types.Point) (Directions, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin.String(),
		Destination: destination.String(),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Directions{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Directions{}, ErrNoRoute
	}

	route := routes[0]
	var out Directions
	var total time.Duration
	for _, leg := range route.Legs {
		out.DistanceMeters += leg.Distance.Meters
		total += leg.Duration
	}
	out.DurationSeconds = int(total / time.Second)

	path, err := route.OverviewPolyline.Decode()
	if err != nil {
		return Directions{}, fmt.Errorf("decode polyline: %w", err)
	}
	if len(path) == 0 {
		return Directions{}, ErrNoRoute
	}
	out.Points = make([]types.Point, 0, len(path))
	for _, ll := range path {
		out.Points = append(out.Points, types.Point{Lat: ll.Lat, Lng: ll.Lng})
	}
	return out, nil
}

// EncodePath renders points as an encoded polyline for compact persistence.
func EncodePath(points []types.Point) string {
	path := make([]maps.LatLng, 0, len(points))
	for _, p := range points {
		path = append(path, maps.LatLng{Lat: p.Lat, Lng: p.Lng})
	}
	return maps.Encode(path)
}
