package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"fleettrack/internal/types"
)

// PlacesService handles interactions with the Google Places API.
type PlacesService struct {
	client *maps.Client
}

func NewPlacesService(client *maps.Client) *PlacesService {
	return &PlacesService{client: client}
}

// Geocode looks up a place by name (typically "name, city") and returns the
// location of the first text-search hit. It satisfies the same contract as
// GeocodeService.Geocode so either can back a resolver strategy.
func (s *PlacesService) Geocode(ctx context.Context, query string) (types.Point, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return types.Point{}, false, nil
	}
	resp, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{Query: query})
	if err != nil {
		return types.Point{}, false, fmt.Errorf("places api error: %w", err)
	}
	if len(resp.Results) == 0 {
		return types.Point{}, false, nil
	}
	loc := resp.Results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}
