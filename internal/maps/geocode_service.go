package maps

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"fleettrack/internal/types"
)

// GeocodeService resolves free-text addresses with the Geocoding API.
type GeocodeService struct {
	client *maps.Client
}

func NewGeocodeService(client *maps.Client) *GeocodeService {
	return &GeocodeService{client: client}
}

// Geocode returns the best coordinate for text. found is false when the
// upstream has no match; err is reserved for transport or quota failures.
func (s *GeocodeService) Geocode(ctx context.Context, text string) (types.Point, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.Point{}, false, nil
	}
	results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: text})
	if err != nil {
		return types.Point{}, false, fmt.Errorf("geocode %q: %w", text, err)
	}
	if len(results) == 0 {
		return types.Point{}, false, nil
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, true, nil
}
