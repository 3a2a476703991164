package geocode

import (
	"context"
	"fmt"
	"log"

	"github.com/taxinsta/dispatch/internal/models"
	"googlemaps.github.io/maps"
)

// Geocoder resolves free-text addresses to coordinates. A failed or empty
// lookup means "no match" — callers never treat it as fatal.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (*models.Location, error)
}

type googleGeocoder struct {
	client *maps.Client
}

// New creates a geocoder backed by the Google Geocoding API. An empty API
// key returns a disabled geocoder that resolves nothing.
func New(apiKey string) (Geocoder, error) {
	if apiKey == "" {
		return disabledGeocoder{}, nil
	}

	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &googleGeocoder{client: client}, nil
}

func (g *googleGeocoder) Lookup(ctx context.Context, address string) (*models.Location, error) {
	if address == "" {
		return nil, nil
	}

	resp, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		log.Printf("geocode: lookup %q failed: %v", address, err)
		return nil, nil
	}
	if len(resp) == 0 {
		return nil, nil
	}

	loc := resp[0].Geometry.Location
	return &models.Location{
		Lat:     loc.Lat,
		Lng:     loc.Lng,
		Address: resp[0].FormattedAddress,
	}, nil
}

type disabledGeocoder struct{}

func (disabledGeocoder) Lookup(ctx context.Context, address string) (*models.Location, error) {
	return nil, nil
}
