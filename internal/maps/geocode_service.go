package maps

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"transitguide/internal/ai"
	"transitguide/internal/envelope"
)

// CountryQualifier is appended to every place name so domestic places win
// over same-named places abroad.
const CountryQualifier = "(台灣)"

// ErrNoResults is returned when the geocoder answers OK but with no results.
var ErrNoResults = errors.New("no geocoding results")

// GeocodeService handles interactions with the Google Maps Geocoding API.
type GeocodeService struct {
	client *maps.Client
	log    *zap.Logger
}

// NewGeocodeService creates a new GeocodeService with the given API Key.
// Extra client options (e.g. maps.WithBaseURL) are applied after the key.
func NewGeocodeService(apiKey string, log *zap.Logger, opts ...maps.ClientOption) (*GeocodeService, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client, log: log}, nil
}

// Resolve geocodes both endpoints of intent. It never returns a partial result.
func (s *GeocodeService) Resolve(ctx context.Context, intent ai.Intent) envelope.Envelope[GeoIntent] {
	origin, err := s.lookup(ctx, intent.Origin+CountryQualifier)
	if err != nil {
		s.log.Warn("geocode origin failed", zap.String("origin", intent.Origin), zap.Error(err))
		return envelope.Fail[GeoIntent](err.Error(), envelope.KindGeocodeFailed)
	}

	destination, err := s.lookup(ctx, intent.Destination+CountryQualifier)
	if err != nil {
		s.log.Warn("geocode destination failed", zap.String("destination", intent.Destination), zap.Error(err))
		return envelope.Fail[GeoIntent](err.Error(), envelope.KindGeocodeFailed)
	}

	return envelope.OK(GeoIntent{
		Origin:         origin,
		Destination:    destination,
		PreferenceCode: intent.Preference().Code(),
	})
}

// lookup returns the first geocoding result for address.
func (s *GeocodeService) lookup(ctx context.Context, address string) (Coordinate, error) {
	r := &maps.GeocodingRequest{
		Address:  address,
		Language: "zh-TW",
		Region:   "tw",
	}

	results, err := s.client.Geocode(ctx, r)
	if err != nil {
		return Coordinate{}, fmt.Errorf("failed to get geocode for %s: %w", address, err)
	}
	if len(results) == 0 {
		return Coordinate{}, fmt.Errorf("failed to get geocode for %s: %w", address, ErrNoResults)
	}

	loc := results[0].Geometry.Location
	return Coordinate{Lng: loc.Lng, Lat: loc.Lat}, nil
}
