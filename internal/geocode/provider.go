// Package geocode turns addresses, place names and postcodes into coordinates
// using external providers.
package geocode

import (
	"context"
	"errors"

	"eventmap/internal/model"
)

var (
	// ErrNoResult means the provider answered but found nothing usable.
	ErrNoResult = errors.New("geocode: no result")
	// ErrNotConfigured means the provider is missing credentials.
	ErrNotConfigured = errors.New("geocode: provider not configured")
	// ErrDenied means the provider refused the request (bad key, invalid request).
	ErrDenied = errors.New("geocode: request denied")
	// ErrRateLimited means the provider asked us to slow down.
	ErrRateLimited = errors.New("geocode: rate limited")
)

// Query is one geocoding request.
type Query struct {
	Address string
	// Country restricts results (ISO 3166-1 alpha-2, e.g. "gb"). Empty means unrestricted.
	Country string
}

// Provider is a geocoding backend.
type Provider interface {
	Geocode(ctx context.Context, q Query) (model.Coordinate, error)
	Name() string
}

// IsTransient reports whether retrying err could succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNoResult), errors.Is(err, ErrNotConfigured), errors.Is(err, ErrDenied):
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// validCoordinate rejects the (0,0) sentinel and out-of-range values some
// providers return for empty matches.
func validCoordinate(c model.Coordinate) bool {
	if c.IsZero() {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}
