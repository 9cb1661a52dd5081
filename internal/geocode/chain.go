package geocode

import (
	"context"
	"errors"
	"fmt"

	"eventmap/internal/metrics"
	"eventmap/internal/model"
)

// Chain tries providers in order and returns the first success.
type Chain struct {
	providers []Provider
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) Name() string { return "chain" }

// Len is the number of providers in the chain.
func (c *Chain) Len() int { return len(c.providers) }

// Geocode returns the first provider's success. When every provider fails the
// errors are joined, so errors.Is(err, ErrNoResult) holds if any provider
// reported no result.
func (c *Chain) Geocode(ctx context.Context, q Query) (model.Coordinate, error) {
	if len(c.providers) == 0 {
		return model.Coordinate{}, ErrNotConfigured
	}
	var errs []error
	for _, p := range c.providers {
		coord, err := p.Geocode(ctx, q)
		if err == nil {
			return coord, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return model.Coordinate{}, errors.Join(errs...)
}

// instrumented counts every call in eventmap_geocode_requests_total.
type instrumented struct {
	next Provider
}

// Instrument wraps p so that each call is counted by provider and status.
func Instrument(p Provider) Provider {
	return &instrumented{next: p}
}

func (i *instrumented) Name() string { return i.next.Name() }

func (i *instrumented) Geocode(ctx context.Context, q Query) (model.Coordinate, error) {
	c, err := i.next.Geocode(ctx, q)
	metrics.GeocodeRequests.WithLabelValues(i.next.Name(), Status(err)).Inc()
	return c, err
}

// Status maps an error to the metric status label.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoResult):
		return "no_result"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrDenied):
		return "denied"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// Describe renders the provider names of a chain for logs.
func (c *Chain) Describe() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return fmt.Sprint(names)
}
