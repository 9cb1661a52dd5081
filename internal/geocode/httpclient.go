package geocode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"eventmap/internal/model"
)

// NewHTTPClient returns a client with bounded dial and TLS handshake times.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// Retry calls fn up to attempts times with exponential backoff. It stops
// early on success or when the error is not transient.
func Retry(ctx context.Context, attempts int, initial, max time.Duration, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	d := initial
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return ctx.Err()
			}
			if d < max {
				d *= 2
				if d > max {
					d = max
				}
			}
		}
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

// retrying wraps a provider with Retry.
type retrying struct {
	next              Provider
	attempts          int
	backoff, maxDelay time.Duration
}

// WithRetry retries transient failures of p. maxRetries counts extra attempts.
func WithRetry(p Provider, maxRetries int, backoff, maxDelay time.Duration) Provider {
	if maxRetries <= 0 {
		return p
	}
	return &retrying{next: p, attempts: maxRetries + 1, backoff: backoff, maxDelay: maxDelay}
}

func (r *retrying) Name() string { return r.next.Name() }

func (r *retrying) Geocode(ctx context.Context, q Query) (model.Coordinate, error) {
	var out model.Coordinate
	err := Retry(ctx, r.attempts, r.backoff, r.maxDelay, func() error {
		c, err := r.next.Geocode(ctx, q)
		if err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// statusError maps an unexpected HTTP status to an error.
func statusError(provider string, code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w (http %d)", provider, ErrRateLimited, code)
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return fmt.Errorf("%s: %w (http %d)", provider, ErrDenied, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%s: %w (http %d)", provider, ErrNoResult, code)
	default:
		return errors.New(provider + ": http " + http.StatusText(code))
	}
}
