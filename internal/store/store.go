// Package store persists network geocoding results so that restarts and
// reloads do not hit the providers again for addresses already resolved.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventmap/internal/config"
	"eventmap/internal/model"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("geocode cache miss")

// TimeFormat is fixed width so that lexicographic order matches time order.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Cache stores coordinates by normalized address.
type Cache interface {
	Get(ctx context.Context, key string) (model.Coordinate, error)
	Put(ctx context.Context, key string, c model.Coordinate, ttl time.Duration) error
	Close() error
}

// Option configures a cache backend.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Open builds the cache selected by cfg.Driver.
func Open(ctx context.Context, cfg config.CacheConfig, opts ...Option) (Cache, error) {
	switch cfg.Driver {
	case config.CacheSQLite, "":
		return OpenSQLite(cfg.Path, opts...)
	case config.CachePostgres:
		return OpenPostgres(ctx, cfg.DSN, opts...)
	case config.CacheNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown geocode cache driver: %s", cfg.Driver)
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (model.Coordinate, error) {
	return model.Coordinate{}, ErrCacheMiss
}

func (Noop) Put(context.Context, string, model.Coordinate, time.Duration) error { return nil }

func (Noop) Close() error { return nil }
