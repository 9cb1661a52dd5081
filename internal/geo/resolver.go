package geo

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"eventmap/internal/geocode"
	appLog "eventmap/internal/log"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
	"eventmap/internal/store"
)

// Resolution sources, also used as metric labels.
const (
	SourceKnown   = "known"
	SourceCity    = "city"
	SourceCache   = "cache"
	SourceGeocode = "geocode"
	SourceHash    = "hash"
)

// Result is a resolved location and the strategy that produced it.
type Result struct {
	model.Coordinate
	Source string
}

// Strategy is one step of the location fallback chain. ok=false passes the
// text on to the next strategy.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, text, hint string) (Result, bool)
}

// Resolver runs strategies in order until one returns a definite result.
// If none does, it places the text near the default region by hash.
type Resolver struct {
	strategies []Strategy
	fallback   *HashStrategy
}

func NewResolver(base model.Coordinate, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, fallback: &HashStrategy{Base: base}}
}

// Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, text, hint string) Result {
	res, ok := Result{}, false
	for _, s := range r.strategies {
		if res, ok = s.Resolve(ctx, text, hint); ok {
			break
		}
	}
	if !ok {
		res, _ = r.fallback.Resolve(ctx, text, hint)
	}
	metrics.LocationResolutions.WithLabelValues(res.Source).Inc()
	appLog.Debug("location resolved", "location", text, "source", res.Source, "lat", res.Lat, "lng", res.Lng)
	return res
}

// KnownStrategy looks the text up in the known-location table: exact match,
// then contained venue, then contained city (offset by hash).
type KnownStrategy struct {
	Table *Table
}

func (KnownStrategy) Name() string { return "known" }

func (k KnownStrategy) Resolve(_ context.Context, text, _ string) (Result, bool) {
	n := Normalize(text)
	if n == "" {
		return Result{}, false
	}
	if c, ok := k.Table.Exact(n); ok {
		return Result{Coordinate: c, Source: SourceKnown}, true
	}
	if _, c, ok := k.Table.Venue(n); ok {
		return Result{Coordinate: c, Source: SourceKnown}, true
	}
	if city, ok := k.Table.City(n); ok {
		return Result{Coordinate: Jitter(city.Coordinate, n), Source: SourceCity}, true
	}
	return Result{}, false
}

// HashStrategy always succeeds: it offsets Base by the hash of the text.
type HashStrategy struct {
	Base model.Coordinate
}

func (*HashStrategy) Name() string { return "hash" }

func (h *HashStrategy) Resolve(_ context.Context, text, _ string) (Result, bool) {
	return Result{Coordinate: Jitter(h.Base, Normalize(text)), Source: SourceHash}, true
}

// GeocodeOptions configures GeocodeStrategy.
type GeocodeOptions struct {
	// RegionSuffix is appended to the address unless already present.
	RegionSuffix string
	Country      string
	Timeout      time.Duration
	// CacheTTL is how long network results stay in the cache.
	CacheTTL time.Duration
}

// GeocodeStrategy asks the cache, then the provider. Failures are logged and
// reported as ok=false so the chain continues. Only network results are cached.
type GeocodeStrategy struct {
	provider geocode.Provider
	cache    store.Cache
	opts     GeocodeOptions
	group    singleflight.Group
}

// NewGeocodeStrategy builds the strategy. cache may be nil.
func NewGeocodeStrategy(p geocode.Provider, cache store.Cache, opts GeocodeOptions) *GeocodeStrategy {
	if cache == nil {
		cache = store.Noop{}
	}
	return &GeocodeStrategy{provider: p, cache: cache, opts: opts}
}

func (*GeocodeStrategy) Name() string { return "geocode" }

// Address builds the query sent to the provider.
func (g *GeocodeStrategy) Address(text, hint string) string {
	addr := strings.TrimSpace(text)
	hint = strings.TrimSpace(hint)
	if hint != "" && !strings.Contains(strings.ToLower(addr), strings.ToLower(hint)) {
		if addr == "" {
			addr = hint
		} else {
			addr = hint + ", " + addr
		}
	}
	if addr == "" {
		return ""
	}
	suffix := g.opts.RegionSuffix
	if suffix != "" && !strings.HasSuffix(strings.ToLower(addr), strings.ToLower(strings.TrimSpace(suffix))) {
		addr += suffix
	}
	return addr
}

type geocodeHit struct {
	coord  model.Coordinate
	source string
}

func (g *GeocodeStrategy) Resolve(ctx context.Context, text, hint string) (Result, bool) {
	if g.provider == nil {
		return Result{}, false
	}
	addr := g.Address(text, hint)
	if addr == "" {
		return Result{}, false
	}
	key := Normalize(addr)

	v, err, _ := g.group.Do(key, func() (any, error) {
		return g.lookup(ctx, key, addr)
	})
	if err != nil {
		appLog.Warn("geocode failed", "provider", g.provider.Name(), "address", addr, "err", err.Error())
		return Result{}, false
	}
	hit := v.(geocodeHit)
	return Result{Coordinate: hit.coord, Source: hit.source}, true
}

func (g *GeocodeStrategy) lookup(ctx context.Context, key, addr string) (geocodeHit, error) {
	c, err := g.cache.Get(ctx, key)
	if err == nil {
		return geocodeHit{coord: c, source: SourceCache}, nil
	}
	if !errors.Is(err, store.ErrCacheMiss) {
		appLog.Warn("geocode cache read failed", "address", addr, "err", err.Error())
	}

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	c, err = g.provider.Geocode(ctx, geocode.Query{Address: addr, Country: g.opts.Country})
	if err != nil {
		return geocodeHit{}, err
	}
	if c.IsZero() {
		return geocodeHit{}, geocode.ErrNoResult
	}

	if g.opts.CacheTTL > 0 {
		if err := g.cache.Put(ctx, key, c, g.opts.CacheTTL); err != nil {
			appLog.Warn("geocode cache write failed", "address", addr, "err", err.Error())
		}
	}
	return geocodeHit{coord: c, source: SourceGeocode}, nil
}
