// Package search classifies search queries and resolves location queries to
// a search origin and radius.
package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"eventmap/internal/geo"
	"eventmap/internal/geocode"
	appLog "eventmap/internal/log"
	"eventmap/internal/model"
	"eventmap/internal/postcode"
	"eventmap/internal/store"
)

// Search radii in kilometres.
const (
	RadiusPostcodeKm        = 15.0
	RadiusPartialPostcodeKm = 25.0
	RadiusPlaceKm           = 20.0
)

// minReverseMatch is the shortest query that may match as a fragment of a
// place name ("ham" matches "durham"; "on" does not).
const minReverseMatch = 3

// Options tune network resolution of search origins.
type Options struct {
	Country  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Resolver turns a query into a SearchOrigin. provider and cache may be nil,
// in which case only the known-location table is used.
type Resolver struct {
	table    *geo.Table
	provider geocode.Provider
	cache    store.Cache
	opts     Options
}

func NewResolver(table *geo.Table, provider geocode.Provider, cache store.Cache, opts Options) *Resolver {
	if table == nil {
		table = geo.DefaultTable()
	}
	if cache == nil {
		cache = store.Noop{}
	}
	if opts.Country == "" {
		opts.Country = "gb"
	}
	return &Resolver{table: table, provider: provider, cache: cache, opts: opts}
}

// Classify reports how query should be searched: full postcode, partial
// postcode, known place name, or free text.
func (r *Resolver) Classify(query string) model.SearchKind {
	q := strings.TrimSpace(query)
	switch {
	case q == "":
		return model.SearchFreeText
	case postcode.IsFull(q):
		return model.SearchPostcode
	case postcode.IsPartial(q):
		return model.SearchPartialPostcode
	}
	if _, ok := r.place(q); ok {
		return model.SearchPlace
	}
	return model.SearchFreeText
}

// place matches q against the known place names, exactly or by containment
// in either direction.
func (r *Resolver) place(q string) (model.Coordinate, bool) {
	n := geo.Normalize(q)
	if c, ok := r.table.Exact(n); ok {
		return c, true
	}
	if city, ok := r.table.City(n); ok {
		return city.Coordinate, true
	}
	if len(n) < minReverseMatch {
		return model.Coordinate{}, false
	}
	for _, city := range r.table.Cities() {
		if strings.Contains(city.Name, n) {
			return city.Coordinate, true
		}
	}
	return model.Coordinate{}, false
}

// ResolveOrigin returns the origin of a location search, or nil when the query
// is free text or could not be resolved. A nil origin means plain substring
// search.
func (r *Resolver) ResolveOrigin(ctx context.Context, query string) *model.SearchOrigin {
	kind := r.Classify(query)
	switch kind {
	case model.SearchPostcode, model.SearchPartialPostcode:
		pc := postcode.Normalize(query)
		radius := RadiusPostcodeKm
		if kind == model.SearchPartialPostcode {
			radius = RadiusPartialPostcodeKm
		}
		c, ok := r.geocode(ctx, pc)
		if !ok {
			return nil
		}
		return &model.SearchOrigin{Lat: c.Lat, Lng: c.Lng, RadiusKm: radius, Kind: kind}

	case model.SearchPlace:
		c, ok := r.place(query)
		if !ok {
			c, ok = r.geocode(ctx, strings.TrimSpace(query))
		}
		if !ok {
			return nil
		}
		return &model.SearchOrigin{Lat: c.Lat, Lng: c.Lng, RadiusKm: RadiusPlaceKm, Kind: kind}
	}
	return nil
}

func (r *Resolver) geocode(ctx context.Context, addr string) (model.Coordinate, bool) {
	if r.provider == nil {
		return model.Coordinate{}, false
	}
	key := "search:" + strings.ToLower(addr)
	if c, err := r.cache.Get(ctx, key); err == nil {
		return c, true
	} else if !errors.Is(err, store.ErrCacheMiss) {
		appLog.Warn("search cache read failed", "query", addr, "err", err.Error())
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	c, err := r.provider.Geocode(ctx, geocode.Query{Address: addr, Country: r.opts.Country})
	if err != nil {
		appLog.Warn("search geocode failed", "query", addr, "err", err.Error())
		return model.Coordinate{}, false
	}
	if c.IsZero() {
		return model.Coordinate{}, false
	}
	if r.opts.CacheTTL > 0 {
		if err := r.cache.Put(ctx, key, c, r.opts.CacheTTL); err != nil {
			appLog.Warn("search cache write failed", "query", addr, "err", err.Error())
		}
	}
	return c, true
}
