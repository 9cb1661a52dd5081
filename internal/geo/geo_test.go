package geo

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"eventmap/internal/geocode"
	"eventmap/internal/model"
	"eventmap/internal/store"
)

var region = model.Coordinate{Lat: 54.9783, Lng: -1.6178}

type countingProvider struct {
	calls int32
	coord model.Coordinate
	err   error
	last  atomic.Value
}

func (p *countingProvider) Name() string { return "fake" }

func (p *countingProvider) Geocode(_ context.Context, q geocode.Query) (model.Coordinate, error) {
	atomic.AddInt32(&p.calls, 1)
	p.last.Store(q)
	return p.coord, p.err
}

type mapCache struct {
	m    map[string]model.Coordinate
	puts int
}

func (c *mapCache) Get(_ context.Context, key string) (model.Coordinate, error) {
	if v, ok := c.m[key]; ok {
		return v, nil
	}
	return model.Coordinate{}, store.ErrCacheMiss
}

func (c *mapCache) Put(_ context.Context, key string, v model.Coordinate, _ time.Duration) error {
	c.m[key] = v
	c.puts++
	return nil
}

func (c *mapCache) Close() error { return nil }

func TestResolve_KnownExactMatch(t *testing.T) {
	r := NewResolver(region, KnownStrategy{Table: DefaultTable()})
	got := r.Resolve(context.Background(), "Newcastle upon Tyne, UK", "")
	if got.Source != SourceKnown {
		t.Errorf("Source = %s, want known", got.Source)
	}
	if got.Lat != 54.9783 || got.Lng != -1.6178 {
		t.Errorf("got %+v, want exact 54.9783,-1.6178", got.Coordinate)
	}
}

func TestResolve_VenueContained(t *testing.T) {
	r := NewResolver(region, KnownStrategy{Table: DefaultTable()})
	got := r.Resolve(context.Background(), "Main hall, Durham Cathedral, Palace Green", "")
	if got.Source != SourceKnown || got.Lat != 54.7735 || got.Lng != -1.5762 {
		t.Errorf("got %+v", got)
	}
}

func TestResolve_CityGetsOffset(t *testing.T) {
	r := NewResolver(region, KnownStrategy{Table: DefaultTable()})
	ctx := context.Background()

	a := r.Resolve(ctx, "The Legion Club, Front Street, Consett", "")
	b := r.Resolve(ctx, "Consett Library, Victoria Road, Consett", "")
	if a.Source != SourceCity || b.Source != SourceCity {
		t.Fatalf("sources = %s, %s", a.Source, b.Source)
	}
	if a.Coordinate == b.Coordinate {
		t.Error("two venues in one city landed on the same point")
	}
	base := model.Coordinate{Lat: 54.8540, Lng: -1.8316}
	for _, got := range []Result{a, b} {
		if math.Abs(got.Lat-base.Lat) > MaxOffsetDeg+1e-12 || math.Abs(got.Lng-base.Lng) > MaxOffsetDeg+1e-12 {
			t.Errorf("%+v is too far from the Consett centre", got.Coordinate)
		}
	}
}

func TestResolve_CityLongestNameWins(t *testing.T) {
	tbl := DefaultTable()
	c, ok := tbl.City("community centre, north shields")
	if !ok || c.Name != "north shields" {
		t.Errorf("City = %+v, %v", c, ok)
	}
}

func TestHash_DeterministicAndBounded(t *testing.T) {
	inputs := []string{"", "a", "Village Hall", "Unit 4, Some Industrial Estate", "ünïcødé 🎖", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"}
	for _, s := range inputs {
		a := Jitter(region, s)
		b := Jitter(region, s)
		if a != b {
			t.Errorf("Jitter(%q) not deterministic: %+v vs %+v", s, a, b)
		}
		dLat, dLng := Offset(s)
		if math.Abs(dLat) > MaxOffsetDeg || math.Abs(dLng) > MaxOffsetDeg {
			t.Errorf("Offset(%q) = %v,%v exceeds %v", s, dLat, dLng, MaxOffsetDeg)
		}
	}
}

func TestHash_ClassicPolynomial(t *testing.T) {
	// "ab" = 97*31 + 98
	if got := Hash("ab"); got != 3105 {
		t.Errorf("Hash(ab) = %d, want 3105", got)
	}
	// Wraps to 32 bits like the classic string hash.
	if got := Hash("polygenelubricants"); got != math.MinInt32 {
		t.Errorf("Hash(polygenelubricants) = %d, want %d", got, math.MinInt32)
	}
}

func TestResolve_UnknownFallsBackToHash(t *testing.T) {
	r := NewResolver(region, KnownStrategy{Table: DefaultTable()})
	got := r.Resolve(context.Background(), "Somewhere Unlisted", "")
	if got.Source != SourceHash {
		t.Fatalf("Source = %s, want hash", got.Source)
	}
	if want := Jitter(region, "somewhere unlisted"); got.Coordinate != want {
		t.Errorf("got %+v, want %+v", got.Coordinate, want)
	}
	if got.IsZero() {
		t.Error("hash fallback produced (0,0)")
	}
}

func TestResolve_GeocodeFailureFallsThrough(t *testing.T) {
	p := &countingProvider{err: geocode.ErrRateLimited}
	g := NewGeocodeStrategy(p, nil, GeocodeOptions{RegionSuffix: ", Northeast England, UK"})
	r := NewResolver(region, KnownStrategy{Table: DefaultTable()}, g)

	got := r.Resolve(context.Background(), "Unit 7 Hadrian Road", "")
	if got.Source != SourceHash {
		t.Errorf("Source = %s, want hash", got.Source)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
}

func TestResolve_KnownTableBeforeNetwork(t *testing.T) {
	p := &countingProvider{coord: model.Coordinate{Lat: 1, Lng: 1}}
	r := NewResolver(region, KnownStrategy{Table: DefaultTable()}, NewGeocodeStrategy(p, nil, GeocodeOptions{}))

	r.Resolve(context.Background(), "Hexham Abbey", "")
	if p.calls != 0 {
		t.Errorf("provider called %d times for a known venue", p.calls)
	}
}

func TestGeocodeStrategy_CacheAndQuery(t *testing.T) {
	p := &countingProvider{coord: model.Coordinate{Lat: 55.1, Lng: -1.6}}
	cache := &mapCache{m: map[string]model.Coordinate{}}
	g := NewGeocodeStrategy(p, cache, GeocodeOptions{
		RegionSuffix: ", Northeast England, UK",
		Country:      "gb",
		CacheTTL:     time.Hour,
	})
	r := NewResolver(region, g)
	ctx := context.Background()

	first := r.Resolve(ctx, "12 Bridge Street", "Riverside Hall")
	if first.Source != SourceGeocode || first.Coordinate != p.coord {
		t.Fatalf("first = %+v", first)
	}
	q := p.last.Load().(geocode.Query)
	if q.Address != "Riverside Hall, 12 Bridge Street, Northeast England, UK" || q.Country != "gb" {
		t.Errorf("query = %+v", q)
	}

	second := r.Resolve(ctx, "12 Bridge Street", "Riverside Hall")
	if second.Source != SourceCache || second.Coordinate != p.coord {
		t.Errorf("second = %+v", second)
	}
	if p.calls != 1 || cache.puts != 1 {
		t.Errorf("calls = %d, puts = %d; want 1, 1", p.calls, cache.puts)
	}
}

func TestGeocodeStrategy_Address(t *testing.T) {
	g := NewGeocodeStrategy(nil, nil, GeocodeOptions{RegionSuffix: ", Northeast England, UK"})
	tests := []struct {
		text, hint, want string
	}{
		{"Front Street", "", "Front Street, Northeast England, UK"},
		{"Front Street, Northeast England, UK", "", "Front Street, Northeast England, UK"},
		{"Legion Club, Front Street", "legion club", "Legion Club, Front Street, Northeast England, UK"},
		{"", "Legion Club", "Legion Club, Northeast England, UK"},
		{"  ", "", ""},
	}
	for _, tt := range tests {
		if got := g.Address(tt.text, tt.hint); got != tt.want {
			t.Errorf("Address(%q, %q) = %q, want %q", tt.text, tt.hint, got, tt.want)
		}
	}
}

func TestGeocodeStrategy_NoProvider(t *testing.T) {
	g := NewGeocodeStrategy(nil, nil, GeocodeOptions{})
	if _, ok := g.Resolve(context.Background(), "anything", ""); ok {
		t.Error("strategy without provider should pass")
	}
}

func TestDistanceKm(t *testing.T) {
	newcastle := model.Coordinate{Lat: 54.9783, Lng: -1.6178}
	durham := model.Coordinate{Lat: 54.7761, Lng: -1.5733}
	d := DistanceKm(newcastle, durham)
	if d < 22 || d > 23.5 {
		t.Errorf("Newcastle-Durham = %.2f km, want about 22.6", d)
	}
	if DistanceKm(durham, durham) != 0 {
		t.Error("distance to self should be 0")
	}
	if math.Abs(DistanceKm(newcastle, durham)-DistanceKm(durham, newcastle)) > 1e-9 {
		t.Error("distance should be symmetric")
	}
}

func TestStatusErrorsUnwrap(t *testing.T) {
	// Joined errors from a chain still count as a plain failure here.
	p := &countingProvider{err: errors.Join(geocode.ErrNoResult, geocode.ErrDenied)}
	g := NewGeocodeStrategy(p, nil, GeocodeOptions{})
	if _, ok := g.Resolve(context.Background(), "x", ""); ok {
		t.Error("failed geocode reported ok")
	}
}
