package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // Europe/London must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"

	"eventmap/internal/model"
)

// Calendar source kinds, tried in the order listed in CalendarConfig.Sources.
const (
	SourceLocal  = "local"
	SourceGoogle = "google"
	SourceICS    = "ics"
)

// Geocoding provider types.
const (
	ProviderGoogle      = "google"
	ProviderNominatim   = "nominatim"
	ProviderPostcodesIO = "postcodesio"
)

// Geocode cache drivers.
const (
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheNone     = "none"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	URL  string `yaml:"url" json:"url"`
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// GoogleCalendarConfig points at a public Google Calendar read via an API key.
type GoogleCalendarConfig struct {
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	APIKey     string `yaml:"api_key" json:"-"`
	BaseURL    string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// CalendarConfig controls where calendar items come from.
type CalendarConfig struct {
	// Sources is the fallback order, e.g. [local, google, ics].
	Sources   []string             `yaml:"sources" json:"sources"`
	LocalPath string               `yaml:"local_path" json:"local_path"`
	Google    GoogleCalendarConfig `yaml:"google" json:"google"`
	ICS       []ICSConfig          `yaml:"ics" json:"ics"`
	// CacheDir holds the ICS HTTP cache (ETag / Last-Modified + body).
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// HorizonDays bounds recurrence expansion of ICS feeds.
	HorizonDays int           `yaml:"horizon_days" json:"horizon_days"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`

	// ExcludeRecurringIDs suppresses administrative series injected into the feed.
	ExcludeRecurringIDs []string `yaml:"exclude_recurring_ids" json:"exclude_recurring_ids"`
}

// ProviderConfig configures one geocoding provider.
type ProviderConfig struct {
	Type      string `yaml:"type" json:"type"`
	BaseURL   string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty" json:"-"`
	UserAgent string `yaml:"user_agent,omitempty" json:"user_agent,omitempty"`
	// RatePerSecond throttles requests (Nominatim allows 1 req/s).
	RatePerSecond float64 `yaml:"rate_per_second,omitempty" json:"rate_per_second,omitempty"`
	Burst         int     `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// CacheConfig configures the persistent geocode cache.
type CacheConfig struct {
	Driver string        `yaml:"driver" json:"driver"`
	Path   string        `yaml:"path" json:"path"`
	DSN    string        `yaml:"dsn,omitempty" json:"-"`
	TTL    time.Duration `yaml:"ttl" json:"ttl"`
}

// GeocodingConfig configures network geocoding for events and searches.
type GeocodingConfig struct {
	// RegionSuffix is appended to event addresses before geocoding.
	RegionSuffix string `yaml:"region_suffix" json:"region_suffix"`
	// Country restricts results (ISO 3166-1 alpha-2).
	Country string `yaml:"country" json:"country"`
	// Concurrency is the number of calendar items resolved in parallel.
	Concurrency int              `yaml:"concurrency" json:"concurrency"`
	Timeout     time.Duration    `yaml:"timeout" json:"timeout"`
	MaxRetries  int              `yaml:"max_retries" json:"max_retries"`
	Backoff     time.Duration    `yaml:"backoff" json:"backoff"`
	MaxBackoff  time.Duration    `yaml:"max_backoff" json:"max_backoff"`
	Providers   []ProviderConfig `yaml:"providers" json:"providers"`
	Cache       CacheConfig      `yaml:"cache" json:"cache"`
}

// RateLimitConfig throttles the HTTP API per client IP.
type RateLimitConfig struct {
	Rate  float64 `yaml:"rate" json:"rate"`
	Burst int     `yaml:"burst" json:"burst"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen   string `yaml:"listen" json:"listen"`
	Timezone string `yaml:"timezone" json:"timezone"`
	// RefreshCron is the cron schedule for reloading the calendar.
	RefreshCron string `yaml:"refresh" json:"refresh"`
	LogLevel    string `yaml:"log_level" json:"log_level"`

	EventsPerPage   int              `yaml:"events_per_page" json:"events_per_page"`
	MaxMarkersOnMap int              `yaml:"max_markers_on_map" json:"max_markers_on_map"`
	DebounceDelayMs int              `yaml:"debounce_delay_ms" json:"debounce_delay_ms"`
	DefaultRegion   model.Coordinate `yaml:"default_region" json:"default_region"`
	EnableGeocoding bool             `yaml:"enable_geocoding" json:"enable_geocoding"`
	MaxEvents       int              `yaml:"max_events" json:"max_events"`

	Calendar  CalendarConfig  `yaml:"calendar" json:"calendar"`
	Geocoding GeocodingConfig `yaml:"geocoding" json:"geocoding"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "Europe/London",
		RefreshCron:     "*/30 * * * *",
		LogLevel:        "info",
		EventsPerPage:   10,
		MaxMarkersOnMap: 200,
		DebounceDelayMs: 300,
		DefaultRegion:   model.Coordinate{Lat: 54.9783, Lng: -1.6178},
		EnableGeocoding: true,
		MaxEvents:       250,
		Calendar: CalendarConfig{
			Sources:     []string{SourceLocal, SourceGoogle, SourceICS},
			LocalPath:   "./data/events.json",
			Google:      GoogleCalendarConfig{APIKey: "YOUR_API_KEY"},
			ICS:         []ICSConfig{},
			CacheDir:    "./var/ics-cache",
			HorizonDays: 90,
			Timeout:     15 * time.Second,
		},
		Geocoding: GeocodingConfig{
			RegionSuffix: ", Northeast England, UK",
			Country:      "gb",
			Concurrency:  1,
			Timeout:      10 * time.Second,
			MaxRetries:   2,
			Backoff:      500 * time.Millisecond,
			MaxBackoff:   5 * time.Second,
			Providers: []ProviderConfig{
				{Type: ProviderPostcodesIO},
				{Type: ProviderGoogle, APIKey: "YOUR_API_KEY"},
				{Type: ProviderNominatim, UserAgent: "eventmap/1.0", RatePerSecond: 1, Burst: 1},
			},
			Cache: CacheConfig{
				Driver: CacheSQLite,
				Path:   "./var/geocode-cache.sqlite",
				TTL:    30 * 24 * time.Hour,
			},
		},
		RateLimit: RateLimitConfig{Rate: 10, Burst: 20},
	}
}

// Normalize fills in missing/zero values so that partially-filled configs
// still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.EventsPerPage <= 0 {
		c.EventsPerPage = d.EventsPerPage
	}
	if c.MaxMarkersOnMap <= 0 {
		c.MaxMarkersOnMap = d.MaxMarkersOnMap
	}
	if c.DebounceDelayMs <= 0 {
		c.DebounceDelayMs = d.DebounceDelayMs
	}
	if c.DefaultRegion.IsZero() {
		c.DefaultRegion = d.DefaultRegion
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}

	if len(c.Calendar.Sources) == 0 {
		c.Calendar.Sources = d.Calendar.Sources
	}
	for i, s := range c.Calendar.Sources {
		c.Calendar.Sources[i] = strings.ToLower(strings.TrimSpace(s))
	}
	if c.Calendar.ICS == nil {
		c.Calendar.ICS = []ICSConfig{}
	}
	if c.Calendar.CacheDir == "" {
		c.Calendar.CacheDir = d.Calendar.CacheDir
	}
	if c.Calendar.HorizonDays <= 0 {
		c.Calendar.HorizonDays = d.Calendar.HorizonDays
	}
	if c.Calendar.Timeout <= 0 {
		c.Calendar.Timeout = d.Calendar.Timeout
	}

	g := &c.Geocoding
	if g.Country == "" {
		g.Country = d.Geocoding.Country
	}
	g.Country = strings.ToLower(g.Country)
	if g.Concurrency <= 0 {
		g.Concurrency = 1
	}
	if g.Timeout <= 0 {
		g.Timeout = d.Geocoding.Timeout
	}
	if g.MaxRetries < 0 {
		g.MaxRetries = 0
	}
	if g.Backoff <= 0 {
		g.Backoff = d.Geocoding.Backoff
	}
	if g.MaxBackoff < g.Backoff {
		g.MaxBackoff = g.Backoff
	}
	if g.Providers == nil {
		g.Providers = d.Geocoding.Providers
	}
	for i := range g.Providers {
		g.Providers[i].Type = strings.ToLower(strings.TrimSpace(g.Providers[i].Type))
	}
	if g.Cache.Driver == "" {
		g.Cache.Driver = d.Geocoding.Cache.Driver
	}
	if g.Cache.Path == "" {
		g.Cache.Path = d.Geocoding.Cache.Path
	}
	if g.Cache.TTL <= 0 {
		g.Cache.TTL = d.Geocoding.Cache.TTL
	}

	if c.RateLimit.Rate <= 0 {
		c.RateLimit.Rate = d.RateLimit.Rate
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = d.RateLimit.Burst
	}
}

// FieldError reports one invalid configuration value.
type FieldError struct {
	Field string
	Msg   string
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// Validate checks values Normalize cannot repair.
func (c *Config) Validate() []FieldError {
	var errs []FieldError

	for i, s := range c.Calendar.Sources {
		switch s {
		case SourceLocal, SourceGoogle, SourceICS:
		default:
			errs = append(errs, FieldError{fmt.Sprintf("calendar.sources[%d]", i), fmt.Sprintf("unknown source %q", s)})
		}
	}
	for i, p := range c.Geocoding.Providers {
		switch p.Type {
		case ProviderGoogle, ProviderNominatim, ProviderPostcodesIO:
		default:
			errs = append(errs, FieldError{fmt.Sprintf("geocoding.providers[%d].type", i), fmt.Sprintf("unknown provider %q", p.Type)})
		}
	}
	switch c.Geocoding.Cache.Driver {
	case CacheSQLite, CacheNone:
	case CachePostgres:
		if c.Geocoding.Cache.DSN == "" {
			errs = append(errs, FieldError{"geocoding.cache.dsn", "required for postgres driver"})
		}
	default:
		errs = append(errs, FieldError{"geocoding.cache.driver", fmt.Sprintf("unknown driver %q", c.Geocoding.Cache.Driver)})
	}
	if c.DefaultRegion.Lat < -90 || c.DefaultRegion.Lat > 90 {
		errs = append(errs, FieldError{"default_region.lat", "must be within [-90, 90]"})
	}
	if c.DefaultRegion.Lng < -180 || c.DefaultRegion.Lng > 180 {
		errs = append(errs, FieldError{"default_region.lng", "must be within [-180, 180]"})
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, FieldError{"timezone", err.Error()})
	}
	return errs
}

// Location returns the display timezone, or time.Local if it cannot be loaded.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// DebounceDelay returns DebounceDelayMs as a duration.
func (c *Config) DebounceDelay() time.Duration {
	return time.Duration(c.DebounceDelayMs) * time.Millisecond
}

// IsPlaceholder reports whether an API key was left unset or at its template value.
func IsPlaceholder(key string) bool {
	k := strings.TrimSpace(key)
	if k == "" {
		return true
	}
	u := strings.ToUpper(k)
	return u == "CHANGEME" || strings.HasPrefix(u, "YOUR_")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: write a default config with 0600 perms
//     and return it.
//   - If the file exists: unmarshal over the defaults, so keys absent from
//     the file keep their default value, then normalize.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventmap-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
