// Package calendar loads raw calendar items from a chain of sources: a local
// JSON export, the Google Calendar API and ICS subscriptions.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eventmap/internal/config"
	appLog "eventmap/internal/log"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
)

var (
	// ErrNotConfigured means the source lacks a file, URL or usable API key.
	// The loader moves on to the next source.
	ErrNotConfigured = errors.New("calendar source not configured")
	// ErrNoSource means every configured source failed.
	ErrNoSource = errors.New("no calendar source available")
)

// Source produces raw calendar items. max bounds the number of items.
type Source interface {
	Name() string
	Load(ctx context.Context, max int) ([]model.CalendarItem, error)
}

// LoadResult is the outcome of one Loader.Load.
type LoadResult struct {
	Items []model.CalendarItem
	// Source is the name of the source that produced Items.
	Source string
}

// Loader tries its sources in order. The first source that returns without
// error wins, even with zero items.
type Loader struct {
	sources []Source
	max     int
}

func NewLoader(max int, sources ...Source) *Loader {
	return &Loader{sources: sources, max: max}
}

// NewLoaderFromConfig builds the sources named in cfg.Calendar.Sources, in order.
func NewLoaderFromConfig(cfg *config.Config, now func() time.Time) (*Loader, error) {
	if now == nil {
		now = time.Now
	}
	cc := cfg.Calendar
	var sources []Source
	for _, name := range cc.Sources {
		switch name {
		case config.SourceLocal:
			sources = append(sources, NewLocalSource(cc.LocalPath))
		case config.SourceGoogle:
			sources = append(sources, NewGoogleSource(cc.Google, cc.Timeout, cfg.Location(), now))
		case config.SourceICS:
			feeds := make([]Feed, 0, len(cc.ICS))
			for _, ic := range cc.ICS {
				feeds = append(feeds, Feed{ID: ic.ID, URL: ic.URL})
			}
			sources = append(sources, NewICSSource(feeds, NewFetcher(cc.CacheDir, cc.Timeout), cfg.Location(), cc.HorizonDays, now))
		default:
			return nil, fmt.Errorf("unknown calendar source: %s", name)
		}
	}
	return NewLoader(cfg.MaxEvents, sources...), nil
}

// Load returns the items of the first source that succeeds, capped at max.
// When all sources fail the error wraps ErrNoSource and every source error.
func (l *Loader) Load(ctx context.Context) (LoadResult, error) {
	errs := []error{ErrNoSource}
	for _, src := range l.sources {
		items, err := src.Load(ctx, l.max)
		if err != nil {
			status := "error"
			if errors.Is(err, ErrNotConfigured) {
				status = "not_configured"
				appLog.Info("calendar source skipped", "source", src.Name(), "reason", err.Error())
			} else {
				appLog.Error("calendar source failed", err, "source", src.Name())
			}
			metrics.CalendarLoads.WithLabelValues(src.Name(), status).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		metrics.CalendarLoads.WithLabelValues(src.Name(), "ok").Inc()
		if l.max > 0 && len(items) > l.max {
			items = items[:l.max]
		}
		appLog.Info("calendar loaded", "source", src.Name(), "items", len(items))
		return LoadResult{Items: items, Source: src.Name()}, nil
	}
	return LoadResult{Items: []model.CalendarItem{}}, errors.Join(errs...)
}

// startOfDay returns local midnight of t in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// redactURL hides the path and query of a URL for logging:
//
//	https://example.com/path/to/private.ics?token=abcd -> https://example.com/...(redacted)
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "url://...(redacted)"
	}
	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}
	return u[:j] + redactedSuffix
}
