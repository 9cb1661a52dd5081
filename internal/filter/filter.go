// Package filter derives the displayed event set from the canonical one:
// text or location search, category, exact date and quick date range.
package filter

import (
	"context"
	"sort"
	"strings"
	"time"

	"eventmap/internal/geo"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
)

// Range is a quick date bucket applied after the other filters.
type Range string

const (
	RangeAll   Range = "all"
	RangeToday Range = "today"
	RangeWeek  Range = "week"
	RangeMonth Range = "month"
)

// ParseRange maps unknown or empty values to RangeAll.
func ParseRange(s string) Range {
	switch r := Range(strings.ToLower(strings.TrimSpace(s))); r {
	case RangeToday, RangeWeek, RangeMonth:
		return r
	default:
		return RangeAll
	}
}

// Criteria are the active filters. Empty fields match everything.
type Criteria struct {
	SearchText string `json:"q"`
	Category   string `json:"category"`
	// ExactDate is YYYY-MM-DD.
	ExactDate  string `json:"date"`
	QuickRange Range  `json:"range"`
}

// Result is one filter pass.
type Result struct {
	Events []model.Event `json:"events"`
	// Annotations is keyed by event ID and only set for location searches.
	Annotations map[int]model.SearchAnnotation `json:"annotations"`
	Origin      *model.SearchOrigin            `json:"origin,omitempty"`
}

// OriginResolver resolves a search query to a location origin, or nil.
type OriginResolver interface {
	ResolveOrigin(ctx context.Context, query string) *model.SearchOrigin
}

// Engine resolves the search origin and applies the filters.
type Engine struct {
	origins OriginResolver
	loc     *time.Location
	now     func() time.Time
}

func NewEngine(origins OriginResolver, loc *time.Location, now func() time.Time) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{origins: origins, loc: loc, now: now}
}

// Run resolves the origin of c.SearchText (which may hit the network) and
// applies the filters.
func (e *Engine) Run(ctx context.Context, events []model.Event, c Criteria) Result {
	started := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(started).Seconds()) }()

	var origin *model.SearchOrigin
	if q := strings.TrimSpace(c.SearchText); q != "" && e.origins != nil {
		origin = e.origins.ResolveOrigin(ctx, q)
	}
	return Apply(events, c, origin, e.now().In(e.loc))
}

// Apply filters events. With a non-nil origin an event matches the search
// when it lies within origin.RadiusKm or matches the text; the result is then
// stably sorted by distance. today supplies the date for quick ranges.
func Apply(events []model.Event, c Criteria, origin *model.SearchOrigin, today time.Time) Result {
	res := Result{Events: make([]model.Event, 0, len(events)), Annotations: map[int]model.SearchAnnotation{}, Origin: origin}
	query := strings.ToLower(strings.TrimSpace(c.SearchText))
	lo, hi, bounded := quickBounds(c.QuickRange, today)

	for _, ev := range events {
		textHit := query == "" || matchesText(ev, query)
		var ann model.SearchAnnotation
		if origin != nil {
			ann = model.SearchAnnotation{
				DistanceKm:        geo.DistanceKm(origin.Coordinate(), ev.Coordinate()),
				RadiusKm:          origin.RadiusKm,
				IsPartialPostcode: origin.Kind == model.SearchPartialPostcode,
				IsPlaceSearch:     origin.Kind == model.SearchPlace,
			}
			if !textHit && ann.DistanceKm > origin.RadiusKm {
				continue
			}
		} else if !textHit {
			continue
		}
		if !matchesCategory(ev, c.Category) {
			continue
		}
		if c.ExactDate != "" && ev.Date != c.ExactDate {
			continue
		}
		if bounded && (ev.Date < lo || ev.Date > hi) {
			continue
		}
		if origin != nil {
			res.Annotations[ev.ID] = ann
		}
		res.Events = append(res.Events, ev)
	}

	if origin != nil {
		sort.SliceStable(res.Events, func(i, j int) bool {
			return res.Annotations[res.Events[i].ID].DistanceKm < res.Annotations[res.Events[j].ID].DistanceKm
		})
	}
	return res
}

func matchesText(ev model.Event, q string) bool {
	return strings.Contains(strings.ToLower(ev.Title), q) ||
		strings.Contains(strings.ToLower(ev.Description), q) ||
		strings.Contains(strings.ToLower(ev.Location), q)
}

// matchesCategory checks the primary category and the full tag set.
func matchesCategory(ev model.Event, category string) bool {
	if category == "" || category == ev.Category {
		return true
	}
	for _, c := range ev.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// quickBounds returns the inclusive date bounds of r as YYYY-MM-DD strings.
func quickBounds(r Range, today time.Time) (lo, hi string, bounded bool) {
	const layout = "2006-01-02"
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	lo = day.Format(layout)
	switch ParseRange(string(r)) {
	case RangeToday:
		return lo, lo, true
	case RangeWeek:
		return lo, day.AddDate(0, 0, 7).Format(layout), true
	case RangeMonth:
		return lo, day.AddDate(0, 1, 0).Format(layout), true
	default:
		return "", "", false
	}
}
