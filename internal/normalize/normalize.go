// Package normalize turns raw calendar items into canonical events: it drops
// excluded, past and administrative items, cleans the text, derives
// categories and display times, and resolves coordinates.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"eventmap/internal/categorize"
	"eventmap/internal/geo"
	appLog "eventmap/internal/log"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
	"eventmap/internal/sanitize"
)

// Item outcomes, also used as metric labels.
const (
	OutcomeIncluded     = "included"
	OutcomeExcluded     = "excluded"
	OutcomePast         = "past"
	OutcomeAdmin        = "admin"
	OutcomeUnresolvable = "unresolvable"
	OutcomeMalformed    = "malformed"
)

const (
	allDayLabel = "All day"
	noTimeLabel = "Time TBD"
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"

	// adminMarker flags non-event entries such as notices pinned in the feed.
	adminMarker = "useful information"
)

var errMissingStart = errors.New("item has no start date")

// LocationResolver places a location string on the map. It never fails.
type LocationResolver interface {
	Resolve(ctx context.Context, text, hint string) geo.Result
}

// Categorizer derives tags from title and description.
type Categorizer interface {
	Categorize(title, description string) categorize.Result
}

// Options configure a Normalizer.
type Options struct {
	// ExcludeRecurringIDs drops every instance of these series.
	ExcludeRecurringIDs []string
	Location            *time.Location
	// Concurrency is how many items are resolved at once; 1 keeps it sequential.
	Concurrency int
	Now         func() time.Time
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	sanitizer   sanitize.Sanitizer
	categorizer Categorizer
	resolver    LocationResolver
	excluded    map[string]struct{}
	loc         *time.Location
	concurrency int
	now         func() time.Time
}

func New(s sanitize.Sanitizer, c Categorizer, r LocationResolver, opts Options) *Normalizer {
	if s == nil {
		s = sanitize.Default{}
	}
	if c == nil {
		c = categorize.New()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	excluded := make(map[string]struct{}, len(opts.ExcludeRecurringIDs))
	for _, id := range opts.ExcludeRecurringIDs {
		if id = strings.TrimSpace(id); id != "" {
			excluded[id] = struct{}{}
		}
	}
	return &Normalizer{
		sanitizer:   s,
		categorizer: c,
		resolver:    r,
		excluded:    excluded,
		loc:         opts.Location,
		concurrency: opts.Concurrency,
		now:         opts.Now,
	}
}

type outcome struct {
	event model.Event
	kind  string
}

// Normalize builds the canonical event set. IDs are 1-based in input order of
// included items, independent of how concurrent resolution completes; the
// result is then stably sorted by date.
func (n *Normalizer) Normalize(ctx context.Context, items []model.CalendarItem) []model.Event {
	now := n.now().In(n.loc)
	today := now.Format(dateLayout)
	outcomes := make([]outcome, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for i := range items {
		i := i
		g.Go(func() error {
			outcomes[i] = n.process(gctx, items[i], now, today)
			return nil
		})
	}
	_ = g.Wait()

	events := make([]model.Event, 0, len(items))
	counts := map[string]int{}
	for _, o := range outcomes {
		counts[o.kind]++
		metrics.NormalizeOutcomes.WithLabelValues(o.kind).Inc()
		if o.kind != OutcomeIncluded {
			continue
		}
		o.event.ID = len(events) + 1
		events = append(events, o.event)
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Date < events[j].Date })

	appLog.Info("normalize completed",
		"items", len(items),
		"included", counts[OutcomeIncluded],
		"excluded", counts[OutcomeExcluded],
		"past", counts[OutcomePast],
		"admin", counts[OutcomeAdmin],
		"malformed", counts[OutcomeMalformed],
		"unresolvable", counts[OutcomeUnresolvable],
	)
	return events
}

// process runs one item through the drop checks and the transform. A failure
// only drops this item.
func (n *Normalizer) process(ctx context.Context, item model.CalendarItem, now time.Time, today string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			appLog.Warn("calendar item dropped", "id", item.ID, "summary", item.Summary, "err", fmt.Sprint(r))
			out = outcome{kind: OutcomeMalformed}
		}
	}()

	if _, ok := n.excluded[item.RecurringEventID]; ok && item.RecurringEventID != "" {
		return outcome{kind: OutcomeExcluded}
	}

	when, err := n.parseTimes(item)
	if err != nil {
		appLog.Warn("calendar item dropped", "id", item.ID, "summary", item.Summary, "err", err.Error())
		return outcome{kind: OutcomeMalformed}
	}
	if when.date < today {
		return outcome{kind: OutcomePast}
	}

	title := n.sanitizer.Text(item.Summary)
	if strings.Contains(strings.ToLower(title), adminMarker) {
		return outcome{kind: OutcomeAdmin}
	}

	ev := model.Event{
		Title:       title,
		Description: n.sanitizer.HTML(item.Description),
		Location:    n.sanitizer.Text(item.Location),
		Date:        when.date,
		AllDay:      when.allDay,
		StartTime:   when.startClock,
		EndTime:     when.endClock,
		Time:        displayTime(when),
	}

	cat := n.categorizer.Categorize(ev.Title, ev.Description)
	ev.Category = cat.Primary
	ev.Categories = cat.Tags

	hint := ""
	if ev.Location == "" {
		hint = ev.Title
	}
	res := n.resolver.Resolve(ctx, ev.Location, hint)
	ev.Lat, ev.Lng = res.Lat, res.Lng

	ev.IsElapsed = when.date == today && now.After(when.end)

	if res.IsZero() {
		appLog.Warn("calendar item dropped: unresolvable location", "id", item.ID, "location", ev.Location)
		return outcome{kind: OutcomeUnresolvable}
	}
	return outcome{event: ev, kind: OutcomeIncluded}
}

// times is the parsed schedule of one item.
type times struct {
	date       string
	allDay     bool
	startClock *string
	endClock   *string
	// end is the instant after which the event counts as elapsed.
	end time.Time
}

func (n *Normalizer) parseTimes(item model.CalendarItem) (times, error) {
	var t times
	switch {
	case item.Start.DateTime != "":
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return t, fmt.Errorf("start: %w", err)
		}
		start = start.In(n.loc)
		t.date = start.Format(dateLayout)
		s := start.Format(clockLayout)
		t.startClock = &s
		t.end = start

		if item.End.DateTime != "" {
			end, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				return t, fmt.Errorf("end: %w", err)
			}
			end = end.In(n.loc)
			e := end.Format(clockLayout)
			t.endClock = &e
			if end.After(start) {
				t.end = end
			}
		}
	case item.Start.Date != "":
		day, err := time.ParseInLocation(dateLayout, item.Start.Date, n.loc)
		if err != nil {
			return t, fmt.Errorf("start: %w", err)
		}
		t.date = day.Format(dateLayout)
		t.allDay = true
		t.end = time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, n.loc)
	default:
		return t, errMissingStart
	}
	return t, nil
}

// displayTime renders "All day", "start - end", a single time, or "Time TBD".
func displayTime(t times) string {
	if t.allDay {
		return allDayLabel
	}
	switch {
	case t.startClock != nil && t.endClock != nil && *t.startClock != *t.endClock:
		return *t.startClock + " - " + *t.endClock
	case t.startClock != nil:
		return *t.startClock
	case t.endClock != nil:
		return *t.endClock
	default:
		return noTimeLabel
	}
}
