package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "eventmap/internal/log"
	"eventmap/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ICSSource reads ICS subscriptions and expands recurrences over
// [today, today+horizonDays] into single calendar items.
type ICSSource struct {
	feeds   []Feed
	fetcher *Fetcher
	loc     *time.Location
	horizon int
	now     func() time.Time
}

func NewICSSource(feeds []Feed, fetcher *Fetcher, loc *time.Location, horizonDays int, now func() time.Time) *ICSSource {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	if horizonDays <= 0 {
		horizonDays = 90
	}
	return &ICSSource{feeds: feeds, fetcher: fetcher, loc: loc, horizon: horizonDays, now: now}
}

func (s *ICSSource) Name() string { return "ics" }

func (s *ICSSource) Load(ctx context.Context, max int) ([]model.CalendarItem, error) {
	if len(s.feeds) == 0 {
		return nil, fmt.Errorf("ics: %w: no feeds", ErrNotConfigured)
	}

	results, errs := s.fetcher.FetchAll(ctx, s.feeds)
	if len(results) == 0 {
		return nil, fmt.Errorf("ics: all feeds failed: %w", errors.Join(errs...))
	}

	var events []vevent
	for _, res := range results {
		evs, err := parseFeed(res.Feed, res.Body)
		if err != nil {
			appLog.Error("ics parse failed", err, "id", res.Feed.ID, "url", redactURL(res.Feed.URL))
			continue
		}
		events = append(events, evs...)
	}

	from := startOfDay(s.now(), s.loc)
	items, err := expand(events, expandWindow{
		Loc:   s.loc,
		Start: from,
		End:   from.AddDate(0, 0, s.horizon),
	})
	if err != nil {
		return nil, err
	}
	if max > 0 && len(items) > max {
		items = items[:max]
	}
	return items, nil
}

// expandWindow bounds recurrence expansion.
type expandWindow struct {
	Loc        *time.Location
	Start, End time.Time
	// MaxPerEvent caps occurrences of one series; zero means the default.
	MaxPerEvent int
}

// expand turns VEVENTs into single calendar items inside w, sorted by start.
// It applies RRULE, EXDATE and RECURRENCE-ID overrides.
func expand(events []vevent, w expandWindow) ([]model.CalendarItem, error) {
	if w.End.Before(w.Start) {
		return nil, errors.New("expand: window end is before start")
	}
	if w.Loc == nil {
		w.Loc = time.Local
	}
	if w.MaxPerEvent <= 0 {
		w.MaxPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make(map[string][]vevent)
	overrides := make(map[string][]vevent)
	var uids []string
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			uids = append(uids, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	type occurrence struct {
		start time.Time
		item  model.CalendarItem
	}
	var all []occurrence

	for _, uid := range uids {
		for _, ev := range bases[uid] {
			for _, o := range expandOne(ev, overrides[uid], w) {
				all = append(all, occurrence{start: o.start, item: o.toItem(w.Loc)})
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].start.Before(all[j].start) })
	items := make([]model.CalendarItem, 0, len(all))
	for _, o := range all {
		items = append(items, o.item)
	}
	return items, nil
}

// instance is one concrete occurrence of a VEVENT.
type instance struct {
	ev         vevent
	start, end time.Time
	recurring  bool
}

func expandOne(ev vevent, overrides []vevent, w expandWindow) []instance {
	if ev.RawRRule == "" {
		if !overlaps(ev.Start, ev.End, w.Start, w.End) {
			return nil
		}
		if o, ok := findOverride(overrides, ev.Start); ok {
			return []instance{{ev: o, start: o.Start, end: o.End}}
		}
		return []instance{{ev: ev, start: ev.Start, end: ev.End}}
	}

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("ics rrule parse failed", "uid", ev.UID, "rrule", ev.RawRRule, "err", err.Error())
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	times := set.Between(w.Start.In(ev.Start.Location()), w.End.In(ev.Start.Location()), true)
	if len(times) > w.MaxPerEvent {
		appLog.Warn("ics occurrences truncated", "uid", ev.UID, "cap", w.MaxPerEvent)
		times = times[:w.MaxPerEvent]
	}

	dur := ev.End.Sub(ev.Start)
	out := make([]instance, 0, len(times))
	for _, start := range times {
		end := start.Add(dur)
		if ev.AllDay {
			start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
			end = start.AddDate(0, 0, 1)
		}
		if o, ok := findOverride(overrides, start); ok {
			out = append(out, instance{ev: o, start: o.Start, end: o.End, recurring: true})
			continue
		}
		out = append(out, instance{ev: ev, start: start, end: end, recurring: true})
	}
	return out
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []vevent, start time.Time) (vevent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return vevent{}, false
}

// toItem maps an instance to the Calendar API item shape. All-day dates keep
// their calendar day; timed values are rendered in loc.
func (in instance) toItem(loc *time.Location) model.CalendarItem {
	item := model.CalendarItem{
		ID:          in.ev.UID + "_" + in.start.UTC().Format("20060102T150405Z"),
		Summary:     in.ev.Summary,
		Description: in.ev.Description,
		Location:    in.ev.Location,
	}
	if in.recurring {
		item.RecurringEventID = in.ev.UID
	}
	if in.ev.AllDay {
		item.Start = model.CalendarTime{Date: in.start.Format("2006-01-02")}
		item.End = model.CalendarTime{Date: in.end.Format("2006-01-02")}
	} else {
		item.Start = model.CalendarTime{DateTime: in.start.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
		item.End = model.CalendarTime{DateTime: in.end.In(loc).Format(time.RFC3339), TimeZone: loc.String()}
	}
	return item
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
