// Package app ties the pipeline together: it loads and normalizes the
// calendar, holds the canonical and filtered event sets, and sequences
// searches so that only the latest dispatched one is applied.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"eventmap/internal/calendar"
	"eventmap/internal/debounce"
	"eventmap/internal/filter"
	appLog "eventmap/internal/log"
	"eventmap/internal/metrics"
	"eventmap/internal/model"
)

const searchKey = "search"

// ItemLoader fetches raw calendar items.
type ItemLoader interface {
	Load(ctx context.Context) (calendar.LoadResult, error)
}

// EventNormalizer turns raw items into canonical events.
type EventNormalizer interface {
	Normalize(ctx context.Context, items []model.CalendarItem) []model.Event
}

// Filterer runs one filter pass, resolving the search origin if needed.
type Filterer interface {
	Run(ctx context.Context, events []model.Event, c filter.Criteria) filter.Result
}

// Snapshot is one canonical event set. It is replaced wholesale on reload
// and never modified after it is published.
type Snapshot struct {
	LoadID   string        `json:"loadId"`
	LoadedAt time.Time     `json:"loadedAt"`
	Source   string        `json:"source"`
	Events   []model.Event `json:"events"`
}

// View is one applied filter pass over a Snapshot.
type View struct {
	Seq      uint64          `json:"seq"`
	LoadID   string          `json:"loadId"`
	Criteria filter.Criteria `json:"criteria"`
	filter.Result
}

type Options struct {
	// Context is the parent of debounced searches.
	Context       context.Context
	DebounceDelay time.Duration
	Notifier      Notifier
	Scheduler     *debounce.Scheduler
	Now           func() time.Time
}

// App owns the shared state. Readers always see a whole Snapshot or View.
type App struct {
	loader     ItemLoader
	normalizer EventNormalizer
	filters    Filterer

	notifier  Notifier
	scheduler *debounce.Scheduler
	delay     time.Duration
	ctx       context.Context
	now       func() time.Time

	events atomic.Pointer[Snapshot]
	view   atomic.Pointer[View]
	last   atomic.Pointer[Notification]
	busy   atomic.Int32

	// mu guards criteria, seq and the publish of view.
	mu       sync.Mutex
	criteria filter.Criteria
	seq      uint64

	reloadMu sync.Mutex
}

func New(loader ItemLoader, normalizer EventNormalizer, filters Filterer, opts Options) *App {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = debounce.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	a := &App{
		loader:     loader,
		normalizer: normalizer,
		filters:    filters,
		notifier:   opts.Notifier,
		scheduler:  opts.Scheduler,
		delay:      opts.DebounceDelay,
		ctx:        opts.Context,
		now:        opts.Now,
		criteria:   filter.Criteria{QuickRange: filter.RangeAll},
	}
	a.events.Store(&Snapshot{Events: []model.Event{}})
	a.view.Store(&View{
		Criteria: a.criteria,
		Result:   filter.Result{Events: []model.Event{}, Annotations: map[int]model.SearchAnnotation{}},
	})
	return a
}

// Reload loads, normalizes and publishes a new canonical set, then re-runs
// the current filters over it. When no calendar source is available the
// previous set stays in place and a warning is raised.
func (a *App) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	a.setBusy(true)
	defer a.setBusy(false)

	res, err := a.loader.Load(ctx)
	if err != nil {
		prev := a.events.Load()
		appLog.Warn("calendar load failed; keeping previous events", "events", len(prev.Events), "err", err.Error())
		if prev.LoadID == "" {
			a.notify("Unable to load events", LevelWarn)
		} else {
			a.notify(fmt.Sprintf("Unable to refresh events; showing %d previously loaded", len(prev.Events)), LevelWarn)
		}
		return err
	}

	events := a.normalizer.Normalize(ctx, res.Items)
	if err := ctx.Err(); err != nil {
		return err
	}

	snap := &Snapshot{
		LoadID:   uuid.NewString(),
		LoadedAt: a.now(),
		Source:   res.Source,
		Events:   events,
	}
	a.events.Store(snap)
	metrics.LoadedEvents.Set(float64(len(events)))
	metrics.LastLoadTimestamp.Set(float64(snap.LoadedAt.Unix()))
	appLog.Info("events published", "load_id", snap.LoadID, "source", snap.Source, "items", len(res.Items), "events", len(events))

	a.dispatch(ctx, nil)
	a.notify(fmt.Sprintf("Loaded %d events", len(events)), LevelInfo)
	return nil
}

// Search sets the search text. Unless immediate, the filter pass runs once
// the query has been quiet for the debounce delay; until then the session
// keeps filtering with the previous text.
func (a *App) Search(query string, immediate bool) {
	delay := a.delay
	if immediate {
		delay = 0
	}
	a.scheduler.Schedule(searchKey, delay, func() {
		a.dispatch(a.ctx, func(c *filter.Criteria) { c.SearchText = query })
	})
}

// SetFilters replaces the category and date filters and re-runs filtering
// synchronously. The search text is left alone.
func (a *App) SetFilters(ctx context.Context, category, exactDate string, quick filter.Range) View {
	return a.dispatch(ctx, func(c *filter.Criteria) {
		c.Category = category
		c.ExactDate = exactDate
		c.QuickRange = filter.ParseRange(string(quick))
	})
}

// Filter runs a one-off pass over the current snapshot without touching the
// session state.
func (a *App) Filter(ctx context.Context, c filter.Criteria) (filter.Result, *Snapshot) {
	snap := a.events.Load()
	return a.filters.Run(ctx, snap.Events, c), snap
}

// dispatch applies update to the session criteria, takes the next sequence
// number and runs a filter pass. The result is published only if no later
// pass was dispatched in the meantime.
func (a *App) dispatch(ctx context.Context, update func(*filter.Criteria)) View {
	a.mu.Lock()
	if update != nil {
		update(&a.criteria)
	}
	a.seq++
	seq := a.seq
	c := a.criteria
	a.mu.Unlock()

	snap := a.events.Load()
	v := &View{Seq: seq, LoadID: snap.LoadID, Criteria: c, Result: a.filters.Run(ctx, snap.Events, c)}

	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.seq {
		appLog.Debug("stale search result discarded", "seq", seq, "latest", a.seq, "q", c.SearchText)
		return *v
	}
	a.view.Store(v)
	return *v
}

// Snapshot returns the current canonical set.
func (a *App) Snapshot() *Snapshot {
	return a.events.Load()
}

// View returns the last applied filter pass.
func (a *App) View() *View {
	return a.view.Load()
}

// Event looks up an event of the current set by ID.
func (a *App) Event(id int) (model.Event, bool) {
	for _, e := range a.events.Load().Events {
		if e.ID == id {
			return e, true
		}
	}
	return model.Event{}, false
}

// Criteria returns the session's current filters.
func (a *App) Criteria() filter.Criteria {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.criteria
}

// SearchPending reports whether a debounced search has not fired yet.
func (a *App) SearchPending() bool {
	return a.scheduler.Pending(searchKey)
}

func (a *App) Busy() bool {
	return a.busy.Load() > 0
}

// LastNotification returns the most recent notification, or nil.
func (a *App) LastNotification() *Notification {
	return a.last.Load()
}

// Close cancels pending debounced work.
func (a *App) Close() {
	a.scheduler.Stop()
}

func (a *App) setBusy(b bool) {
	var n int32
	if b {
		n = a.busy.Add(1)
	} else {
		n = a.busy.Add(-1)
	}
	if (b && n == 1) || (!b && n == 0) {
		a.notifier.SetBusy(b)
	}
}

func (a *App) notify(msg string, level Level) {
	a.last.Store(&Notification{Message: msg, Level: level, At: a.now()})
	a.notifier.Notify(msg, level)
}
