package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eventmap/internal/calendar"
	"eventmap/internal/debounce"
	"eventmap/internal/filter"
	"eventmap/internal/model"
)

var today = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeLoader struct {
	mu    sync.Mutex
	items []model.CalendarItem
	err   error
	calls int
}

func (f *fakeLoader) Load(context.Context) (calendar.LoadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return calendar.LoadResult{Items: []model.CalendarItem{}}, f.err
	}
	return calendar.LoadResult{Items: f.items, Source: "local"}, nil
}

// passNormalizer keeps every item, dated by Start.Date.
type passNormalizer struct{}

func (passNormalizer) Normalize(_ context.Context, items []model.CalendarItem) []model.Event {
	out := make([]model.Event, 0, len(items))
	for i, it := range items {
		out = append(out, model.Event{
			ID: i + 1, Title: it.Summary, Location: it.Location, Date: it.Start.Date,
			Category: model.CategoryOther, Lat: 54.97, Lng: -1.61,
		})
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Notification
	busy []bool
}

func (r *recordingNotifier) Notify(msg string, level Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Notification{Message: msg, Level: level})
}

func (r *recordingNotifier) SetBusy(b bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.busy = append(r.busy, b)
}

// blockingOrigins blocks ResolveOrigin for queries listed in gates.
type blockingOrigins struct {
	started chan string
	gates   map[string]chan struct{}
}

func (b *blockingOrigins) ResolveOrigin(_ context.Context, q string) *model.SearchOrigin {
	if g, ok := b.gates[q]; ok {
		b.started <- q
		<-g
	}
	return nil
}

type fakeTimer struct {
	mu      sync.Mutex
	stopped bool
	fn      func()
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *fakeTimers) AfterFunc(_ time.Duration, fn func()) debounce.TimerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeTimers) FireAll() {
	f.mu.Lock()
	timers := append([]*fakeTimer(nil), f.timers...)
	f.mu.Unlock()
	for _, t := range timers {
		t.mu.Lock()
		stopped := t.stopped
		t.mu.Unlock()
		if !stopped {
			t.fn()
		}
	}
}

func sampleItems() []model.CalendarItem {
	return []model.CalendarItem{
		{Summary: "Breakfast Club", Location: "Durham", Start: model.CalendarTime{Date: "2026-03-10"}},
		{Summary: "Quiz night", Location: "Alnwick", Start: model.CalendarTime{Date: "2026-03-12"}},
		{Summary: "Golf day", Location: "Hexham", Start: model.CalendarTime{Date: "2026-04-20"}},
	}
}

func newTestApp(loader ItemLoader, origins filter.OriginResolver, n Notifier, ft *fakeTimers) *App {
	engine := filter.NewEngine(origins, time.UTC, func() time.Time { return today })
	opts := Options{DebounceDelay: 300 * time.Millisecond, Notifier: n, Now: func() time.Time { return today }}
	if ft != nil {
		opts.Scheduler = debounce.New(debounce.WithAfterFunc(ft.AfterFunc))
	}
	return New(loader, passNormalizer{}, engine, opts)
}

func titles(events []model.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Title)
	}
	return out
}

func TestReload_PublishesSnapshotAndView(t *testing.T) {
	n := &recordingNotifier{}
	a := newTestApp(&fakeLoader{items: sampleItems()}, nil, n, nil)

	if err := a.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	snap := a.Snapshot()
	if snap.LoadID == "" || snap.Source != "local" || len(snap.Events) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if v := a.View(); len(v.Events) != 3 || v.LoadID != snap.LoadID || v.Seq == 0 {
		t.Errorf("view = %+v", v)
	}
	if len(n.msgs) != 1 || n.msgs[0].Message != "Loaded 3 events" || n.msgs[0].Level != LevelInfo {
		t.Errorf("notifications = %+v", n.msgs)
	}
	if len(n.busy) != 2 || !n.busy[0] || n.busy[1] {
		t.Errorf("busy = %v", n.busy)
	}
	if a.Busy() {
		t.Error("still busy after Reload")
	}

	first := snap.LoadID
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if a.Snapshot().LoadID == first {
		t.Error("reload reused the load id")
	}
}

func TestReload_NoSourceKeepsPrevious(t *testing.T) {
	loader := &fakeLoader{items: sampleItems()}
	n := &recordingNotifier{}
	a := newTestApp(loader, nil, n, nil)
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	prev := a.Snapshot()

	loader.err = errors.Join(calendar.ErrNoSource, errors.New("local: missing"))
	err := a.Reload(context.Background())
	if !errors.Is(err, calendar.ErrNoSource) {
		t.Fatalf("err = %v", err)
	}
	if a.Snapshot() != prev {
		t.Error("snapshot replaced after failed load")
	}
	last := a.LastNotification()
	if last == nil || last.Level != LevelWarn {
		t.Errorf("last notification = %+v", last)
	}
}

func TestReload_FirstLoadFailureLeavesEmptySet(t *testing.T) {
	a := newTestApp(&fakeLoader{err: calendar.ErrNoSource}, nil, &recordingNotifier{}, nil)
	if err := a.Reload(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s := a.Snapshot(); s.LoadID != "" || len(s.Events) != 0 {
		t.Errorf("snapshot = %+v", s)
	}
	if v := a.View(); v.Events == nil {
		t.Error("initial view has nil events")
	}
}

func TestSearch_Debounced(t *testing.T) {
	ft := &fakeTimers{}
	a := newTestApp(&fakeLoader{items: sampleItems()}, nil, &recordingNotifier{}, ft)
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := a.View().Seq

	for _, q := range []string{"q", "qu", "qui", "quiz"} {
		a.Search(q, false)
	}
	if !a.SearchPending() {
		t.Fatal("search not pending")
	}
	if a.View().Seq != before {
		t.Fatal("filter ran before the debounce delay")
	}

	ft.FireAll()
	v := a.View()
	if v.Seq != before+1 {
		t.Errorf("seq = %d, want one dispatch after %d", v.Seq, before)
	}
	if got := titles(v.Events); len(got) != 1 || got[0] != "Quiz night" {
		t.Errorf("events = %v", got)
	}
	if v.Criteria.SearchText != "quiz" {
		t.Errorf("criteria = %+v", v.Criteria)
	}
}

func TestSearch_PendingQueryNotAppliedEarly(t *testing.T) {
	ft := &fakeTimers{}
	a := newTestApp(&fakeLoader{items: sampleItems()}, nil, &recordingNotifier{}, ft)
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	a.Search("qu", false)
	if got := a.Criteria().SearchText; got != "" {
		t.Errorf("criteria took the pending query %q", got)
	}
	v := a.SetFilters(context.Background(), "", "", filter.RangeAll)
	if v.Criteria.SearchText != "" || len(v.Events) != 3 {
		t.Errorf("filter change ran the pending query: %+v %v", v.Criteria, titles(v.Events))
	}
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := a.View().Criteria.SearchText; got != "" {
		t.Errorf("reload ran the pending query %q", got)
	}

	ft.FireAll()
	if v := a.View(); v.Criteria.SearchText != "qu" || len(v.Events) != 1 {
		t.Errorf("after debounce = %+v %v", v.Criteria, titles(v.Events))
	}
}

func TestSearch_ImmediateBypassesDebounce(t *testing.T) {
	ft := &fakeTimers{}
	a := newTestApp(&fakeLoader{items: sampleItems()}, nil, &recordingNotifier{}, ft)
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	a.Search("golf", false)
	a.Search("golf", true)
	if a.SearchPending() {
		t.Error("immediate search left a pending timer")
	}
	if got := titles(a.View().Events); len(got) != 1 || got[0] != "Golf day" {
		t.Errorf("events = %v", got)
	}
}

func TestSearch_LastDispatchedWins(t *testing.T) {
	origins := &blockingOrigins{
		started: make(chan string, 1),
		gates:   map[string]chan struct{}{"slow": make(chan struct{})},
	}
	a := newTestApp(&fakeLoader{items: sampleItems()}, origins, &recordingNotifier{}, nil)
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Search("slow", true)
	}()
	<-origins.started

	a.Search("breakfast", true)
	if got := titles(a.View().Events); len(got) != 1 || got[0] != "Breakfast Club" {
		t.Fatalf("events = %v", got)
	}

	close(origins.gates["slow"])
	<-done
	v := a.View()
	if v.Criteria.SearchText != "breakfast" || len(v.Events) != 1 {
		t.Errorf("stale result applied: %+v", v.Criteria)
	}
}

func TestSetFilters(t *testing.T) {
	a := newTestApp(&fakeLoader{items: sampleItems()}, nil, &recordingNotifier{}, nil)
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	a.Search("", true)

	v := a.SetFilters(context.Background(), "", "", filter.RangeWeek)
	if got := titles(v.Events); len(got) != 2 {
		t.Errorf("week = %v", got)
	}
	v = a.SetFilters(context.Background(), "", "2026-04-20", "")
	if got := titles(v.Events); len(got) != 1 || got[0] != "Golf day" {
		t.Errorf("exact date = %v", got)
	}
	if a.Criteria().QuickRange != filter.RangeAll {
		t.Errorf("range = %q", a.Criteria().QuickRange)
	}

	if e, ok := a.Event(2); !ok || e.Title != "Quiz night" {
		t.Errorf("Event(2) = %+v, %v", e, ok)
	}
	if _, ok := a.Event(99); ok {
		t.Error("Event(99) found")
	}
}

func TestFilter_DoesNotTouchSession(t *testing.T) {
	a := newTestApp(&fakeLoader{items: sampleItems()}, nil, &recordingNotifier{}, nil)
	if err := a.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	seq := a.View().Seq
	res, snap := a.Filter(context.Background(), filter.Criteria{SearchText: "golf"})
	if len(res.Events) != 1 || snap.LoadID == "" {
		t.Errorf("Filter = %v", titles(res.Events))
	}
	if a.View().Seq != seq || a.Criteria().SearchText != "" {
		t.Error("one-off filter changed the session view")
	}
}
