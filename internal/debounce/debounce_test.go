package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// FakeTimerHandle implements TimerHandle for testing.
type FakeTimerHandle struct {
	mu      sync.Mutex
	stopped bool
	delay   time.Duration
	onFire  func()
}

func (h *FakeTimerHandle) Stop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	stopped := !h.stopped
	h.stopped = true
	return stopped
}

func (h *FakeTimerHandle) Fire() {
	h.mu.Lock()
	stopped := h.stopped
	onFire := h.onFire
	h.mu.Unlock()

	if !stopped && onFire != nil {
		onFire()
	}
}

// FakeTimerFactory creates fake timers for testing.
type FakeTimerFactory struct {
	mu      sync.Mutex
	handles []*FakeTimerHandle
}

func (f *FakeTimerFactory) AfterFunc() AfterFunc {
	return func(d time.Duration, fn func()) TimerHandle {
		h := &FakeTimerHandle{onFire: fn, delay: d}
		f.mu.Lock()
		f.handles = append(f.handles, h)
		f.mu.Unlock()
		return h
	}
}

func (f *FakeTimerFactory) FireAll() {
	f.mu.Lock()
	handles := append([]*FakeTimerHandle(nil), f.handles...)
	f.mu.Unlock()

	for _, h := range handles {
		h.Fire()
	}
}

func (f *FakeTimerFactory) Handles() []*FakeTimerHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeTimerHandle(nil), f.handles...)
}

func TestSchedule_CoalescesBurst(t *testing.T) {
	ft := &FakeTimerFactory{}
	s := New(WithAfterFunc(ft.AfterFunc()))

	var got []string
	for _, q := range []string{"d", "du", "dur", "durham"} {
		q := q
		s.Schedule("search", 300*time.Millisecond, func() { got = append(got, q) })
	}
	if len(got) != 0 {
		t.Fatal("action ran before the timer fired")
	}
	if !s.Pending("search") {
		t.Fatal("nothing pending")
	}

	ft.FireAll()
	if len(got) != 1 || got[0] != "durham" {
		t.Errorf("ran %v, want only the last query", got)
	}
	if s.Pending("search") {
		t.Error("still pending after firing")
	}
	for _, h := range ft.Handles() {
		if h.delay != 300*time.Millisecond {
			t.Errorf("delay = %v", h.delay)
		}
	}
}

func TestSchedule_KeysAreIndependent(t *testing.T) {
	ft := &FakeTimerFactory{}
	s := New(WithAfterFunc(ft.AfterFunc()))

	var a, b int
	s.Schedule("a", time.Second, func() { a++ })
	s.Schedule("b", time.Second, func() { b++ })
	ft.FireAll()
	if a != 1 || b != 1 {
		t.Errorf("a=%d b=%d", a, b)
	}
}

func TestSchedule_StaleFireIsDiscarded(t *testing.T) {
	ft := &FakeTimerFactory{}
	s := New(WithAfterFunc(ft.AfterFunc()))

	var ran []int
	s.Schedule("k", time.Second, func() { ran = append(ran, 1) })
	first := ft.Handles()[0]
	s.Schedule("k", time.Second, func() { ran = append(ran, 2) })

	// Simulate a timer that fired even though Stop was called on it.
	first.mu.Lock()
	first.stopped = false
	first.mu.Unlock()
	first.Fire()
	if len(ran) != 0 {
		t.Fatalf("stale action ran: %v", ran)
	}

	ft.Handles()[1].Fire()
	if len(ran) != 1 || ran[0] != 2 {
		t.Errorf("ran = %v", ran)
	}
}

func TestCancelAndImmediate(t *testing.T) {
	ft := &FakeTimerFactory{}
	s := New(WithAfterFunc(ft.AfterFunc()))

	var n int
	s.Schedule("k", time.Second, func() { n += 10 })
	if !s.Cancel("k") {
		t.Error("Cancel reported nothing pending")
	}
	if s.Cancel("k") {
		t.Error("second Cancel reported a pending action")
	}
	ft.FireAll()
	if n != 0 {
		t.Errorf("cancelled action ran")
	}

	s.Schedule("k", time.Second, func() { n += 10 })
	s.Schedule("k", 0, func() { n++ })
	if n != 1 {
		t.Errorf("immediate action n = %d, want 1", n)
	}
	ft.FireAll()
	if n != 1 {
		t.Errorf("pending action survived an immediate run: n = %d", n)
	}
}

func TestStop(t *testing.T) {
	ft := &FakeTimerFactory{}
	s := New(WithAfterFunc(ft.AfterFunc()))
	var n int
	s.Schedule("a", time.Second, func() { n++ })
	s.Schedule("b", time.Second, func() { n++ })
	s.Stop()
	ft.FireAll()
	if n != 0 || s.Pending("a") || s.Pending("b") {
		t.Errorf("n = %d after Stop", n)
	}
}

func TestDefaultAfterFunc(t *testing.T) {
	s := New()
	var fired atomic.Int32
	done := make(chan struct{})
	s.Schedule("k", 5*time.Millisecond, func() { fired.Add(1); close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("real timer never fired")
	}
	if fired.Load() != 1 {
		t.Errorf("fired = %d", fired.Load())
	}
}
