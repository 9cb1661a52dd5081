// Package debounce coalesces bursts of calls per key into one delayed action.
package debounce

import (
	"sync"
	"time"
)

// TimerHandle allows stopping a scheduled callback.
type TimerHandle interface {
	Stop() bool
}

// AfterFunc schedules f to run after d. Returns a handle to cancel.
type AfterFunc func(d time.Duration, f func()) TimerHandle

type realTimerHandle struct {
	timer *time.Timer
}

func (h *realTimerHandle) Stop() bool {
	return h.timer.Stop()
}

// DefaultAfterFunc uses the standard library's time.AfterFunc.
var DefaultAfterFunc AfterFunc = func(d time.Duration, f func()) TimerHandle {
	return &realTimerHandle{timer: time.AfterFunc(d, f)}
}

// Scheduler runs at most one pending action per key. Scheduling under a key
// cancels the action already pending under it.
type Scheduler struct {
	afterFunc AfterFunc

	mu      sync.Mutex
	pending map[string]pendingAction
	gen     uint64
}

type pendingAction struct {
	handle TimerHandle
	gen    uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithAfterFunc sets the timer function (for testing).
func WithAfterFunc(af AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = af }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{afterFunc: DefaultAfterFunc, pending: make(map[string]pendingAction)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule runs action after delay unless another Schedule or Cancel for the
// same key comes first. A non-positive delay runs action synchronously.
func (s *Scheduler) Schedule(key string, delay time.Duration, action func()) {
	if delay <= 0 {
		s.Cancel(key)
		action()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked(key)
	s.gen++
	gen := s.gen
	h := s.afterFunc(delay, func() { s.fire(key, gen, action) })
	s.pending[key] = pendingAction{handle: h, gen: gen}
}

// fire runs action if it is still the latest one scheduled under key. A timer
// that already fired cannot be stopped, so the generation check is what
// discards it.
func (s *Scheduler) fire(key string, gen uint64, action func()) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	action()
}

// Cancel drops the pending action under key and reports whether there was one.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(key)
}

// Pending reports whether an action is waiting under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Stop cancels every pending action.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.pending {
		s.stopLocked(key)
	}
}

func (s *Scheduler) stopLocked(key string) bool {
	p, ok := s.pending[key]
	if !ok {
		return false
	}
	p.handle.Stop()
	delete(s.pending, key)
	return true
}
