package sched

import (
	"sync"
	"time"
)

// TimerSet owns a group of named cancellable timers. Arming a key that is
// already armed replaces the previous timer; the old callback never fires.
// Each component owns its own TimerSet, never shared across components.
type TimerSet struct {
	mu     sync.Mutex
	clock  Clock
	timers map[string]Timer
}

// NewTimerSet creates an empty TimerSet on the given clock.
func NewTimerSet(clock Clock) *TimerSet {
	return &TimerSet{
		clock:  clock,
		timers: make(map[string]Timer),
	}
}

// Arm schedules fn under key, cancelling any timer already armed for it.
func (s *TimerSet) Arm(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	var t Timer
	t = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		// Only forget the entry if it still refers to this timer.
		if cur, ok := s.timers[key]; ok && cur == t {
			delete(s.timers, key)
		}
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = t
	s.mu.Unlock()
}

// Cancel stops the timer armed for key, if any. Idempotent.
func (s *TimerSet) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// CancelAll stops every armed timer.
func (s *TimerSet) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// Armed reports whether a timer is currently armed for key.
func (s *TimerSet) Armed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}
