package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/sched"
	"github.com/wakadori/funyacompanion/internal/trigger"
)

type triggerSink struct {
	mu  sync.Mutex
	got []trigger.Trigger
}

func (s *triggerSink) accept(t trigger.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, t)
}

func (s *triggerSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func (s *triggerSink) first() trigger.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.got[0]
}

func newTestWatcher(threshold time.Duration) (*Watcher, *sched.FakeClock, *triggerSink, *bus.EventBus) {
	clock := sched.NewFakeClock()
	eventBus := bus.NewEventBus()
	w := New(Config{IdleThreshold: threshold, PollInterval: time.Second}, clock, eventBus, zerolog.Nop())
	sink := &triggerSink{}
	w.SetTriggerHandler(sink.accept)
	return w, clock, sink, eventBus
}

func TestWatcherEntersIdleAfterThreshold(t *testing.T) {
	w, clock, sink, _ := newTestWatcher(5 * time.Minute)
	w.Start()
	defer w.Stop()

	clock.Advance(5*time.Minute - time.Second)
	assert.False(t, w.Idle())
	assert.Equal(t, 0, sink.count())

	clock.Advance(time.Second)
	assert.True(t, w.Idle())
	require.Equal(t, 1, sink.count())

	got := sink.first()
	assert.Equal(t, CategoryIdleWatch, got.Category)
	assert.Equal(t, trigger.SourcePoll, got.Source)
	assert.Equal(t, "sleepy", got.Emotion)
	assert.NotEmpty(t, got.Text)
}

func TestWatcherSpeaksOncePerIdlePeriod(t *testing.T) {
	w, clock, sink, _ := newTestWatcher(time.Minute)
	w.Start()
	defer w.Stop()

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, sink.count(), "idle mode speaks once, not every poll")
}

func TestWatcherTouchResetsIdle(t *testing.T) {
	w, clock, sink, eventBus := newTestWatcher(time.Minute)

	var mu sync.Mutex
	exited := 0
	eventBus.Subscribe(bus.EventTypeIdleExited, func(bus.Event) {
		mu.Lock()
		exited++
		mu.Unlock()
	})

	w.Start()
	defer w.Stop()

	clock.Advance(time.Minute)
	require.True(t, w.Idle())

	w.Touch()
	assert.False(t, w.Idle())
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return exited == 1
	}, time.Second, time.Millisecond)

	// A fresh idle period speaks again.
	clock.Advance(time.Minute)
	assert.True(t, w.Idle())
	assert.Equal(t, 2, sink.count())
}

func TestWatcherTouchBeforeThresholdDelaysIdle(t *testing.T) {
	w, clock, sink, _ := newTestWatcher(time.Minute)
	w.Start()
	defer w.Stop()

	clock.Advance(30 * time.Second)
	w.Touch()
	clock.Advance(59 * time.Second)

	assert.False(t, w.Idle())
	assert.Equal(t, 0, sink.count())
}

func TestWatcherStopHaltsPolling(t *testing.T) {
	w, clock, sink, _ := newTestWatcher(time.Minute)
	w.Start()
	w.Stop()

	clock.Advance(time.Hour)
	assert.False(t, w.Idle())
	assert.Equal(t, 0, sink.count())
}

func TestWatcherStartIsIdempotent(t *testing.T) {
	w, clock, sink, _ := newTestWatcher(time.Minute)
	w.Start()
	w.Start()
	defer w.Stop()

	clock.Advance(time.Minute)
	assert.Equal(t, 1, sink.count())
}
