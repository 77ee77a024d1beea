// Package watcher implements the idle watch: when the user stops
// interacting for long enough, the companion offers a quiet line; activity
// ends the mode.
package watcher

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/sched"
	"github.com/wakadori/funyacompanion/internal/trigger"
)

// CategoryIdleWatch tags triggers produced by the idle watch.
const CategoryIdleWatch = "idle_watch"

// defaultMessages are spoken when the idle mode begins.
var defaultMessages = []string{
	"...Hm? Still with me?",
	"Maybe it's time for a little break",
	"I'm right here if you need me",
	"...So quiet. I'll keep watch",
	"Good work today...",
}

// Config configures the idle watcher
type Config struct {
	IdleThreshold time.Duration // inactivity before idle mode (default 5m)
	PollInterval  time.Duration // how often inactivity is checked (default 1s)
	Messages      []string      // idle lines; nil means the defaults
}

// Watcher polls for user inactivity and emits Poll-sourced triggers.
type Watcher struct {
	mu     sync.Mutex
	clock  sched.Clock
	timers *sched.TimerSet
	bus    *bus.EventBus
	logger zerolog.Logger

	threshold time.Duration
	interval  time.Duration
	messages  []string
	onTrigger func(trigger.Trigger)

	running      bool
	idle         bool
	lastActivity time.Time
}

// New creates an idle watcher.
func New(cfg Config, clock sched.Clock, eventBus *bus.EventBus, logger zerolog.Logger) *Watcher {
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	msgs := cfg.Messages
	if len(msgs) == 0 {
		msgs = defaultMessages
	}
	return &Watcher{
		clock:     clock,
		timers:    sched.NewTimerSet(clock),
		bus:       eventBus,
		logger:    logger.With().Str("component", "watcher").Logger(),
		threshold: cfg.IdleThreshold,
		interval:  cfg.PollInterval,
		messages:  msgs,
	}
}

// SetTriggerHandler registers the sink for idle triggers.
func (w *Watcher) SetTriggerHandler(fn func(trigger.Trigger)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onTrigger = fn
}

// Start begins polling. Idempotent.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.idle = false
	w.lastActivity = w.clock.Now()
	w.timers.Arm("tick", w.interval, w.tick)
	w.mu.Unlock()
	w.logger.Info().Dur("threshold", w.threshold).Msg("Idle watch started")
}

// Stop ends polling. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.timers.Cancel("tick")
	w.mu.Unlock()
	w.logger.Info().Msg("Idle watch stopped")
}

// Touch records user activity. Leaving idle mode is silent; the next idle
// entry speaks again.
func (w *Watcher) Touch() {
	w.mu.Lock()
	w.lastActivity = w.clock.Now()
	wasIdle := w.idle
	w.idle = false
	w.mu.Unlock()

	if wasIdle {
		w.logger.Debug().Msg("Activity detected, leaving idle mode")
		w.bus.Publish(bus.Event{Type: bus.EventTypeIdleExited, Data: nil})
	}
}

// Idle reports whether idle mode is active.
func (w *Watcher) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle
}

func (w *Watcher) tick() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	now := w.clock.Now()
	entered := false
	var msg string
	if !w.idle && now.Sub(w.lastActivity) >= w.threshold {
		w.idle = true
		entered = true
		msg = w.messages[int(now.Unix())%len(w.messages)]
	}
	onTrigger := w.onTrigger
	w.timers.Arm("tick", w.interval, w.tick)
	w.mu.Unlock()

	if !entered {
		return
	}
	w.logger.Info().Msg("Idle mode entered")
	w.bus.Publish(bus.Event{Type: bus.EventTypeIdleEntered, Data: nil})
	if onTrigger != nil {
		onTrigger(trigger.Trigger{
			Category:    CategoryIdleWatch,
			Text:        msg,
			Emotion:     "sleepy",
			Source:      trigger.SourcePoll,
			OccurredAt:  now,
			PresetSound: "funya.wav",
		})
	}
}
