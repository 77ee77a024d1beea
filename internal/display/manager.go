package display

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/sched"
)

// Sticky presents a session with no auto-hide timer; only an explicit
// Dismiss ends it.
const Sticky time.Duration = -1

// DefaultDuration is the bubble lifetime when the caller passes 0.
const DefaultDuration = 5000 * time.Millisecond

// DefaultWatchdogInterval is how often the watchdog reconciles the
// renderer against the session's backing text.
const DefaultWatchdogInterval = 100 * time.Millisecond

// Session is the single live display session.
type Session struct {
	Category  string
	Text      string
	ExpiresAt time.Time
	Sticky    bool

	gen uint64
}

// Manager owns the display session slot. At most one session is live; a
// new Present cancels the old session's timers before installing its own.
type Manager struct {
	mu       sync.Mutex
	renderer Renderer
	clock    sched.Clock
	timers   *sched.TimerSet
	bus      *bus.EventBus
	logger   zerolog.Logger

	defaultDuration  time.Duration
	watchdogInterval time.Duration

	current *Session
	gen     uint64
}

// NewManager creates a display manager over the given renderer. Zero
// durations fall back to the package defaults.
func NewManager(renderer Renderer, clock sched.Clock, eventBus *bus.EventBus,
	logger zerolog.Logger, defaultDuration, watchdogInterval time.Duration) *Manager {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	if watchdogInterval <= 0 {
		watchdogInterval = DefaultWatchdogInterval
	}
	return &Manager{
		renderer:         renderer,
		clock:            clock,
		timers:           sched.NewTimerSet(clock),
		bus:              eventBus,
		logger:           logger.With().Str("component", "display").Logger(),
		defaultDuration:  defaultDuration,
		watchdogInterval: watchdogInterval,
	}
}

// Present shows text and arms the auto-hide timer and watchdog. duration 0
// means the default lifetime; Sticky (any negative duration) means the
// session lives until an explicit Dismiss.
func (m *Manager) Present(category, text string, duration time.Duration) {
	m.mu.Lock()

	m.timers.Cancel("autohide")
	m.timers.Cancel("watchdog")

	sticky := duration < 0
	if duration == 0 {
		duration = m.defaultDuration
	}

	m.gen++
	s := &Session{
		Category: category,
		Text:     text,
		Sticky:   sticky,
		gen:      m.gen,
	}
	if !sticky {
		s.ExpiresAt = m.clock.Now().Add(duration)
	}
	m.current = s

	m.renderer.WriteText(text)

	if !sticky {
		m.timers.Arm("autohide", duration, m.Dismiss)
	}
	gen := s.gen
	m.timers.Arm("watchdog", m.watchdogInterval, func() { m.watchdogTick(gen) })

	m.mu.Unlock()

	m.logger.Debug().
		Str("category", category).
		Dur("duration", duration).
		Bool("sticky", sticky).
		Msg("Display session presented")
	m.bus.Publish(bus.Event{Type: bus.EventTypeDisplayShown, Data: map[string]any{
		"category": category,
		"text":     text,
		"sticky":   sticky,
	}})
}

// Dismiss clears the bubble and both timers. Idempotent.
func (m *Manager) Dismiss() {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return
	}
	category := m.current.Category
	m.timers.Cancel("autohide")
	m.timers.Cancel("watchdog")
	m.current = nil
	m.renderer.WriteText("")
	m.mu.Unlock()

	m.logger.Debug().Str("category", category).Msg("Display session dismissed")
	m.bus.Publish(bus.Event{Type: bus.EventTypeDisplayDismissed, Data: map[string]any{
		"category": category,
	}})
}

// Current returns a copy of the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// watchdogTick reconciles the renderer with the session's backing text.
// Some other code path may have blanked the bubble while the session is
// still live; if so, the text is re-asserted through the renderer's write
// path.
func (m *Manager) watchdogTick(gen uint64) {
	m.mu.Lock()
	s := m.current
	if s == nil || s.gen != gen {
		m.mu.Unlock()
		return
	}
	if !s.Sticky && !m.clock.Now().Before(s.ExpiresAt) {
		// Session lifetime is over; the auto-hide timer handles dismissal.
		m.mu.Unlock()
		return
	}

	healed := false
	// An empty-text session matches a blank renderer; nothing to heal.
	if s.Text != "" && m.renderer.VisibleText() == "" {
		m.renderer.WriteText(s.Text)
		healed = true
	}

	m.timers.Arm("watchdog", m.watchdogInterval, func() { m.watchdogTick(gen) })
	m.mu.Unlock()

	if healed {
		m.logger.Warn().Str("category", s.Category).Msg("Bubble text was cleared externally, restored")
		m.bus.Publish(bus.Event{Type: bus.EventTypeDisplayHealed, Data: map[string]any{
			"category": s.Category,
			"text":     s.Text,
		}})
	}
}
