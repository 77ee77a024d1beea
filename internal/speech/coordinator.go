// Package speech owns the single "currently speaking" resource and the
// cancel-and-replace policy between overlapping requests.
package speech

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/sched"
	"github.com/wakadori/funyacompanion/internal/trigger"
	"github.com/wakadori/funyacompanion/internal/voicevox"
)

// Synthesizer issues the synthesis/playback request. The backend voice
// client and the local engine speaker both satisfy it.
type Synthesizer interface {
	Speak(ctx context.Context, text, emotion string) error
}

// PresetPlayer plays a short canned sound by file name.
type PresetPlayer interface {
	Play(name string) error
}

// Duration heuristic bounds: with no authoritative completion signal from
// playback, a session is assumed over after perRune per character, clamped
// to [minDuration, maxDuration].
const (
	perRune     = 150 * time.Millisecond
	minDuration = 2000 * time.Millisecond
	maxDuration = 10000 * time.Millisecond
)

// EstimateDuration approximates how long a line takes to speak.
func EstimateDuration(text string) time.Duration {
	d := time.Duration(len([]rune(text))) * perRune
	if d < minDuration {
		return minDuration
	}
	if d > maxDuration {
		return maxDuration
	}
	return d
}

// Session is the single mutable "currently speaking" resource. Creating a
// new one cancels the previous one's token first; sessions are never
// queued.
type Session struct {
	ID                uint64
	Category          string
	Text              string
	EstimatedDuration time.Duration
	StartedAt         time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// Coordinator accepts admitted triggers and drives synthesis. It owns the
// session slot exclusively; all writes go through cancel-then-install.
type Coordinator struct {
	mu      sync.Mutex
	clock   sched.Clock
	timers  *sched.TimerSet
	synth   Synthesizer
	presets PresetPlayer // may be nil
	bus     *bus.EventBus
	logger  zerolog.Logger

	// onFailure receives the single error-category trigger emitted when a
	// synthesis request fails. Subject to the normal dedup path.
	onFailure func(trigger.Trigger)

	nextID  uint64
	current *Session
}

// NewCoordinator creates a speech coordinator.
func NewCoordinator(synth Synthesizer, presets PresetPlayer, clock sched.Clock,
	eventBus *bus.EventBus, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		clock:   clock,
		timers:  sched.NewTimerSet(clock),
		synth:   synth,
		presets: presets,
		bus:     eventBus,
		logger:  logger.With().Str("component", "speech").Logger(),
	}
}

// SetFailureHandler registers the sink for failure triggers. The
// orchestrator feeds them back through the admission pipeline.
func (c *Coordinator) SetFailureHandler(fn func(trigger.Trigger)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFailure = fn
}

// Speak starts a new speech session for an admitted trigger. Fire and
// forget: the newest request always wins, any in-flight work is cancelled,
// never queued. Completion is observed via the display layer.
func (c *Coordinator) Speak(t trigger.Trigger) {
	t = trigger.Normalize(t)

	c.mu.Lock()
	if c.current != nil {
		prev := c.current
		prev.cancel()
		c.timers.Cancel("completion")
		c.current = nil
		c.logger.Debug().
			Uint64("id", prev.ID).
			Str("category", prev.Category).
			Msg("Previous speech session cancelled")
		defer c.bus.Publish(bus.Event{Type: bus.EventTypeSpeechCancelled, Data: map[string]any{
			"id":       prev.ID,
			"category": prev.Category,
		}})
	}

	c.nextID++
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:                c.nextID,
		Category:          t.Category,
		Text:              t.Text,
		EstimatedDuration: EstimateDuration(t.Text),
		StartedAt:         c.clock.Now(),
		ctx:               ctx,
		cancel:            cancel,
	}
	c.current = s
	c.mu.Unlock()

	c.logger.Info().
		Uint64("id", s.ID).
		Str("category", s.Category).
		Dur("estimated", s.EstimatedDuration).
		Msg("Speech session started")
	c.bus.Publish(bus.Event{Type: bus.EventTypeSpeechStarted, Data: map[string]any{
		"id":       s.ID,
		"category": s.Category,
		"text":     s.Text,
	}})

	// Pre-roll, fire and forget; never blocks the main path. Triggers
	// without an explicit sound fall back to their emotion's preset.
	sound := t.PresetSound
	if sound == "" {
		sound = voicevox.PresetSoundForEmotion(t.Emotion)
	}
	if sound != "" && c.presets != nil {
		go func() {
			if err := c.presets.Play(sound); err != nil {
				c.logger.Warn().Err(err).Str("sound", sound).Msg("Preset pre-roll failed")
			}
		}()
	}

	go c.run(s, t)
}

// run issues the synthesis request and schedules the heuristic completion.
func (c *Coordinator) run(s *Session, t trigger.Trigger) {
	err := c.synth.Speak(s.ctx, t.Text, t.Emotion)

	if s.ctx.Err() != nil {
		// Superseded or shut down while in flight; stale work is abandoned.
		return
	}

	if err != nil {
		s.cancel()
		c.release(s)
		c.logger.Error().Err(err).Uint64("id", s.ID).Msg("Synthesis request failed")
		c.bus.Publish(bus.Event{Type: bus.EventTypeSpeechFailed, Data: map[string]any{
			"id":    s.ID,
			"error": err.Error(),
		}})

		c.mu.Lock()
		onFailure := c.onFailure
		c.mu.Unlock()
		if onFailure != nil {
			onFailure(trigger.Trigger{
				Category:   trigger.CategoryError,
				Text:       "Sorry, my voice isn't working right now...",
				Emotion:    "sad",
				Source:     t.Source,
				OccurredAt: c.clock.Now(),
				SkipAudio:  true,
			})
		}
		return
	}

	// No authoritative completion signal from playback; assume the session
	// is over after the estimated duration unless cancelled first. Arming
	// is serialized under c.mu so a stale arm can never replace the
	// completion timer of a session that superseded this one.
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	defer c.mu.Unlock()
	c.timers.Arm("completion", s.EstimatedDuration, func() {
		if s.ctx.Err() != nil {
			return
		}
		s.cancel()
		c.release(s)
		c.logger.Debug().Uint64("id", s.ID).Msg("Speech session completed")
		c.bus.Publish(bus.Event{Type: bus.EventTypeSpeechCompleted, Data: map[string]any{
			"id":       s.ID,
			"category": s.Category,
		}})
	})
}

// release frees the session slot if s still occupies it.
func (c *Coordinator) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == s {
		c.current = nil
	}
}

// Active returns a copy of the current session, or nil when idle.
func (c *Coordinator) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	s := *c.current
	s.ctx, s.cancel = nil, nil
	return &s
}

// Stop cancels the active session and all pending timers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	c.timers.CancelAll()
}
