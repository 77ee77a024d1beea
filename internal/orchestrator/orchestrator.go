// Package orchestrator wires the trigger pipeline: every stimulus,
// regardless of origin, passes through filter, coordinator, and display in
// that order.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/display"
	"github.com/wakadori/funyacompanion/internal/speech"
	"github.com/wakadori/funyacompanion/internal/trigger"
)

// queueDepth bounds the trigger queue; submissions block briefly rather
// than reorder or drop.
const queueDepth = 32

// Orchestrator is the composition root of the pipeline. It holds no state
// of its own beyond the wiring and the serializing queue.
type Orchestrator struct {
	filter  *trigger.Filter
	speech  *speech.Coordinator
	display *display.Manager
	bus     *bus.EventBus
	logger  zerolog.Logger

	sticky   map[string]bool
	triggers chan trigger.Trigger
}

// New wires filter, coordinator, and display into a pipeline.
// stickyCategories present without an auto-hide timer.
func New(filter *trigger.Filter, coordinator *speech.Coordinator, displayMgr *display.Manager,
	eventBus *bus.EventBus, logger zerolog.Logger, stickyCategories []string) *Orchestrator {
	sticky := make(map[string]bool, len(stickyCategories))
	for _, cat := range stickyCategories {
		sticky[cat] = true
	}
	o := &Orchestrator{
		filter:   filter,
		speech:   coordinator,
		display:  displayMgr,
		bus:      eventBus,
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		sticky:   sticky,
		triggers: make(chan trigger.Trigger, queueDepth),
	}
	// Synthesis failures re-enter the pipeline as error triggers, so the
	// normal dedup rules rate-limit them.
	coordinator.SetFailureHandler(o.Submit)
	return o
}

// Start runs the serializing trigger loop until ctx is cancelled. No two
// triggers are ever filtered concurrently.
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-o.triggers:
				o.Dispatch(t)
			}
		}
	}()
}

// Submit queues a trigger for processing. Safe from any goroutine.
func (o *Orchestrator) Submit(t trigger.Trigger) {
	o.triggers <- t
}

// HandleClick is the entry point for direct user interaction with the
// character.
func (o *Orchestrator) HandleClick(text, emotion string, at time.Time) {
	o.Submit(trigger.Trigger{
		Category:   "interaction",
		Text:       text,
		Emotion:    emotion,
		Source:     trigger.SourceManual,
		OccurredAt: at,
	})
}

// Dispatch runs one trigger through the pipeline synchronously. Exposed
// for the loop and for tests; production callers use Submit.
func (o *Orchestrator) Dispatch(t trigger.Trigger) {
	t = trigger.Normalize(t)

	decision := o.filter.Admit(t)
	if decision != trigger.Admit {
		o.logger.Debug().
			Str("category", t.Category).
			Str("decision", decision.String()).
			Msg("Trigger suppressed")
		o.bus.Publish(bus.Event{Type: bus.EventTypeTriggerSuppressed, Data: map[string]any{
			"category": t.Category,
			"decision": decision.String(),
		}})
		return
	}

	o.bus.Publish(bus.Event{Type: bus.EventTypeTriggerAdmitted, Data: map[string]any{
		"category": t.Category,
		"source":   string(t.Source),
	}})

	if !t.SkipAudio {
		o.speech.Speak(t)
	}

	duration := t.DisplayTime
	if o.sticky[t.Category] {
		duration = display.Sticky
	}
	o.display.Present(t.Category, t.Text, duration)
}

// DismissDisplay forwards an explicit dismiss, e.g. when a sticky
// sub-view closes.
func (o *Orchestrator) DismissDisplay() {
	o.display.Dismiss()
}
