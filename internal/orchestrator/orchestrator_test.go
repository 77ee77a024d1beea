package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/display"
	"github.com/wakadori/funyacompanion/internal/sched"
	"github.com/wakadori/funyacompanion/internal/speech"
	"github.com/wakadori/funyacompanion/internal/trigger"
)

type fakeSynth struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSynth) Speak(ctx context.Context, text, emotion string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeSynth) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

type fakeRenderer struct {
	mu      sync.Mutex
	visible string
}

func (r *fakeRenderer) WriteText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible = text
}

func (r *fakeRenderer) VisibleText() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible
}

type pipeline struct {
	orch     *Orchestrator
	synth    *fakeSynth
	renderer *fakeRenderer
	clock    *sched.FakeClock
	bus      *bus.EventBus
}

func newPipeline(synthErr error, cooldowns map[string]time.Duration, sticky []string) *pipeline {
	clock := sched.NewFakeClock()
	eventBus := bus.NewEventBus()
	logger := zerolog.Nop()

	synth := &fakeSynth{err: synthErr}
	renderer := &fakeRenderer{}

	filter := trigger.NewFilter(cooldowns, clock, logger)
	coordinator := speech.NewCoordinator(synth, nil, clock, eventBus, logger)
	displayMgr := display.NewManager(renderer, clock, eventBus, logger, 0, 0)

	return &pipeline{
		orch:     New(filter, coordinator, displayMgr, eventBus, logger, sticky),
		synth:    synth,
		renderer: renderer,
		clock:    clock,
		bus:      eventBus,
	}
}

func TestDispatchSpeaksAndPresents(t *testing.T) {
	p := newPipeline(nil, nil, nil)

	p.orch.Dispatch(trigger.Trigger{Category: "speak", Text: "hello there"})

	assert.Equal(t, "hello there", p.renderer.VisibleText())
	require.Eventually(t, func() bool { return len(p.synth.spoken()) == 1 },
		time.Second, time.Millisecond)
	assert.Equal(t, "hello there", p.synth.spoken()[0])
}

func TestDispatchSkipAudioOnlyDisplays(t *testing.T) {
	p := newPipeline(nil, nil, nil)

	p.orch.Dispatch(trigger.Trigger{Category: "notification", Text: "quiet note", SkipAudio: true})

	assert.Equal(t, "quiet note", p.renderer.VisibleText())
	// Give any stray synthesis goroutine a moment to show up.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, p.synth.spoken())
}

func TestDispatchSuppressesDuplicates(t *testing.T) {
	p := newPipeline(nil, nil, nil)

	var mu sync.Mutex
	suppressed := 0
	p.bus.Subscribe(bus.EventTypeTriggerSuppressed, func(bus.Event) {
		mu.Lock()
		suppressed++
		mu.Unlock()
	})

	tr := trigger.Trigger{Category: "notification", Text: "same line"}
	p.orch.Dispatch(tr)
	p.orch.Dispatch(tr)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return suppressed == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(p.synth.spoken()) == 1 },
		time.Second, time.Millisecond)
}

func TestDispatchHonorsCooldown(t *testing.T) {
	p := newPipeline(nil, map[string]time.Duration{"zombie_warning": 10 * time.Second}, nil)

	p.orch.Dispatch(trigger.Trigger{Category: "zombie_warning", Text: "close!"})
	p.clock.Advance(4 * time.Second)
	p.orch.Dispatch(trigger.Trigger{Category: "zombie_warning", Text: "still close!"})

	require.Eventually(t, func() bool { return len(p.synth.spoken()) == 1 },
		time.Second, time.Millisecond)
}

func TestStickyCategoryNeverAutoHides(t *testing.T) {
	p := newPipeline(nil, nil, []string{"settings"})

	p.orch.Dispatch(trigger.Trigger{Category: "settings", Text: "volume: 80%", SkipAudio: true})

	p.clock.Advance(time.Hour)
	assert.Equal(t, "volume: 80%", p.renderer.VisibleText())

	p.orch.DismissDisplay()
	assert.Equal(t, "", p.renderer.VisibleText())
}

func TestDisplayTimeOverride(t *testing.T) {
	p := newPipeline(nil, nil, nil)

	p.orch.Dispatch(trigger.Trigger{Category: "speak", Text: "brief", DisplayTime: 2 * time.Second})

	p.clock.Advance(2 * time.Second)
	assert.Equal(t, "", p.renderer.VisibleText())
}

func TestDefaultDisplayLifetime(t *testing.T) {
	p := newPipeline(nil, nil, nil)

	p.orch.Dispatch(trigger.Trigger{Category: "speak", Text: "hello"})

	p.clock.Advance(display.DefaultDuration - time.Millisecond)
	assert.Equal(t, "hello", p.renderer.VisibleText())
	p.clock.Advance(time.Millisecond)
	assert.Equal(t, "", p.renderer.VisibleText())
}

func TestSynthesisFailureFeedsBackAsErrorNotice(t *testing.T) {
	p := newPipeline(errors.New("engine down"), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.orch.Start(ctx)

	p.orch.Submit(trigger.Trigger{Category: "speak", Text: "hello"})

	// The failure notice re-enters the pipeline and ends up on screen,
	// without triggering another synthesis attempt.
	require.Eventually(t, func() bool {
		return p.renderer.VisibleText() != "" && p.renderer.VisibleText() != "hello"
	}, time.Second, time.Millisecond)
	assert.Len(t, p.synth.spoken(), 1)
}

func TestHandleClickSpeaks(t *testing.T) {
	p := newPipeline(nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.orch.Start(ctx)

	p.orch.HandleClick("you poked me!", "happy", p.clock.Now())

	require.Eventually(t, func() bool { return p.renderer.VisibleText() == "you poked me!" },
		time.Second, time.Millisecond)
}
