package trigger

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wakadori/funyacompanion/internal/sched"
)

// Decision is the filter's verdict on a trigger.
type Decision int

const (
	Admit Decision = iota
	SuppressDuplicate
	SuppressCooldown
)

// String returns the decision name for logging.
func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case SuppressDuplicate:
		return "suppress_duplicate"
	case SuppressCooldown:
		return "suppress_cooldown"
	default:
		return "unknown"
	}
}

// DedupWindow is how long an identical (category, text) pair stays
// suppressed after an admission.
const DedupWindow = 3000 * time.Millisecond

// Filter decides whether a trigger is admitted. It owns the dedup window
// and the per-category cooldown registry; both are only updated on
// admission, so a burst of suppressed duplicates never pushes the windows
// back.
type Filter struct {
	mu        sync.Mutex
	clock     sched.Clock
	logger    zerolog.Logger
	cooldowns map[string]time.Duration

	// last admitted (category, text) pair, overwritten on each admission
	lastCategory   string
	lastText       string
	lastAdmittedAt time.Time

	// category -> last admission time; entries never expire
	cooldownRegistry map[string]time.Time
}

// NewFilter creates a Filter. cooldowns maps category names to their
// cooldown length; categories absent from the map have none.
func NewFilter(cooldowns map[string]time.Duration, clock sched.Clock, logger zerolog.Logger) *Filter {
	f := &Filter{
		clock:            clock,
		logger:           logger.With().Str("component", "filter").Logger(),
		cooldownRegistry: make(map[string]time.Time),
	}
	f.SetCooldowns(cooldowns)
	return f
}

// SetCooldowns replaces the per-category cooldown table. Called on config
// hot reload; the admission registry itself is untouched.
func (f *Filter) SetCooldowns(cooldowns map[string]time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cooldowns = make(map[string]time.Duration, len(cooldowns))
	for cat, d := range cooldowns {
		f.cooldowns[cat] = d
	}
}

// Admit decides whether the trigger proceeds. Registries are updated only
// when the decision is Admit.
func (f *Filter) Admit(t Trigger) Decision {
	t = Normalize(t)
	now := f.clock.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lastCategory == t.Category && f.lastText == t.Text &&
		now.Sub(f.lastAdmittedAt) < DedupWindow {
		f.logger.Debug().
			Str("category", t.Category).
			Str("text", t.Text).
			Msg("Duplicate trigger suppressed")
		return SuppressDuplicate
	}

	if cd, ok := f.cooldowns[t.Category]; ok && cd > 0 {
		if last, seen := f.cooldownRegistry[t.Category]; seen && now.Sub(last) < cd {
			f.logger.Debug().
				Str("category", t.Category).
				Dur("cooldown", cd).
				Dur("elapsed", now.Sub(last)).
				Msg("Trigger suppressed by category cooldown")
			return SuppressCooldown
		}
	}

	f.lastCategory = t.Category
	f.lastText = t.Text
	f.lastAdmittedAt = now
	f.cooldownRegistry[t.Category] = now
	return Admit
}
