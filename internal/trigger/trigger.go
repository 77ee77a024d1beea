// Package trigger defines the normalized stimulus type and the
// cooldown/dedup admission filter every stimulus passes through before it
// may speak or show a bubble.
package trigger

import "time"

// Source identifies where a trigger originated.
type Source string

const (
	SourceManual Source = "manual" // user click or direct UI action
	SourcePush   Source = "push"   // backend websocket push
	SourcePoll   Source = "poll"   // periodic watcher polling
)

// DefaultCategory is assigned to triggers that arrive without one.
const DefaultCategory = "default"

// Trigger is a normalized stimulus requesting speech and/or display.
// It is immutable once created and consumed exactly once by the Filter.
type Trigger struct {
	Category    string
	Text        string
	Emotion     string
	Source      Source
	OccurredAt  time.Time
	PresetSound string        // optional pre-roll sound file name
	DisplayTime time.Duration // optional bubble lifetime override
	SkipAudio   bool          // display only, no synthesis
}

// Normalize fills in defaults for malformed triggers. Triggers are never
// rejected; a missing category or emotion falls back to a default so the
// filter remains total over its input. A trigger with no text also drops
// to the default category: it carries nothing worth a per-category
// cooldown slot.
func Normalize(t Trigger) Trigger {
	if t.Category == "" || t.Text == "" {
		t.Category = DefaultCategory
	}
	if t.Emotion == "" {
		t.Emotion = "normal"
	}
	if t.Source == "" {
		t.Source = SourceManual
	}
	return t
}
