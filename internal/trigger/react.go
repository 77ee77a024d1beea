package trigger

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Reaction categories for zombie sightings. The warning tier is the only
// one most installs give a long cooldown; see config.DefaultConfig.
const (
	CategoryZombieAlert    = "zombie_alert"
	CategoryZombieWarning  = "zombie_warning"
	CategoryZombieFewAlert = "zombie_few_alert"
	CategoryAllClear       = "all_clear"
	CategoryError          = "error"
)

// panicDistance is how close zombies must be before a sighting escalates
// from a confirmation to a warning.
const panicDistance = 5.0

var reactionTemplates = map[string][]string{
	CategoryZombieFewAlert: {
		"I can see %d zombies out there",
		"There are %d zombies around, stay sharp",
		"Heads up, %d zombies spotted",
	},
	CategoryZombieWarning: {
		"Danger! %d zombies closing in!",
		"%d zombies are getting close!",
		"Warning! %d zombies at %.1f meters!",
	},
	CategoryZombieAlert: {
		"Eek! They're right there!",
		"Danger! %d zombies right in front of us!",
		"This is bad, a whole horde is coming!",
	},
	CategoryAllClear: {
		"Looks fine, no zombies in sight",
		"The area seems clear",
		"All clear, we're safe for now",
	},
}

// alertSounds are the short pre-roll files played before a panic reaction.
var alertSounds = []string{"scream.wav", "kya.wav", "altu.wav"}

// reliefChance is how often an all-clear sighting actually speaks.
const reliefChance = 0.3

// ZombieReaction builds the trigger for a detection event. count is the
// number of zombies seen, distance the nearest one in meters. Returns
// false when the sighting should stay silent (most all-clear reports do).
func ZombieReaction(count int, distance float64, now time.Time) (Trigger, bool) {
	category := reactionCategory(count, distance)

	if category == CategoryAllClear && rand.Float64() >= reliefChance {
		return Trigger{}, false
	}

	templates := reactionTemplates[category]
	text := formatReaction(templates[rand.Intn(len(templates))], count, distance)

	t := Trigger{
		Category:   category,
		Text:       text,
		Source:     SourcePush,
		OccurredAt: now,
	}

	switch category {
	case CategoryZombieAlert:
		t.Emotion = "surprised"
		t.PresetSound = alertSounds[rand.Intn(len(alertSounds))]
	case CategoryZombieWarning:
		t.Emotion = "worried"
	case CategoryZombieFewAlert:
		t.Emotion = "serious"
	default:
		t.Emotion = "relieved"
	}
	return t, true
}

func reactionCategory(count int, distance float64) string {
	switch {
	case count > 3:
		return CategoryZombieAlert
	case count > 0 && distance < panicDistance:
		return CategoryZombieWarning
	case count > 0:
		return CategoryZombieFewAlert
	default:
		return CategoryAllClear
	}
}

// formatReaction fills a template with whichever of count/distance it
// actually uses. Templates take count first, then distance.
func formatReaction(tmpl string, count int, distance float64) string {
	switch countVerbs(tmpl) {
	case 2:
		return fmt.Sprintf(tmpl, count, distance)
	case 1:
		return fmt.Sprintf(tmpl, count)
	default:
		// No verbs left, but escaped percents still need collapsing.
		return strings.ReplaceAll(tmpl, "%%", "%")
	}
}

func countVerbs(tmpl string) int {
	n := 0
	for i := 0; i < len(tmpl)-1; i++ {
		if tmpl[i] == '%' {
			if tmpl[i+1] == '%' {
				i++
				continue
			}
			n++
		}
	}
	return n
}
