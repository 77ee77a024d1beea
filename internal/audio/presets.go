package audio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// PresetLibrary plays the short canned reaction sounds (kya.wav, sigh.wav,
// scream.wav...) that precede some spoken lines.
type PresetLibrary struct {
	dir    string
	player *Player
	logger zerolog.Logger
}

// NewPresetLibrary creates a preset sound library rooted at dir.
func NewPresetLibrary(dir string, player *Player, logger zerolog.Logger) *PresetLibrary {
	return &PresetLibrary{
		dir:    dir,
		player: player,
		logger: logger.With().Str("component", "presets").Logger(),
	}
}

// Play plays a preset sound by file name. Missing files are an error the
// caller only logs; presets are never on the critical path.
func (l *PresetLibrary) Play(name string) error {
	path := filepath.Join(l.dir, filepath.Base(name))
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("preset sound %q not found: %w", name, err)
	}
	l.logger.Debug().Str("sound", name).Msg("Playing preset sound")
	return l.player.Play(data)
}
