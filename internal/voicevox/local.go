package voicevox

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wakadori/funyacompanion/internal/audio"
)

// LocalSpeaker synthesizes through the VOICEVOX engine directly and plays
// the result on the local device. It satisfies the same contract as the
// backend Client's Speak, so the coordinator can use either.
type LocalSpeaker struct {
	engine *Engine
	player *audio.Player
	logger zerolog.Logger
}

// NewLocalSpeaker combines a direct engine client with a local player.
func NewLocalSpeaker(engine *Engine, player *audio.Player, logger zerolog.Logger) *LocalSpeaker {
	return &LocalSpeaker{
		engine: engine,
		player: player,
		logger: logger.With().Str("component", "local-speaker").Logger(),
	}
}

// Speak synthesizes text and blocks until playback finishes or ctx is
// cancelled. Cancellation stops playback immediately.
func (s *LocalSpeaker) Speak(ctx context.Context, text, emotion string) error {
	data, err := s.engine.Synthesize(ctx, text, emotion)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.player.Stop()
		case <-done:
		}
	}()

	err = s.player.Play(data)
	close(done)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlaybackFailed, err)
	}
	return nil
}
