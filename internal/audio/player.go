// Package audio plays WAV data on the local output device.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/rs/zerolog"
)

// VOICEVOX renders 24kHz mono signed 16-bit PCM.
const (
	SampleRate   = 24000
	ChannelCount = 1
)

// playback is one in-flight oto player.
type playback interface {
	Play()
	IsPlaying() bool
	Pause()
	Close() error
}

// playbackFactory creates playbacks from raw PCM.
type playbackFactory interface {
	NewPlayback(r io.Reader) playback
}

type otoFactory struct {
	ctx *oto.Context
}

func (f otoFactory) NewPlayback(r io.Reader) playback {
	return f.ctx.NewPlayer(r)
}

// Player handles playback of WAV data via oto. A second Play interrupts
// nothing by itself; the caller stops the previous playback first.
type Player struct {
	factory playbackFactory
	logger  zerolog.Logger
	mu      sync.Mutex
	active  playback // most recently started, nil when idle
}

// NewPlayer creates an audio player. Initializes the system audio context.
// Returns an error if the audio device is unavailable.
func NewPlayer(logger zerolog.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-readyChan

	l := logger.With().Str("component", "audio").Logger()
	l.Debug().Int("rate", SampleRate).Int("channels", ChannelCount).Msg("Audio player initialized")
	return &Player{factory: otoFactory{ctx: ctx}, logger: l}, nil
}

// Play plays WAV audio data synchronously. Blocks until playback finishes
// or Stop is called.
func (p *Player) Play(wavData []byte) error {
	pcm, err := ExtractPCM(wavData)
	if err != nil {
		return err
	}

	player := p.factory.NewPlayback(bytes.NewReader(pcm))

	p.mu.Lock()
	p.active = player
	p.mu.Unlock()

	player.Play()
	p.logger.Debug().Int("bytes", len(pcm)).Msg("Playing PCM")

	// Wait for playback to complete or be interrupted.
	for player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}

	// Only clear the slot if it is still ours; a preset pre-roll ending
	// must not make Stop blind to the speech that started after it.
	p.mu.Lock()
	if p.active == player {
		p.active = nil
	}
	p.mu.Unlock()

	return player.Close()
}

// Stop interrupts the currently playing audio, if any. Safe to call
// concurrently and when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	active := p.active
	p.mu.Unlock()

	if active != nil {
		active.Pause()
		p.logger.Debug().Msg("Playback interrupted")
	}
}

// ExtractPCM strips the WAV/RIFF header and returns raw PCM data.
func ExtractPCM(wav []byte) ([]byte, error) {
	if len(wav) < 44 {
		return nil, errors.New("wav data too short")
	}

	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, errors.New("not a valid WAV file")
	}

	// Walk chunks to find the "data" chunk.
	pos := 12
	for pos < len(wav)-8 {
		chunkID := string(wav[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))

		if chunkID == "data" {
			start := pos + 8
			end := start + chunkSize
			if end > len(wav) {
				end = len(wav)
			}
			return wav[start:end], nil
		}

		pos += 8 + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}

	return nil, errors.New("data chunk not found in WAV")
}
