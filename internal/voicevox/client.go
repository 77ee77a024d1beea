// Package voicevox provides speech synthesis clients: the companion
// backend's voice API and, as a fallback, the VOICEVOX engine itself.
package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Common errors
var (
	ErrSynthesisFailed = errors.New("speech synthesis failed")
	ErrPlaybackFailed  = errors.New("audio playback failed")
	ErrBackendDown     = errors.New("voice backend unavailable")
)

// ClientConfig configures the backend voice client
type ClientConfig struct {
	BaseURL         string        // e.g. "http://127.0.0.1:8000"
	SpeakerID       int           // VOICEVOX speaker id
	Timeout         time.Duration // HTTP request timeout
	ShutdownTimeout time.Duration // budget for the shutdown handshake
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:         "http://127.0.0.1:8000",
		SpeakerID:       8,
		Timeout:         10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Client talks to the companion backend's voice API
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a backend voice client
func NewClient(cfg *ClientConfig, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "voice-client").Logger(),
	}
}

type speakRequest struct {
	Text      string `json:"text"`
	Emotion   string `json:"emotion"`
	SpeakerID int    `json:"speaker_id"`
}

type speakResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Speak asks the backend to synthesize and play text. It returns once the
// request is accepted; playback itself finishes on the backend's side.
func (c *Client) Speak(ctx context.Context, text, emotion string) error {
	body, err := json.Marshal(speakRequest{
		Text:      text,
		Emotion:   emotion,
		SpeakerID: c.config.SpeakerID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal speak request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/api/voice/speak", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d - %s", ErrSynthesisFailed, resp.StatusCode, string(raw))
	}

	var sr speakResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return fmt.Errorf("failed to decode speak response: %w", err)
	}
	if sr.Status != "success" {
		return fmt.Errorf("%w: %s", ErrSynthesisFailed, sr.Message)
	}

	c.logger.Debug().Str("emotion", emotion).Int("chars", len(text)).Msg("Speak request accepted")
	return nil
}

type connectionResponse struct {
	Connected bool `json:"connected"`
}

// CheckConnection probes whether the backend can reach its voice engine
func (c *Client) CheckConnection(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.config.BaseURL+"/api/voice/check-connection", nil)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendDown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrBackendDown, resp.StatusCode)
	}

	var cr connectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return false, fmt.Errorf("failed to decode connection response: %w", err)
	}
	return cr.Connected, nil
}

// Shutdown sends the best-effort shutdown handshake. The caller terminates
// locally regardless of the response, so only the timeout is enforced.
func (c *Client) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ShutdownTimeout)
	defer cancel()

	body := []byte(`{"force":true}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/shutdown", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Shutdown handshake failed, terminating anyway")
		return err
	}
	defer resp.Body.Close()

	c.logger.Info().Int("status", resp.StatusCode).Msg("Shutdown handshake sent")
	return nil
}
