package voicevox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// EngineConfig configures the direct VOICEVOX engine client
type EngineConfig struct {
	Host      string // e.g. "http://127.0.0.1:50021"
	SpeakerID int
	Timeout   time.Duration
}

// DefaultEngineConfig returns sensible defaults
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Host:      "http://127.0.0.1:50021",
		SpeakerID: 8,
		Timeout:   10 * time.Second,
	}
}

// Engine synthesizes speech against the VOICEVOX engine directly, used
// when no companion backend is running. Synthesis is the engine's two-step
// protocol: build an audio query, then render it with emotion-scaled
// parameters.
type Engine struct {
	config     *EngineConfig
	httpClient *http.Client
	cache      *Cache
	logger     zerolog.Logger
}

// NewEngine creates a direct engine client. cache may be nil.
func NewEngine(cfg *EngineConfig, cache *Cache, logger zerolog.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if cache == nil {
		cache = &Cache{}
	}
	return &Engine{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		logger:     logger.With().Str("component", "voicevox-engine").Logger(),
	}
}

// Synthesize converts text to WAV data, consulting the cache first.
func (e *Engine) Synthesize(ctx context.Context, text, emotion string) ([]byte, error) {
	if data := e.cache.Get(text, e.config.SpeakerID); data != nil {
		e.logger.Debug().Int("bytes", len(data)).Msg("Voice served from cache")
		return data, nil
	}

	query, err := e.audioQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	params := ParamsForEmotion(emotion)
	query["speedScale"] = params.Speed
	query["pitchScale"] = params.Pitch
	query["intonationScale"] = params.Intonation
	query["volumeScale"] = params.Volume

	data, err := e.synthesis(ctx, query)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Put(text, e.config.SpeakerID, data); err != nil {
		e.logger.Warn().Err(err).Msg("Failed to cache synthesized voice")
	}
	return data, nil
}

// Health checks whether the engine answers its version endpoint.
func (e *Engine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/version", nil)
	if err != nil {
		return err
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendDown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrBackendDown, resp.StatusCode)
	}
	return nil
}

func (e *Engine) audioQuery(ctx context.Context, text string) (map[string]any, error) {
	q := url.Values{}
	q.Set("text", text)
	q.Set("speaker", strconv.Itoa(e.config.SpeakerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.config.Host+"/audio_query?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio query request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: audio query: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: audio query status %d - %s", ErrSynthesisFailed, resp.StatusCode, string(raw))
	}

	var query map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&query); err != nil {
		return nil, fmt.Errorf("failed to decode audio query: %w", err)
	}
	return query, nil
}

func (e *Engine) synthesis(ctx context.Context, query map[string]any) ([]byte, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audio query: %w", err)
	}

	q := url.Values{}
	q.Set("speaker", strconv.Itoa(e.config.SpeakerID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.config.Host+"/synthesis?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: synthesis: %v", ErrSynthesisFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: synthesis status %d - %s", ErrSynthesisFailed, resp.StatusCode, string(raw))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}
	e.logger.Debug().Int("bytes", len(data)).Msg("Synthesis complete")
	return data, nil
}
