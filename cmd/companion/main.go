// Command companion runs the desktop companion's speech and notification
// engine: it connects to the game-watching backend, reacts to pushed
// events with voice and a text bubble, and keeps itself alive across
// backend restarts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wakadori/funyacompanion/internal/audio"
	"github.com/wakadori/funyacompanion/internal/bus"
	"github.com/wakadori/funyacompanion/internal/channel"
	"github.com/wakadori/funyacompanion/internal/config"
	"github.com/wakadori/funyacompanion/internal/display"
	"github.com/wakadori/funyacompanion/internal/logging"
	"github.com/wakadori/funyacompanion/internal/orchestrator"
	"github.com/wakadori/funyacompanion/internal/sched"
	"github.com/wakadori/funyacompanion/internal/speech"
	"github.com/wakadori/funyacompanion/internal/trigger"
	"github.com/wakadori/funyacompanion/internal/voicevox"
	"github.com/wakadori/funyacompanion/internal/watcher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "companion:", err)
		os.Exit(1)
	}
}

func run() error {
	// Local overrides, e.g. FUNYA_BACKEND_WS_URL. Missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Load falls back to defaults; a broken config file should not keep
		// the companion from starting.
		fmt.Fprintln(os.Stderr, "companion: config load:", err)
	}

	logger, err := logging.New(nil)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer logger.Close()
	zlog := logger.Zerolog()

	clock := sched.NewClock()
	eventBus := bus.NewEventBus()

	filter := trigger.NewFilter(cfg.Cooldowns, clock, zlog)

	// Audio is optional: with no output device the companion still shows
	// bubbles, it just cannot play preset sounds or local synthesis.
	var presets speech.PresetPlayer
	player, err := audio.NewPlayer(zlog)
	if err != nil {
		zlog.Warn().Err(err).Msg("Audio device unavailable, preset sounds disabled")
	} else {
		presets = audio.NewPresetLibrary(cfg.Speech.PresetDir, player, zlog)
	}

	backend := voicevox.NewClient(&voicevox.ClientConfig{
		BaseURL:         cfg.Backend.BaseURL,
		SpeakerID:       cfg.Voicevox.SpeakerID,
		Timeout:         cfg.Voicevox.Timeout,
		ShutdownTimeout: cfg.Backend.ShutdownTimeout,
	}, zlog)

	var synth speech.Synthesizer = backend
	if cfg.Voicevox.UseEngine && player != nil {
		var cache *voicevox.Cache
		if cfg.Voicevox.CacheEnabled {
			dir := cfg.Voicevox.CacheDir
			if dir == "" {
				if configDir, derr := config.GetConfigDir(); derr == nil {
					dir = filepath.Join(configDir, "cache", "voice")
				}
			}
			cache, err = voicevox.NewCache(dir)
			if err != nil {
				zlog.Warn().Err(err).Msg("Voice cache unavailable")
			}
		}
		engine := voicevox.NewEngine(&voicevox.EngineConfig{
			Host:      cfg.Voicevox.Host,
			SpeakerID: cfg.Voicevox.SpeakerID,
			Timeout:   cfg.Voicevox.Timeout,
		}, cache, zlog)
		synth = voicevox.NewLocalSpeaker(engine, player, zlog)
		zlog.Info().Str("host", cfg.Voicevox.Host).Msg("Using direct engine synthesis")
	}

	coordinator := speech.NewCoordinator(synth, presets, clock, eventBus, zlog)

	displayMgr := display.NewManager(display.NewConsoleRenderer(), clock, eventBus, zlog,
		cfg.Display.DefaultDuration, cfg.Display.WatchdogInterval)

	orch := orchestrator.New(filter, coordinator, displayMgr, eventBus, zlog,
		cfg.Display.StickyCategories)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch.Start(ctx)

	ch := channel.NewClient(channel.Config{
		URL:           cfg.Backend.WSURL,
		MaxAttempts:   cfg.Backend.MaxReconnects,
		RetryInterval: cfg.Backend.ReconnectInterval,
		MonitorDelay:  cfg.Backend.MonitorDelay,
	}, channel.WebsocketDialer{}, clock, eventBus, zlog)
	ch.SetTriggerHandler(orch.Submit)
	if err := ch.Start(ctx); err != nil {
		return fmt.Errorf("channel start: %w", err)
	}
	defer ch.Stop()

	var idle *watcher.Watcher
	if cfg.Watcher.Enabled {
		idle = watcher.New(watcher.Config{
			IdleThreshold: cfg.Watcher.IdleThreshold,
			PollInterval:  cfg.Watcher.PollInterval,
		}, clock, eventBus, zlog)
		idle.SetTriggerHandler(orch.Submit)
		idle.Start()
		defer idle.Stop()
	}

	// Any admitted trigger counts as activity for the idle watch.
	eventBus.Subscribe(bus.EventTypeTriggerAdmitted, func(bus.Event) {
		if idle != nil {
			idle.Touch()
		}
	})

	cw, err := config.Watch(zlog, func(next *config.Config) {
		filter.SetCooldowns(next.Cooldowns)
		zlog.Info().Msg("Cooldown table reloaded")
	})
	if err != nil {
		zlog.Warn().Err(err).Msg("Config watch unavailable, edits need a restart")
	} else {
		defer cw.Close()
	}

	go func() {
		connected, cerr := backend.CheckConnection(ctx)
		if cerr != nil {
			zlog.Warn().Err(cerr).Msg("Voice backend probe failed")
			return
		}
		zlog.Info().Bool("connected", connected).Msg("Voice backend probe")
	}()

	orch.HandleClick("Hi! I'm watching over you today", "happy", clock.Now())

	zlog.Info().Str("ws", cfg.Backend.WSURL).Msg("Companion running")
	<-ctx.Done()

	zlog.Info().Msg("Shutting down")
	coordinator.Stop()
	displayMgr.Dismiss()

	// Best-effort handshake; the backend may already be gone.
	_ = backend.Shutdown(context.Background())
	return nil
}
