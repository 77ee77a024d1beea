// Package config provides configuration management for the companion overlay
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Backend  BackendConfig  `mapstructure:"backend"`
	Voicevox VoicevoxConfig `mapstructure:"voicevox"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Display  DisplayConfig  `mapstructure:"display"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`

	// Cooldowns maps trigger categories to their cooldown length.
	// Categories absent from the map have no cooldown.
	Cooldowns map[string]time.Duration `mapstructure:"cooldowns"`
}

// BackendConfig configures the connection to the companion backend
type BackendConfig struct {
	WSURL             string        `mapstructure:"ws_url"`
	BaseURL           string        `mapstructure:"base_url"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	MonitorDelay      time.Duration `mapstructure:"monitor_delay"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// VoicevoxConfig configures speech synthesis
type VoicevoxConfig struct {
	// Host is the VOICEVOX engine address for direct synthesis.
	Host      string        `mapstructure:"host"`
	SpeakerID int           `mapstructure:"speaker_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// UseEngine selects direct engine synthesis over the backend speak API.
	UseEngine    bool   `mapstructure:"use_engine"`
	CacheEnabled bool   `mapstructure:"cache_enabled"`
	CacheDir     string `mapstructure:"cache_dir"`
}

// SpeechConfig configures the speech coordinator
type SpeechConfig struct {
	// PresetDir holds the short pre-roll sound files (kya.wav, sigh.wav...)
	PresetDir string `mapstructure:"preset_dir"`
}

// DisplayConfig configures the bubble display session
type DisplayConfig struct {
	DefaultDuration  time.Duration `mapstructure:"default_duration"`
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	// StickyCategories present without an auto-hide timer; only an
	// explicit dismiss ends their session.
	StickyCategories []string `mapstructure:"sticky_categories"`
}

// WatcherConfig configures the idle watcher
type WatcherConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			WSURL:             "ws://127.0.0.1:8000/ws",
			BaseURL:           "http://127.0.0.1:8000",
			ReconnectInterval: 3 * time.Second,
			MaxReconnects:     5,
			MonitorDelay:      2 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Voicevox: VoicevoxConfig{
			Host:         "http://127.0.0.1:50021",
			SpeakerID:    8,
			Timeout:      10 * time.Second,
			UseEngine:    false,
			CacheEnabled: true,
			CacheDir:     "",
		},
		Speech: SpeechConfig{
			PresetDir: filepath.Join("assets", "sounds", "presets"),
		},
		Display: DisplayConfig{
			DefaultDuration:  5 * time.Second,
			WatchdogInterval: 100 * time.Millisecond,
			StickyCategories: []string{"settings"},
		},
		Watcher: WatcherConfig{
			Enabled:       true,
			IdleThreshold: 5 * time.Minute,
			PollInterval:  1 * time.Second,
		},
		Cooldowns: map[string]time.Duration{
			"zombie_warning":   10 * time.Second,
			"zombie_alert":     8 * time.Second,
			"zombie_few_alert": 5 * time.Second,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("FUNYA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// Leaf keys are set one by one so the written yaml matches the
	// mapstructure tags on reload.
	viper.Set("backend.ws_url", cfg.Backend.WSURL)
	viper.Set("backend.base_url", cfg.Backend.BaseURL)
	viper.Set("backend.reconnect_interval", cfg.Backend.ReconnectInterval)
	viper.Set("backend.max_reconnects", cfg.Backend.MaxReconnects)
	viper.Set("backend.monitor_delay", cfg.Backend.MonitorDelay)
	viper.Set("backend.shutdown_timeout", cfg.Backend.ShutdownTimeout)
	viper.Set("voicevox.host", cfg.Voicevox.Host)
	viper.Set("voicevox.speaker_id", cfg.Voicevox.SpeakerID)
	viper.Set("voicevox.timeout", cfg.Voicevox.Timeout)
	viper.Set("voicevox.use_engine", cfg.Voicevox.UseEngine)
	viper.Set("voicevox.cache_enabled", cfg.Voicevox.CacheEnabled)
	viper.Set("voicevox.cache_dir", cfg.Voicevox.CacheDir)
	viper.Set("speech.preset_dir", cfg.Speech.PresetDir)
	viper.Set("display.default_duration", cfg.Display.DefaultDuration)
	viper.Set("display.watchdog_interval", cfg.Display.WatchdogInterval)
	viper.Set("display.sticky_categories", cfg.Display.StickyCategories)
	viper.Set("watcher.enabled", cfg.Watcher.Enabled)
	viper.Set("watcher.idle_threshold", cfg.Watcher.IdleThreshold)
	viper.Set("watcher.poll_interval", cfg.Watcher.PollInterval)
	viper.Set("cooldowns", cfg.Cooldowns)

	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".funyacompanion"), nil
}
