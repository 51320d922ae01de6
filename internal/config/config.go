package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	// ListenAddr is the HTTP/WebSocket listen address for the serve command
	ListenAddr string

	// Source selects the active adapter: "mpris" or "spotify"
	Source string

	// Poll loop timing (milliseconds). Interval, tolerance and seek
	// threshold are coupled constants; see Validate.
	PollIntervalMs  int
	PollTimeoutMs   int
	ToleranceMs     int
	SeekThresholdMs int

	// RenderTickMs is the terminal observer's refresh period
	RenderTickMs int

	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Title}}"
	OutputFormat string

	// OutputWidth pads/truncates now output to a fixed width (0=disabled)
	OutputWidth int

	MPRIS   MPRISConfig
	Spotify SpotifyConfig
}

// MPRISConfig holds MPRIS adapter configuration.
type MPRISConfig struct {
	// Player is the bus-name suffix to poll (empty = first player found)
	Player string
}

// SpotifyConfig holds Spotify adapter configuration.
type SpotifyConfig struct {
	AccessToken string
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("source", "mpris")
	v.SetDefault("poll_interval_ms", 1000)
	v.SetDefault("poll_timeout_ms", 5000)
	v.SetDefault("tolerance_ms", 500)
	v.SetDefault("seek_threshold_ms", 2500)
	v.SetDefault("render_tick_ms", 100)
	v.SetDefault("output_format", "{{.Artist}} - {{.Title}}")

	// Config file is optional
	_ = v.ReadInConfig()

	v.SetEnvPrefix("MCW")
	// Nested keys like spotify.access_token map to MCW_SPOTIFY_ACCESS_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		ListenAddr:      v.GetString("listen_addr"),
		Source:          v.GetString("source"),
		PollIntervalMs:  v.GetInt("poll_interval_ms"),
		PollTimeoutMs:   v.GetInt("poll_timeout_ms"),
		ToleranceMs:     v.GetInt("tolerance_ms"),
		SeekThresholdMs: v.GetInt("seek_threshold_ms"),
		RenderTickMs:    v.GetInt("render_tick_ms"),
		OutputFormat:    v.GetString("output_format"),
		OutputWidth:     v.GetInt("output_width"),
		MPRIS: MPRISConfig{
			Player: v.GetString("mpris.player"),
		},
		Spotify: SpotifyConfig{
			AccessToken: v.GetString("spotify.access_token"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the timing constants against each other. A seek
// threshold at or below the poll interval (or the jitter tolerance) would
// classify ordinary polling jitter as user seeks.
func (c *Config) Validate() error {
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("poll_interval_ms must be positive, got %d", c.PollIntervalMs)
	}
	if c.PollTimeoutMs <= 0 {
		return fmt.Errorf("poll_timeout_ms must be positive, got %d", c.PollTimeoutMs)
	}
	if c.ToleranceMs < 0 {
		return fmt.Errorf("tolerance_ms must not be negative, got %d", c.ToleranceMs)
	}
	if c.SeekThresholdMs <= c.PollIntervalMs {
		return fmt.Errorf("seek_threshold_ms (%d) must exceed poll_interval_ms (%d)", c.SeekThresholdMs, c.PollIntervalMs)
	}
	if c.SeekThresholdMs <= c.ToleranceMs {
		return fmt.Errorf("seek_threshold_ms (%d) must exceed tolerance_ms (%d)", c.SeekThresholdMs, c.ToleranceMs)
	}
	if c.RenderTickMs <= 0 {
		return fmt.Errorf("render_tick_ms must be positive, got %d", c.RenderTickMs)
	}
	switch c.Source {
	case "mpris", "spotify":
	default:
		return fmt.Errorf("unknown source %q (want mpris or spotify)", c.Source)
	}
	return nil
}

// PollInterval returns the poll period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PollTimeout returns the per-poll timeout as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMs) * time.Millisecond
}

// Tolerance returns the jitter tolerance as a duration.
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceMs) * time.Millisecond
}

// SeekThreshold returns the seek-detection threshold as a duration.
func (c *Config) SeekThreshold() time.Duration {
	return time.Duration(c.SeekThresholdMs) * time.Millisecond
}

// RenderTick returns the observer refresh period as a duration.
func (c *Config) RenderTick() time.Duration {
	return time.Duration(c.RenderTickMs) * time.Millisecond
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "mcw")
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}
