package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all client configuration.
type Config struct {
	Host        HostConfig
	Breaker     BreakerConfig
	Terminal    TerminalConfig
	Logging     LogConfig
	Diagnostics DiagnosticsConfig
}

// HostConfig holds the host bridge connection settings.
type HostConfig struct {
	URL          string `envconfig:"TART_HOST_URL" default:"ws://127.0.0.1:7878/ipc"`
	EventChannel string `envconfig:"TART_EVENT_CHANNEL" default:"tart://event"`
	CommandEntry string `envconfig:"TART_COMMAND_ENTRY" default:"execute_command"`
}

// BreakerConfig holds circuit breaker settings for host calls.
type BreakerConfig struct {
	Enabled             bool          `envconfig:"TART_BREAKER_ENABLED" default:"true"`
	ConsecutiveFailures uint32        `envconfig:"TART_BREAKER_FAILURES" default:"5"`
	Timeout             time.Duration `envconfig:"TART_BREAKER_TIMEOUT" default:"10s"`
}

// TerminalConfig holds emulator defaults.
type TerminalConfig struct {
	DefaultRows     int  `envconfig:"TART_DEFAULT_ROWS" default:"24"`
	DefaultCols     int  `envconfig:"TART_DEFAULT_COLS" default:"80"`
	Scrollback      int  `envconfig:"TART_SCROLLBACK" default:"1000"`
	PropagateResize bool `envconfig:"TART_PROPAGATE_RESIZE" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// DiagnosticsConfig holds the local diagnostics server settings.
// An empty Addr disables the server.
type DiagnosticsConfig struct {
	Addr              string `envconfig:"TART_DIAG_ADDR" default:""`
	RequestsPerSecond int    `envconfig:"TART_DIAG_RPS" default:"20"`
	Burst             int    `envconfig:"TART_DIAG_BURST" default:"40"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Host: HostConfig{
			URL:          "ws://127.0.0.1:7878/ipc",
			EventChannel: "tart://event",
			CommandEntry: "execute_command",
		},
		Breaker: BreakerConfig{
			Enabled:             true,
			ConsecutiveFailures: 5,
			Timeout:             10 * time.Second,
		},
		Terminal: TerminalConfig{
			DefaultRows: 24,
			DefaultCols: 80,
			Scrollback:  1000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Diagnostics: DiagnosticsConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}
