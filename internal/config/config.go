// Package config handles loading and validating clawcenter
// configuration. Supports YAML config files and environment variable
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Validation errors.
var (
	ErrInvalidLogLevel       = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat      = errors.New("logging.format must be one of: json, text")
	ErrInvalidSessionMode    = errors.New("session.mode must be one of: exec, mock")
	ErrSessionBinaryRequired = errors.New("session.binary is required when session.mode is exec")
	ErrInvalidSweepCron      = errors.New("sweeps.cron is not a valid cron expression")
	ErrInvalidSlots          = errors.New("worker.slots must not be negative")
	ErrInvalidTimeout        = errors.New("session.timeout must be positive and at most 2h")
)

// Config holds all clawcenter configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Session  SessionConfig  `mapstructure:"session"`
	Sweeps   SweepsConfig   `mapstructure:"sweeps"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	History  HistoryConfig  `mapstructure:"history"`
	Projects []ProjectEntry `mapstructure:"projects"`
}

// ServerConfig configures the HTTP API and the data directory the
// JSON stores live in.
type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	DataDir string `mapstructure:"data_dir"`
}

// WorkerConfig configures worker mode.
type WorkerConfig struct {
	Slots           int           `mapstructure:"slots"`
	AgentPrefix     string        `mapstructure:"agent_prefix"`
	Roles           []string      `mapstructure:"roles"`
	WorkDir         string        `mapstructure:"work_dir"`
	ServerURL       string        `mapstructure:"server_url"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval"`
}

// SessionConfig selects and configures the agent session runner.
type SessionConfig struct {
	Mode    string        `mapstructure:"mode"` // exec or mock
	Binary  string        `mapstructure:"binary"`
	Args    []string      `mapstructure:"args"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SweepsConfig drives the serve-mode maintenance schedule.
type SweepsConfig struct {
	Cron                  string        `mapstructure:"cron"`
	HeartbeatWindow       time.Duration `mapstructure:"heartbeat_window"`
	AgentRetention        time.Duration `mapstructure:"agent_retention"`
	NotificationRetention time.Duration `mapstructure:"notification_retention"`
}

// LoggingConfig mirrors the logging package's Config.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Path          string `mapstructure:"path"`
	Format        string `mapstructure:"format"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// HistoryConfig locates the SQLite run archive.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// ProjectEntry seeds the project store from configuration.
type ProjectEntry struct {
	Name    string `mapstructure:"name"`
	RepoURL string `mapstructure:"repo_url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	share := filepath.Join(home, ".local", "share", "clawcenter")
	return &Config{
		Server: ServerConfig{
			Addr:    "127.0.0.1:7180",
			DataDir: share,
		},
		Worker: WorkerConfig{
			Slots:           1,
			AgentPrefix:     "worker",
			Roles:           []string{"backend-dev"},
			ServerURL:       "http://127.0.0.1:7180",
			PollInterval:    5 * time.Second,
			MonitorInterval: 15 * time.Second,
		},
		Session: SessionConfig{
			Mode:    "exec",
			Binary:  "claude",
			Args:    []string{"--print"},
			Timeout: 30 * time.Minute,
		},
		Sweeps: SweepsConfig{
			Cron:                  "@every 1m",
			HeartbeatWindow:       5 * time.Minute,
			AgentRetention:        24 * time.Hour,
			NotificationRetention: 7 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Path:          filepath.Join(share, "logs"),
			Format:        "json",
			RetentionDays: 7,
		},
		History: HistoryConfig{
			Path: filepath.Join(share, "history.db"),
		},
	}
}

// GlobalConfigPath returns the default config file location.
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "clawcenter", "config.yaml")
}

// Load reads configuration from the given file (or the global path
// when empty), applies CLAWCENTER_* environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CLAWCENTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = GlobalConfigPath()
	}
	path = ExpandPath(path)
	v.SetConfigFile(path)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Server.DataDir = ExpandPath(cfg.Server.DataDir)
	cfg.Worker.WorkDir = ExpandPath(cfg.Worker.WorkDir)
	cfg.Logging.Path = ExpandPath(cfg.Logging.Path)
	cfg.History.Path = ExpandPath(cfg.History.Path)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func Validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return ErrInvalidLogFormat
	}

	switch cfg.Session.Mode {
	case "", "mock":
	case "exec":
		if cfg.Session.Binary == "" {
			return ErrSessionBinaryRequired
		}
	default:
		return ErrInvalidSessionMode
	}
	if cfg.Session.Timeout < 0 || cfg.Session.Timeout > 2*time.Hour {
		return ErrInvalidTimeout
	}

	if cfg.Worker.Slots < 0 {
		return ErrInvalidSlots
	}

	if cfg.Sweeps.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Sweeps.Cron); err != nil {
			return ErrInvalidSweepCron
		}
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
