package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level: "verbose",
		},
	}
	err := Validate(cfg)
	if err != ErrInvalidLogLevel {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Format: "xml",
		},
	}
	err := Validate(cfg)
	if err != ErrInvalidLogFormat {
		t.Errorf("expected ErrInvalidLogFormat, got %v", err)
	}
}

func TestValidate_InvalidSessionMode(t *testing.T) {
	cfg := &Config{
		Session: SessionConfig{
			Mode: "tmux",
		},
	}
	err := Validate(cfg)
	if err != ErrInvalidSessionMode {
		t.Errorf("expected ErrInvalidSessionMode, got %v", err)
	}
}

func TestValidate_ExecModeNeedsBinary(t *testing.T) {
	cfg := &Config{
		Session: SessionConfig{
			Mode: "exec",
		},
	}
	err := Validate(cfg)
	if err != ErrSessionBinaryRequired {
		t.Errorf("expected ErrSessionBinaryRequired, got %v", err)
	}
}

func TestValidate_TimeoutCap(t *testing.T) {
	cfg := &Config{
		Session: SessionConfig{
			Mode:    "mock",
			Timeout: 3 * time.Hour,
		},
	}
	err := Validate(cfg)
	if err != ErrInvalidTimeout {
		t.Errorf("expected ErrInvalidTimeout, got %v", err)
	}
}

func TestValidate_NegativeSlots(t *testing.T) {
	cfg := &Config{
		Worker: WorkerConfig{
			Slots: -1,
		},
	}
	err := Validate(cfg)
	if err != ErrInvalidSlots {
		t.Errorf("expected ErrInvalidSlots, got %v", err)
	}
}

func TestValidate_InvalidSweepCron(t *testing.T) {
	cfg := &Config{
		Sweeps: SweepsConfig{
			Cron: "not a cron",
		},
	}
	err := Validate(cfg)
	if err != ErrInvalidSweepCron {
		t.Errorf("expected ErrInvalidSweepCron, got %v", err)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := Default()
	if cfg.Server.Addr != want.Server.Addr {
		t.Errorf("addr = %q, want default %q", cfg.Server.Addr, want.Server.Addr)
	}
	if cfg.Session.Timeout != 30*time.Minute {
		t.Errorf("timeout = %v, want 30m", cfg.Session.Timeout)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: "127.0.0.1:9999"
session:
  mode: mock
  timeout: 10m
worker:
  slots: 3
  roles: [qa]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Session.Mode != "mock" || cfg.Session.Timeout != 10*time.Minute {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Worker.Slots != 3 || len(cfg.Worker.Roles) != 1 || cfg.Worker.Roles[0] != "qa" {
		t.Errorf("worker = %+v", cfg.Worker)
	}
	// Untouched sections keep defaults.
	if cfg.Sweeps.HeartbeatWindow != 5*time.Minute {
		t.Errorf("heartbeat window = %v, want default 5m", cfg.Sweeps.HeartbeatWindow)
	}
}

func TestLoad_InvalidFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != ErrInvalidLogLevel {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	cases := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/data", filepath.Join(home, "data")},
		{"/abs/path", "/abs/path"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExpandPath(tc.in); got != tc.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
