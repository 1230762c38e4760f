package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MergesDefaultsAndEnv(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "audiod.json")
	data := `{
		"logging": {"level": "debug"},
		"mixer": {"pulse": {"app_name": "audiod-test"}},
		"track": {"max_count": 8}
	}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("AUDIOD_LISTEN", "0.0.0.0:9999")
	t.Setenv("PULSE_SERVER", "unix:/tmp/pulse.sock")
	t.Setenv("AUDIOD_UMI_ENDPOINT", "ws://umi.local/ctl")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "warn" {
		t.Fatalf("expected LOG_LEVEL to override config, got %q", cfg.Logging.Level)
	}
	if cfg.Track.MaxCount != 8 {
		t.Fatalf("expected max_count to be 8, got %d", cfg.Track.MaxCount)
	}
	if cfg.Mixer.Pulse.AppName != "audiod-test" {
		t.Fatalf("expected app_name from file, got %q", cfg.Mixer.Pulse.AppName)
	}
	if cfg.Mixer.Pulse.HealthIntervalMs != 2000 {
		t.Fatalf("expected default health interval to be preserved, got %d", cfg.Mixer.Pulse.HealthIntervalMs)
	}
	if cfg.Service.Listen != "0.0.0.0:9999" {
		t.Fatalf("expected listen address from env, got %q", cfg.Service.Listen)
	}
	if cfg.Mixer.Pulse.Server != "unix:/tmp/pulse.sock" {
		t.Fatalf("expected pulse server from env")
	}
	if !cfg.Mixer.Umi.Enabled || cfg.Mixer.Umi.Endpoint != "ws://umi.local/ctl" {
		t.Fatalf("expected umi endpoint env to enable umi, got %+v", cfg.Mixer.Umi)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Track.MaxCount != 32 {
		t.Fatalf("expected default max_count 32, got %d", cfg.Track.MaxCount)
	}
	if cfg.Service.Path != "/audio" {
		t.Fatalf("expected default service path, got %q", cfg.Service.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *AppConfig)
	}{
		{"empty policy path", func(c *AppConfig) { c.Policy.Path = " " }},
		{"zero track count", func(c *AppConfig) { c.Track.MaxCount = 0 }},
		{"bad service path", func(c *AppConfig) { c.Service.Path = "audio" }},
		{"unknown master mixer", func(c *AppConfig) { c.Master.Mixer = "alsa" }},
		{"umi without endpoint", func(c *AppConfig) { c.Mixer.Umi.Enabled = true; c.Mixer.Umi.Endpoint = "" }},
		{"unknown bus", func(c *AppConfig) { c.Presence.Bus = "user" }},
		{"zero poll interval", func(c *AppConfig) { c.Device.PollIntervalMs = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}
