package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

const DefaultPath = "config/audiod.json"

type AppConfig struct {
	Logging  LoggingConfig  `json:"logging"`
	Policy   PolicyConfig   `json:"policy"`
	Mixer    MixerConfig    `json:"mixer"`
	Service  ServiceConfig  `json:"service"`
	Track    TrackConfig    `json:"track"`
	Master   MasterConfig   `json:"master"`
	Playback PlaybackConfig `json:"playback"`
	Device   DeviceConfig   `json:"device"`
	Presence PresenceConfig `json:"presence"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// PolicyConfig 音量策略表文件，支持 JSON 或 YAML
type PolicyConfig struct {
	Path string `json:"path"`
}

type MixerConfig struct {
	Pulse PulseConfig `json:"pulse"`
	Umi   UmiConfig   `json:"umi"`
}

type PulseConfig struct {
	Enabled          bool   `json:"enabled"`
	Server           string `json:"server"`
	AppName          string `json:"app_name"`
	HealthIntervalMs int    `json:"health_interval_ms"`
}

// UmiConfig 硬件混音器的 websocket 控制端点
type UmiConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	ReconnectMs int    `json:"reconnect_ms"`
}

type ServiceConfig struct {
	Listen string `json:"listen"`
	Path   string `json:"path"`
}

type TrackConfig struct {
	MaxCount int `json:"max_count"`
}

// MasterConfig 主音量由哪个混音器负责，以及 pulse 下的物理 sink
type MasterConfig struct {
	Mixer       string `json:"mixer"`
	SoundOutput string `json:"sound_output"`
}

type PlaybackConfig struct {
	SoundsDir  string `json:"sounds_dir"`
	MaxStreams int    `json:"max_streams"`
}

type DeviceConfig struct {
	Enabled        bool `json:"enabled"`
	PollIntervalMs int  `json:"poll_interval_ms"`
}

type PresenceConfig struct {
	DBusEnabled bool   `json:"dbus_enabled"`
	Bus         string `json:"bus"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{},
		Policy: PolicyConfig{
			Path: "config/audio_policy.json",
		},
		Mixer: MixerConfig{
			Pulse: PulseConfig{
				Enabled:          true,
				AppName:          "audiod",
				HealthIntervalMs: 2000,
			},
			Umi: UmiConfig{
				Enabled:     false,
				Endpoint:    "ws://127.0.0.1:9400/umi",
				ReconnectMs: 1000,
			},
		},
		Service: ServiceConfig{
			Listen: "127.0.0.1:9300",
			Path:   "/audio",
		},
		Track: TrackConfig{
			MaxCount: 32,
		},
		Master: MasterConfig{
			Mixer:       "pulse",
			SoundOutput: "alsa",
		},
		Playback: PlaybackConfig{
			SoundsDir:  "/usr/share/sounds/audiod",
			MaxStreams: 4,
		},
		Device: DeviceConfig{
			Enabled:        true,
			PollIntervalMs: 1000,
		},
		Presence: PresenceConfig{
			DBusEnabled: false,
			Bus:         "session",
		},
	}
}

func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func (c *AppConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}
	if listen := strings.TrimSpace(os.Getenv("AUDIOD_LISTEN")); listen != "" {
		c.Service.Listen = listen
	}
	if policy := strings.TrimSpace(os.Getenv("AUDIOD_POLICY")); policy != "" {
		c.Policy.Path = policy
	}
	if server := strings.TrimSpace(os.Getenv("PULSE_SERVER")); server != "" {
		c.Mixer.Pulse.Server = server
	}
	if endpoint := strings.TrimSpace(os.Getenv("AUDIOD_UMI_ENDPOINT")); endpoint != "" {
		c.Mixer.Umi.Endpoint = endpoint
		c.Mixer.Umi.Enabled = true
	}
}

func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Policy.Path) == "" {
		return errors.New("policy.path is required")
	}
	if strings.TrimSpace(c.Service.Listen) == "" {
		return errors.New("service.listen is required")
	}
	if !strings.HasPrefix(c.Service.Path, "/") {
		return fmt.Errorf("service.path must start with '/': %s", c.Service.Path)
	}
	if c.Track.MaxCount <= 0 {
		return errors.New("track.max_count must be positive")
	}
	if c.Mixer.Pulse.HealthIntervalMs < 0 {
		return errors.New("mixer.pulse.health_interval_ms must be non-negative")
	}
	if c.Mixer.Umi.Enabled && strings.TrimSpace(c.Mixer.Umi.Endpoint) == "" {
		return errors.New("mixer.umi.endpoint is required when umi is enabled")
	}
	if c.Mixer.Umi.ReconnectMs < 0 {
		return errors.New("mixer.umi.reconnect_ms must be non-negative")
	}

	switch strings.ToLower(strings.TrimSpace(c.Master.Mixer)) {
	case "pulse", "umi":
	default:
		return fmt.Errorf("invalid master.mixer: %s", c.Master.Mixer)
	}

	if c.Playback.MaxStreams <= 0 {
		return errors.New("playback.max_streams must be positive")
	}
	if c.Device.PollIntervalMs <= 0 {
		return errors.New("device.poll_interval_ms must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Presence.Bus)) {
	case "session", "system":
	default:
		return fmt.Errorf("invalid presence.bus: %s", c.Presence.Bus)
	}

	return nil
}
