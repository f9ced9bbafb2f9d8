package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tracking TrackingConfig `yaml:"tracking"`
	Stream   StreamConfig   `yaml:"stream"`
	Status   StatusConfig   `yaml:"status"`
	Diag     DiagConfig     `yaml:"diag"`
}

// TrackingConfig tunes the sensor session and its quality monitor.
type TrackingConfig struct {
	TargetRateHz     float64 `yaml:"target_rate_hz"`
	StallThresholdMs float64 `yaml:"stall_threshold_ms"`
	Window           int     `yaml:"window"`
	// The sensing-mode toggles are performance knobs only; this core never
	// consumes planes or light estimates.
	DisablePlaneFinding  bool `yaml:"disable_plane_finding"`
	DisableLightEstimate bool `yaml:"disable_light_estimation"`
}

// StreamConfig holds the remote endpoint and transport timings. The
// reconnect delays drive the caller's redial loop, not the client itself.
type StreamConfig struct {
	Endpoint           string        `yaml:"endpoint"`
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
}

// StatusConfig configures the local observable-outputs websocket for the
// presentation layer. Loopback-only by default.
type StatusConfig struct {
	Addr              string        `yaml:"addr"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

// DiagConfig configures the host load sampler.
type DiagConfig struct {
	SampleInterval time.Duration `yaml:"sample_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Tracking: TrackingConfig{
			TargetRateHz:         60,
			StallThresholdMs:     100,
			Window:               60,
			DisablePlaneFinding:  true,
			DisableLightEstimate: true,
		},
		Stream: StreamConfig{
			Endpoint:           "wss://127.0.0.1:8443/teleop",
			HandshakeTimeout:   10 * time.Second,
			WriteTimeout:       10 * time.Second,
			PingInterval:       30 * time.Second,
			ReconnectBaseDelay: time.Second,
			ReconnectMaxDelay:  30 * time.Second,
		},
		Status: StatusConfig{
			Addr:              "127.0.0.1:8081",
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Diag: DiagConfig{
			SampleInterval: 5 * time.Second,
		},
	}
}

// Load reads a YAML config file over the defaults. Unspecified fields keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the default config when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tracking.TargetRateHz <= 0 {
		return fmt.Errorf("tracking.target_rate_hz must be positive, got %v", c.Tracking.TargetRateHz)
	}
	if c.Tracking.StallThresholdMs <= 0 {
		return fmt.Errorf("tracking.stall_threshold_ms must be positive, got %v", c.Tracking.StallThresholdMs)
	}
	if c.Tracking.Window <= 0 {
		return fmt.Errorf("tracking.window must be positive, got %d", c.Tracking.Window)
	}
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream.endpoint must be set")
	}
	return nil
}
