// Package config loads and validates the daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/visiona/texrelay/internal/relay"
)

// Config represents the complete texrelay configuration
type Config struct {
	InstanceID       string       `yaml:"instance_id"`
	ShutdownTimeoutS int          `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Output           OutputConfig `yaml:"output"`
	Relay            RelayConfig  `yaml:"relay"`
	Engine           EngineConfig `yaml:"engine"`
	HTTP             HTTPConfig   `yaml:"http"`
	MQTT             MQTTConfig   `yaml:"mqtt"`
	Store            StoreConfig  `yaml:"store"`
}

// OutputConfig contains texture-share output settings
type OutputConfig struct {
	Kind        string `yaml:"kind"`         // bus, ws
	ServiceName string `yaml:"service_name"` // discoverable share name
	WSEndpoint  string `yaml:"ws_endpoint"`  // receiver URL for kind=ws
	Flip        bool   `yaml:"flip"`         // render rows bottom-up
}

// RelayConfig contains session timing and sizing settings
type RelayConfig struct {
	TickMs             int `yaml:"tick_ms"`              // pump cadence (default: 16)
	PreviewIntervalMs  int `yaml:"preview_interval_ms"`  // preview emission floor (default: 66)
	PreviewWidth       int `yaml:"preview_width"`        // preview surface width (default: 320)
	NegotiateStepMs    int `yaml:"negotiate_step_ms"`    // resolution poll step (default: 100)
	NegotiateAttempts  int `yaml:"negotiate_attempts"`   // poll attempts before fallback (default: 300)
	FailureThreshold   int `yaml:"failure_threshold"`    // consecutive render failures before abort (default: 30)
	InitialWidth       int `yaml:"initial_width"`        // fallback width (default: 1280)
	InitialHeight      int `yaml:"initial_height"`       // fallback height (default: 720)
}

// EngineConfig contains decode engine settings
type EngineConfig struct {
	Quality    string `yaml:"quality"`     // default resolution cap: best, 1080p, 720p, 480p
	BufferSecs int    `yaml:"buffer_secs"` // decode buffering bound
}

// HTTPConfig contains the control API settings
type HTTPConfig struct {
	Listen string `yaml:"listen"` // bind address (default: 127.0.0.1:8710)
}

// MQTTConfig contains MQTT broker settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `yaml:"control"`
	Status  string `yaml:"status"`
	Health  string `yaml:"health"`
}

// StoreConfig contains session history settings
type StoreConfig struct {
	Path          string `yaml:"path"`           // sqlite file, empty disables history
	HistoryLimit  int    `yaml:"history_limit"`  // rows returned by history queries (default: 50)
	RetentionDays int    `yaml:"retention_days"` // prune sessions older than this (default: 30)
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// RelayOptions converts the relay section into session options. Identity and
// collaborator fields are left for the player to fill.
func (c *Config) RelayOptions() relay.Options {
	return relay.Options{
		InitialWidth:      c.Relay.InitialWidth,
		InitialHeight:     c.Relay.InitialHeight,
		FlipOutput:        c.Output.Flip,
		Tick:              time.Duration(c.Relay.TickMs) * time.Millisecond,
		PreviewInterval:   time.Duration(c.Relay.PreviewIntervalMs) * time.Millisecond,
		PreviewWidth:      c.Relay.PreviewWidth,
		NegotiateStep:     time.Duration(c.Relay.NegotiateStepMs) * time.Millisecond,
		NegotiateAttempts: c.Relay.NegotiateAttempts,
		FailureThreshold:  c.Relay.FailureThreshold,
	}
}

// MQTTEnabled reports whether a broker is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}
