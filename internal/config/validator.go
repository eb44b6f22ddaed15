package config

import (
	"fmt"
	"regexp"

	"github.com/visiona/texrelay/internal/sink"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

var validQualities = map[string]bool{
	"": true, "best": true, "1080p": true, "720p": true, "480p": true,
}

// Validate checks if the configuration is valid and fills defaults
func Validate(cfg *Config) error {
	// Validate instance_id
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	if err := validateOutput(&cfg.Output); err != nil {
		return err
	}
	if err := validateRelay(&cfg.Relay); err != nil {
		return err
	}

	if !validQualities[cfg.Engine.Quality] {
		return fmt.Errorf("engine.quality must be one of best, 1080p, 720p, 480p")
	}
	if cfg.Engine.BufferSecs < 0 {
		return fmt.Errorf("engine.buffer_secs must be >= 0")
	}

	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = "127.0.0.1:8710"
	}

	// MQTT is optional; defaults apply only when a broker is set
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("texrelay/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Status == "" {
			cfg.MQTT.Topics.Status = fmt.Sprintf("texrelay/status/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("texrelay/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control": 1,
				"status":  1,
				"health":  0,
			}
		}
	}

	if cfg.Store.HistoryLimit <= 0 {
		cfg.Store.HistoryLimit = 50
	}
	if cfg.Store.RetentionDays < 0 {
		return fmt.Errorf("store retention_days must not be negative, got %d", cfg.Store.RetentionDays)
	}
	if cfg.Store.RetentionDays == 0 {
		cfg.Store.RetentionDays = 30
	}

	return nil
}

func validateOutput(out *OutputConfig) error {
	switch out.Kind {
	case "":
		out.Kind = string(sink.KindBus)
	case string(sink.KindBus):
	case string(sink.KindWS):
		if out.WSEndpoint == "" {
			return fmt.Errorf("output.ws_endpoint is required when output.kind is ws")
		}
	default:
		return fmt.Errorf("output.kind must be 'bus' or 'ws', got '%s'", out.Kind)
	}

	if out.ServiceName == "" {
		out.ServiceName = sink.DefaultServiceName()
	}
	return nil
}

func validateRelay(r *RelayConfig) error {
	if r.TickMs < 0 || r.PreviewIntervalMs < 0 || r.NegotiateStepMs < 0 {
		return fmt.Errorf("relay timing values must be >= 0")
	}
	if r.TickMs == 0 {
		r.TickMs = 16
	}
	if r.PreviewIntervalMs == 0 {
		r.PreviewIntervalMs = 66
	}
	if r.PreviewWidth == 0 {
		r.PreviewWidth = 320
	}
	if r.NegotiateStepMs == 0 {
		r.NegotiateStepMs = 100
	}
	if r.NegotiateAttempts == 0 {
		r.NegotiateAttempts = 300
	}
	if r.FailureThreshold == 0 {
		r.FailureThreshold = 30
	}
	if r.InitialWidth == 0 {
		r.InitialWidth = 1280
	}
	if r.InitialHeight == 0 {
		r.InitialHeight = 720
	}
	if r.InitialWidth < 0 || r.InitialHeight < 0 {
		return fmt.Errorf("relay.initial_width and relay.initial_height must be > 0")
	}
	if r.PreviewWidth < 0 || r.PreviewWidth > r.InitialWidth*4 {
		return fmt.Errorf("relay.preview_width out of range")
	}
	if r.FailureThreshold < 0 {
		return fmt.Errorf("relay.failure_threshold must be > 0")
	}
	return nil
}
