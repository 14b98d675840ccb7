package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5
	}

	switch cfg.Camera.Source {
	case "":
		cfg.Camera.Source = "v4l2"
	case "v4l2", "mock":
	default:
		return fmt.Errorf("camera.source must be 'v4l2' or 'mock', got %q", cfg.Camera.Source)
	}

	if cfg.Camera.Source == "v4l2" && cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.Width <= 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height <= 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.Width%2 != 0 {
		return fmt.Errorf("camera.width must be even for packed 4:2:2, got %d", cfg.Camera.Width)
	}
	if cfg.Camera.FPS <= 0 {
		cfg.Camera.FPS = 30
	}
	if cfg.Camera.FPS > 60 {
		return fmt.Errorf("camera.fps must be 1-60, got %d", cfg.Camera.FPS)
	}

	if cfg.Decode.SampleIntervalMS <= 0 {
		cfg.Decode.SampleIntervalMS = 50
	}
	if cfg.Decode.JoinTimeoutS <= 0 {
		cfg.Decode.JoinTimeoutS = 3
	}

	if cfg.Consumer.PollIntervalMS <= 0 {
		cfg.Consumer.PollIntervalMS = 100
	}

	if cfg.Health.Port < 0 || cfg.Health.Port > 65535 {
		return fmt.Errorf("health.port must be 0-65535, got %d", cfg.Health.Port)
	}

	// MQTT is optional: no broker means no emitter.
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("qrcam/scans/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0-2, got %d", cfg.MQTT.QoS)
		}
	}

	return nil
}
