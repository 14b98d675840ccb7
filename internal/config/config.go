// Package config loads and validates the scanner's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete scanner configuration.
type Config struct {
	InstanceID       string         `yaml:"instance_id"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig   `yaml:"camera"`
	Decode           DecodeConfig   `yaml:"decode"`
	Consumer         ConsumerConfig `yaml:"consumer"`
	Health           HealthConfig   `yaml:"health"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
}

// CameraConfig selects and configures the frame source.
type CameraConfig struct {
	Source string `yaml:"source"` // v4l2, mock
	Device string `yaml:"device"` // v4l2 device node, e.g. /dev/video0
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	Mirror bool   `yaml:"mirror"` // horizontal flip for selfie-style preview
}

// DecodeConfig tunes the background decode worker.
type DecodeConfig struct {
	SampleIntervalMS int `yaml:"sample_interval_ms"` // decode rate limiter (default: 50)
	JoinTimeoutS     int `yaml:"join_timeout_s"`     // shutdown join bound (default: 3)
}

// ConsumerConfig tunes the polling consumer.
type ConsumerConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"` // result poll cadence (default: 100)
}

// HealthConfig configures the local HTTP surface.
type HealthConfig struct {
	Port int `yaml:"port"` // 0 disables the HTTP server
}

// MQTTConfig configures scan-event publishing. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Topic  string `yaml:"topic"`
	QoS    byte   `yaml:"qos"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}
