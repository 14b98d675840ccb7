// Package emitter publishes scan events to an MQTT broker.
//
// The emitter is optional: the scanner runs fine without a broker, and a
// failed publish never propagates back into the frame or decode paths.
package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/samuelcolvin/qrcam/internal/types"
)

// Config configures the MQTT emitter.
type Config struct {
	// Broker is the host:port of the MQTT broker.
	Broker string
	// ClientID identifies this scanner instance to the broker.
	ClientID string
	// Topic is the topic scan events are published to.
	Topic string
	// QoS is the MQTT quality-of-service level for scan events.
	QoS byte
}

// MQTTEmitter publishes scan events to an MQTT broker with automatic
// reconnection.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTTEmitter creates an emitter. Connect must be called before Publish.
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{cfg: cfg}
}

// Connect establishes the broker connection. Auto-reconnect is enabled, so
// a connection lost later recovers without intervention; publishes in the
// gap fail and are counted.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.mu.Lock()
		e.connected = true
		e.mu.Unlock()
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	e.client = mqtt.NewClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("emitter: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()

	return nil
}

// Publish sends one scan event to the configured topic.
func (e *MQTTEmitter) Publish(event types.ScanEvent) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("emitter: mqtt not connected")
	}

	payload, err := event.ToJSON()
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: failed to marshal scan event: %w", err)
	}

	token := e.client.Publish(e.cfg.Topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()

	slog.Debug("emitter: scan event published",
		"topic", e.cfg.Topic,
		"qos", e.cfg.QoS,
		"symbols", len(event.Results),
		"size", len(payload),
	)

	return nil
}

// Disconnect closes the broker connection with a short grace period.
// Idempotent.
func (e *MQTTEmitter) Disconnect() error {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250)
		slog.Info("emitter: mqtt disconnected")
	}

	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()

	return nil
}

// Stats is a snapshot of emitter counters.
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns a snapshot of emitter counters.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Published: e.published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
