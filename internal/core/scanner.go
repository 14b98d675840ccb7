// Package core wires the scanner together: a capture provider feeding the
// frame pipeline, a polling consumer draining the read side, the optional
// MQTT emitter, and the local health surface.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samuelcolvin/qrcam/internal/capture"
	"github.com/samuelcolvin/qrcam/internal/config"
	"github.com/samuelcolvin/qrcam/internal/decode"
	"github.com/samuelcolvin/qrcam/internal/emitter"
	"github.com/samuelcolvin/qrcam/internal/pipeline"
	"github.com/samuelcolvin/qrcam/internal/types"
)

// Scanner is the composed service. Construction wires everything but starts
// nothing except the pipeline's decode worker; Run starts capture and the
// consumer, Shutdown tears it all down in reverse order.
type Scanner struct {
	cfg *config.Config

	pipeline *pipeline.Pipeline
	provider capture.Provider
	emitter  *emitter.MQTTEmitter // nil when no broker is configured

	wg sync.WaitGroup

	// Latest display frame, retained for the snapshot endpoint.
	mu        sync.Mutex
	lastImage types.RGBAFrame
	hasImage  bool

	eventsPublished uint64
	symbolsSeen     uint64
}

// NewScanner loads configuration and builds the service.
func NewScanner(configPath string) (*Scanner, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newScanner(cfg)
}

func newScanner(cfg *config.Config) (*Scanner, error) {
	s := &Scanner{cfg: cfg}

	s.pipeline = pipeline.New(pipeline.Config{
		Mirror:         cfg.Camera.Mirror,
		SampleInterval: time.Duration(cfg.Decode.SampleIntervalMS) * time.Millisecond,
		JoinTimeout:    time.Duration(cfg.Decode.JoinTimeoutS) * time.Second,
	}, decode.NewZXingEngine())

	var provider capture.Provider
	var err error
	switch cfg.Camera.Source {
	case "mock":
		provider, err = capture.NewMockSource(capture.MockConfig{
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		}, s.pipeline)
	default:
		provider, err = capture.NewV4L2Source(capture.V4L2Config{
			Device: cfg.Camera.Device,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.FPS,
		}, s.pipeline)
	}
	if err != nil {
		// The decode worker is already running; stop it before reporting.
		if stopErr := s.pipeline.Shutdown(); stopErr != nil {
			slog.Error("core: pipeline shutdown during failed construction", "error", stopErr)
		}
		return nil, fmt.Errorf("core: failed to create capture provider: %w", err)
	}
	s.provider = provider

	if cfg.MQTT.Broker != "" {
		s.emitter = emitter.NewMQTTEmitter(emitter.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.InstanceID,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
		})
	}

	slog.Info("core: scanner created",
		"instance_id", cfg.InstanceID,
		"source", cfg.Camera.Source,
		"resolution", fmt.Sprintf("%dx%d", cfg.Camera.Width, cfg.Camera.Height),
		"mirror", cfg.Camera.Mirror,
		"sample_interval_ms", cfg.Decode.SampleIntervalMS,
		"mqtt_enabled", s.emitter != nil,
	)

	return s, nil
}

// Run starts capture and the polling consumer, then blocks until the context
// is cancelled. The emitter connection is attempted first but is not fatal:
// auto-reconnect recovers it later, and scanning works without a broker.
func (s *Scanner) Run(ctx context.Context) error {
	if s.emitter != nil {
		if err := s.emitter.Connect(ctx); err != nil {
			slog.Warn("core: mqtt connect failed, continuing without broker", "error", err)
		}
	}

	if err := s.provider.Start(ctx); err != nil {
		return fmt.Errorf("core: failed to start capture: %w", err)
	}

	s.wg.Add(1)
	go s.consumeResults(ctx)

	slog.Info("core: scanner running")
	<-ctx.Done()
	return nil
}

// Shutdown stops the service in reverse dependency order: capture first so
// no new frames arrive, then the decode worker, then the broker connection.
// The context bounds the whole sequence.
func (s *Scanner) Shutdown(ctx context.Context) error {
	slog.Info("core: shutting down")

	done := make(chan error, 1)
	go func() {
		var firstErr error
		if err := s.provider.Stop(); err != nil {
			firstErr = err
		}
		if err := s.pipeline.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.wg.Wait()
		if s.emitter != nil {
			if err := s.emitter.Disconnect(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		done <- firstErr
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("core: shutdown: %w", err)
		}
		slog.Info("core: shutdown complete")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("core: shutdown timed out: %w", ctx.Err())
	}
}

// ShutdownTimeout returns the configured graceful shutdown bound.
func (s *Scanner) ShutdownTimeout() time.Duration {
	return time.Duration(s.cfg.ShutdownTimeoutS) * time.Second
}

// HealthPort returns the configured health server port (0 = disabled).
func (s *Scanner) HealthPort() int {
	return s.cfg.Health.Port
}

// LatestSnapshot returns the most recent display frame, if any has arrived.
func (s *Scanner) LatestSnapshot() (types.RGBAFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastImage, s.hasImage
}

// Stats aggregates a snapshot of every component's counters.
type Stats struct {
	InstanceID      string         `json:"instance_id"`
	Capture         capture.Stats  `json:"capture"`
	Pipeline        pipeline.Stats `json:"pipeline"`
	Emitter         *emitter.Stats `json:"emitter,omitempty"`
	EventsPublished uint64         `json:"events_published"`
	SymbolsSeen     uint64         `json:"symbols_seen"`
}

// Stats returns a snapshot of all service counters.
func (s *Scanner) Stats() Stats {
	st := Stats{
		InstanceID:      s.cfg.InstanceID,
		Capture:         s.provider.Stats(),
		Pipeline:        s.pipeline.Stats(),
		EventsPublished: atomic.LoadUint64(&s.eventsPublished),
		SymbolsSeen:     atomic.LoadUint64(&s.symbolsSeen),
	}
	if s.emitter != nil {
		es := s.emitter.Stats()
		st.Emitter = &es
	}
	return st
}
