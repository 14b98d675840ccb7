package core

import (
	"context"
	"testing"
	"time"

	"github.com/samuelcolvin/qrcam/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		InstanceID: "test-scanner",
		Camera: config.CameraConfig{
			Source: "mock",
			Width:  64,
			Height: 16,
			FPS:    30,
		},
		Decode:   config.DecodeConfig{SampleIntervalMS: 10, JoinTimeoutS: 3},
		Consumer: config.ConsumerConfig{PollIntervalMS: 10},
	}
	if err := config.Validate(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// TestScannerEndToEnd validates the composed service: mock frames flow
// through conversion into the snapshot path, the decode worker cycles, and
// shutdown is clean within the configured bound.
func TestScannerEndToEnd(t *testing.T) {
	s, err := newScanner(testConfig())
	if err != nil {
		t.Fatalf("newScanner() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := s.LatestSnapshot(); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	frame, ok := s.LatestSnapshot()
	if !ok {
		t.Fatal("no snapshot after mock frames")
	}
	if frame.Image.Bounds().Dx() != 64 || frame.Image.Bounds().Dy() != 16 {
		t.Errorf("snapshot bounds %v, want 64x16", frame.Image.Bounds())
	}
	if frame.TraceID == "" {
		t.Error("snapshot has no trace id")
	}

	st := s.Stats()
	if st.Capture.FramesDelivered == 0 {
		t.Error("no frames captured")
	}
	if st.Pipeline.Sink.FramesReceived == 0 {
		t.Error("sink saw no frames")
	}

	cancel()
	if err := <-runDone; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.ShutdownTimeout())
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	if s.Stats().Pipeline.Worker.State != "stopped" {
		t.Errorf("worker state = %q after shutdown, want stopped", s.Stats().Pipeline.Worker.State)
	}
}

// TestScannerShutdownWithoutRun validates Shutdown works on a scanner that
// never started capturing.
func TestScannerShutdownWithoutRun(t *testing.T) {
	s, err := newScanner(testConfig())
	if err != nil {
		t.Fatalf("newScanner() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
}
