package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samuelcolvin/qrcam/internal/types"
)

// MockConfig configures the synthetic frame source.
type MockConfig struct {
	Width  int
	Height int
	FPS    int
}

// MockSource generates synthetic packed 4:2:2 frames on a ticker. It exists
// for development and tests on machines without a camera: the daemon runs the
// exact same pipeline, fed by generated frames instead of V4L2 buffers.
//
// Each frame carries a vertical bright bar that advances one pixel pair per
// frame against a dark background, with neutral chroma throughout. Converted
// output is therefore visibly animated and deterministic per sequence number.
type MockSource struct {
	cfg     MockConfig
	handler FrameHandler

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup

	frameCount uint64
	bytesRead  uint64
	started    time.Time
}

// NewMockSource creates a synthetic source with fail-fast validation.
// Width must be even (packed 4:2:2 stores pixels in pairs).
func NewMockSource(cfg MockConfig, handler FrameHandler) (*MockSource, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("capture: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Width%2 != 0 {
		return nil, fmt.Errorf("capture: width %d must be even for packed 4:2:2", cfg.Width)
	}
	if cfg.FPS < 1 || cfg.FPS > 60 {
		return nil, fmt.Errorf("capture: invalid FPS %d (must be 1-60)", cfg.FPS)
	}
	if handler == nil {
		return nil, fmt.Errorf("capture: frame handler is required")
	}
	return &MockSource{cfg: cfg, handler: handler}, nil
}

// Start launches the generator goroutine. Returns immediately.
func (s *MockSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return fmt.Errorf("capture: source already started")
	}

	s.stopCh = make(chan struct{})
	s.started = time.Now()

	s.wg.Add(1)
	go s.run(ctx, s.stopCh)

	slog.Info("capture: mock source started",
		"resolution", fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		"fps", s.cfg.FPS,
	)
	return nil
}

func (s *MockSource) run(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			seq := atomic.AddUint64(&s.frameCount, 1)
			plane := s.generate(seq)
			atomic.AddUint64(&s.bytesRead, uint64(len(plane.Data)))
			s.handler.OnFrame([]types.Plane{plane})
		}
	}
}

// generate builds one packed 4:2:2 plane. The bright bar sits at pixel-pair
// column seq modulo groups; everything else is dark, chroma stays neutral.
func (s *MockSource) generate(seq uint64) types.Plane {
	stride := uint32(s.cfg.Width * 2)
	height := uint32(s.cfg.Height)
	data := make([]byte, int(stride)*int(height))

	groups := s.cfg.Width / 2
	bar := int(seq % uint64(groups))

	for y := 0; y < s.cfg.Height; y++ {
		row := y * int(stride)
		for x := 0; x < groups; x++ {
			luma := byte(32)
			if x == bar {
				luma = 224
			}
			off := row + x*4
			data[off] = 128    // U
			data[off+1] = luma // Y0
			data[off+2] = 128  // V
			data[off+3] = luma // Y1
		}
	}

	return types.Plane{Stride: stride, Height: height, Data: data}
}

// Stop halts the generator and waits for it to exit. No frames are delivered
// after Stop returns. Idempotent.
func (s *MockSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh == nil {
		return nil
	}

	close(s.stopCh)
	s.wg.Wait()
	s.stopCh = nil

	slog.Info("capture: mock source stopped",
		"frames_generated", atomic.LoadUint64(&s.frameCount),
	)
	return nil
}

// Stats returns a snapshot of generator counters.
func (s *MockSource) Stats() Stats {
	s.mu.Lock()
	running := s.stopCh != nil
	started := s.started
	s.mu.Unlock()

	frames := atomic.LoadUint64(&s.frameCount)

	var fps float64
	if running && !started.IsZero() {
		if uptime := time.Since(started).Seconds(); uptime > 0 {
			fps = float64(frames) / uptime
		}
	}

	return Stats{
		FramesDelivered: frames,
		BytesRead:       atomic.LoadUint64(&s.bytesRead),
		FPSReal:         fps,
		Resolution:      fmt.Sprintf("%dx%d", s.cfg.Width, s.cfg.Height),
		IsRunning:       running,
	}
}
