package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/samuelcolvin/qrcam/internal/types"
)

// V4L2Config configures a local camera source.
type V4L2Config struct {
	// Device is the V4L2 device node, e.g. "/dev/video0".
	Device string
	// Width and Height are the requested capture resolution.
	Width  int
	Height int
	// FPS is the requested capture rate.
	FPS int
}

// V4L2Source captures packed 4:2:2 frames from a local camera through
// GStreamer and delivers them to a FrameHandler, one plane per frame.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → capsfilter(UYVY) → appsink
//
// The capsfilter forces UYVY so the appsink always hands us packed 4:2:2
// regardless of what the camera produces natively; videoconvert does the
// format negotiation. The appsink is configured latest-wins (max-buffers=1,
// drop=true), matching the mailbox semantics downstream.
type V4L2Source struct {
	cfg     V4L2Config
	handler FrameHandler

	pipeline *gst.Pipeline
	appsink  *app.Sink

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	frameCount uint64
	bytesRead  uint64
	started    time.Time
}

// NewV4L2Source creates a camera source with fail-fast validation.
//
// Validates configuration at construction time:
//   - device path must not be empty
//   - resolution must be positive
//   - FPS must be between 1 and 60
//
// Returns an error if validation fails or GStreamer is not available.
func NewV4L2Source(cfg V4L2Config, handler FrameHandler) (*V4L2Source, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("capture: device path is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("capture: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < 1 || cfg.FPS > 60 {
		return nil, fmt.Errorf("capture: invalid FPS %d (must be 1-60)", cfg.FPS)
	}
	if handler == nil {
		return nil, fmt.Errorf("capture: frame handler is required")
	}
	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("capture: GStreamer not available: %w", err)
	}

	slog.Info("capture: camera source created",
		"device", cfg.Device,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FPS,
	)

	return &V4L2Source{cfg: cfg, handler: handler}, nil
}

// Start builds the GStreamer pipeline and begins capturing.
//
// Returns immediately; frames arrive asynchronously on the appsink's
// streaming thread once the pipeline reaches PLAYING state.
func (s *V4L2Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("capture: source already started")
	}

	if err := s.buildPipeline(); err != nil {
		return err
	}

	s.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()

	if err := s.pipeline.SetState(gst.StatePlaying); err != nil {
		s.cancel()
		s.cancel = nil
		return fmt.Errorf("capture: failed to start pipeline: %w", err)
	}

	s.wg.Add(1)
	go s.monitorBus()

	slog.Info("capture: camera source started", "device", s.cfg.Device)
	return nil
}

// buildPipeline constructs v4l2src → videoconvert → capsfilter → appsink.
func (s *V4L2Source) buildPipeline() error {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("capture: failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return fmt.Errorf("capture: failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", s.cfg.Device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("capture: failed to create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("capture: failed to create capsfilter: %w", err)
	}
	capsStr := fmt.Sprintf(
		"video/x-raw,format=UYVY,width=%d,height=%d,framerate=%d/1",
		s.cfg.Width, s.cfg.Height, s.cfg.FPS,
	)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("capture: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // no clock sync, deliver as fast as captured
	appsink.SetProperty("max-buffers", 1) // keep only latest frame
	appsink.SetProperty("drop", true)     // drop old frames

	if err := pipeline.AddMany(src, converter, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("capture: failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("capture: failed to link elements: %w", err)
	}

	s.pipeline = pipeline
	s.appsink = appsink
	return nil
}

// onNewSample runs on the appsink streaming thread for every captured frame.
//
// The buffer is copied before the handler sees it: GStreamer recycles the
// underlying memory as soon as we unmap. A failed pull or an empty buffer
// skips the frame instead of terminating the stream.
func (s *V4L2Source) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("capture: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("capture: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("capture: empty buffer received")
		return gst.FlowOK
	}

	planeData := make([]byte, len(data))
	copy(planeData, data)
	buffer.Unmap()

	atomic.AddUint64(&s.frameCount, 1)
	atomic.AddUint64(&s.bytesRead, uint64(len(planeData)))

	s.handler.OnFrame([]types.Plane{{
		Stride: uint32(s.cfg.Width * 2), // packed 4:2:2, two bytes per pixel
		Height: uint32(s.cfg.Height),
		Data:   planeData,
	}})

	return gst.FlowOK
}

// monitorBus watches the pipeline bus for errors and end-of-stream until the
// context is cancelled. A bus error is logged but does not tear the source
// down; the camera keeps whatever state GStreamer leaves it in and Stop
// remains the single teardown path.
func (s *V4L2Source) monitorBus() {
	defer s.wg.Done()

	bus := s.pipeline.GetPipelineBus()
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				slog.Warn("capture: end of stream from camera",
					"device", s.cfg.Device,
					"frames_captured", atomic.LoadUint64(&s.frameCount),
				)
				return
			case gst.MessageError:
				gerr := msg.ParseError()
				slog.Error("capture: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"device", s.cfg.Device,
				)
				return
			}
		}
	}
}

// Stop shuts the source down: cancels the bus monitor, waits for it with a
// timeout, and drops the pipeline to NULL. No frames are delivered after
// Stop returns. Idempotent.
func (s *V4L2Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("capture: stop timeout exceeded, bus monitor may still be running")
	}

	if s.pipeline != nil {
		if err := s.pipeline.SetState(gst.StateNull); err != nil {
			slog.Error("capture: failed to set pipeline to NULL", "error", err)
		}
		s.pipeline = nil
		s.appsink = nil
	}

	slog.Info("capture: camera source stopped",
		"frames_captured", atomic.LoadUint64(&s.frameCount),
		"uptime", time.Since(s.started),
	)

	s.cancel = nil
	s.ctx = nil
	return nil
}

// Stats returns a snapshot of capture counters.
func (s *V4L2Source) Stats() Stats {
	s.mu.Lock()
	running := s.cancel != nil
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

// checkGStreamerAvailable verifies GStreamer is installed and functional.
func checkGStreamerAvailable() error {
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}
