package pipeline_test

import (
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samuelcolvin/qrcam/internal/pipeline"
	"github.com/samuelcolvin/qrcam/internal/types"
)

// countingEngine records decodes without finding anything.
type countingEngine struct {
	calls uint64
}

func (e *countingEngine) Decode(img *image.Gray) ([]types.ScanResult, error) {
	atomic.AddUint64(&e.calls, 1)
	return nil, nil
}

// uyvyPlane builds a uniform packed 4:2:2 plane.
func uyvyPlane(stride, height uint32, y byte) types.Plane {
	data := make([]byte, stride*height)
	for i := 0; i+3 < len(data); i += 4 {
		data[i] = 128
		data[i+1] = y
		data[i+2] = 128
		data[i+3] = y
	}
	return types.Plane{Stride: stride, Height: height, Data: data}
}

// TestOnFramePublishesBothImages validates a complete plane lands in both
// the RGBA and the grayscale staging paths.
func TestOnFramePublishesBothImages(t *testing.T) {
	p := pipeline.New(pipeline.Config{SampleInterval: time.Hour}, &countingEngine{})
	defer p.Shutdown()

	p.OnFrame([]types.Plane{uyvyPlane(32, 8, 77)})

	frame, ok := p.TakeLatestImage()
	if !ok {
		t.Fatal("no image after OnFrame")
	}
	if frame.Image.Bounds().Dx() != 16 || frame.Image.Bounds().Dy() != 8 {
		t.Fatalf("image bounds %v, want 16x8", frame.Image.Bounds())
	}
	if frame.Seq != 1 {
		t.Errorf("seq = %d, want 1", frame.Seq)
	}
	if frame.TraceID == "" {
		t.Error("trace id not assigned")
	}

	// Destructive read: nothing new since.
	if _, ok := p.TakeLatestImage(); ok {
		t.Error("second TakeLatestImage returned a frame")
	}

	st := p.Stats()
	if st.Gray.Writes != 1 {
		t.Errorf("gray writes = %d, want 1", st.Gray.Writes)
	}
}

// TestOnFrameSkipsIncompletePlanes validates planes missing stride, height
// or data are dropped without error and without publishing.
func TestOnFrameSkipsIncompletePlanes(t *testing.T) {
	p := pipeline.New(pipeline.Config{SampleInterval: time.Hour}, &countingEngine{})
	defer p.Shutdown()

	p.OnFrame([]types.Plane{
		{Stride: 0, Height: 8, Data: make([]byte, 64)}, // no stride
		{Stride: 32, Height: 0, Data: make([]byte, 64)}, // no height
		{Stride: 32, Height: 8, Data: nil},              // no data
	})

	if _, ok := p.TakeLatestImage(); ok {
		t.Fatal("incomplete planes must not publish")
	}

	st := p.Stats()
	if st.Sink.PlanesSkipped != 3 {
		t.Errorf("PlanesSkipped = %d, want 3", st.Sink.PlanesSkipped)
	}
	if st.Sink.FramesReceived != 1 {
		t.Errorf("FramesReceived = %d, want 1", st.Sink.FramesReceived)
	}
}

// TestLatestImageWins validates overwrite semantics end to end: a slow
// consumer sees only the newest frame.
func TestLatestImageWins(t *testing.T) {
	p := pipeline.New(pipeline.Config{SampleInterval: time.Hour}, &countingEngine{})
	defer p.Shutdown()

	for i := 0; i < 5; i++ {
		p.OnFrame([]types.Plane{uyvyPlane(32, 8, byte(10*i))})
	}

	frame, ok := p.TakeLatestImage()
	if !ok {
		t.Fatal("no image")
	}
	if frame.Seq != 5 {
		t.Fatalf("seq = %d, want 5 (latest frame wins)", frame.Seq)
	}
	if drops := p.Stats().RGBA.Drops; drops != 4 {
		t.Errorf("rgba drops = %d, want 4", drops)
	}
}

// TestFrameReachesDecoder validates the full path: OnFrame → gray mailbox →
// worker → results mailbox, and that shutdown silences the engine.
func TestFrameReachesDecoder(t *testing.T) {
	engine := &countingEngine{}
	p := pipeline.New(pipeline.Config{SampleInterval: 10 * time.Millisecond}, engine)

	p.OnFrame([]types.Plane{uyvyPlane(32, 8, 50)})

	deadline := time.Now().Add(time.Second)
	var batch types.ScanBatch
	var got bool
	for time.Now().Before(deadline) {
		if batch, got = p.TakeLatestResults(); got {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !got {
		t.Fatal("no result batch produced")
	}
	if batch.Seq != 1 {
		t.Errorf("batch seq = %d, want 1", batch.Seq)
	}

	if err := p.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	before := atomic.LoadUint64(&engine.calls)
	p.OnFrame([]types.Plane{uyvyPlane(32, 8, 60)})
	time.Sleep(50 * time.Millisecond)
	if after := atomic.LoadUint64(&engine.calls); after != before {
		t.Fatalf("engine called after shutdown: %d → %d", before, after)
	}
}
