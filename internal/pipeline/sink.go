package pipeline

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/samuelcolvin/qrcam/internal/convert"
	"github.com/samuelcolvin/qrcam/internal/mailbox"
	"github.com/samuelcolvin/qrcam/internal/types"
)

// FrameSink receives raw plane callbacks from a capture provider, converts
// them, and publishes both images into their staging mailboxes.
//
// OnFrame runs synchronously on whatever goroutine the capture provider
// uses, so it must return quickly: it only converts and publishes, and never
// invokes the barcode engine inline — stalling the capture goroutine would
// risk frame drops at the source. Decoding belongs to the worker.
type FrameSink struct {
	rgba   *mailbox.Mailbox[types.RGBAFrame]
	gray   *mailbox.Mailbox[types.GrayFrame]
	mirror bool

	seq           uint64
	planesSkipped uint64
}

// NewFrameSink creates a sink publishing into the two mailboxes.
func NewFrameSink(rgba *mailbox.Mailbox[types.RGBAFrame], gray *mailbox.Mailbox[types.GrayFrame], mirror bool) *FrameSink {
	return &FrameSink{rgba: rgba, gray: gray, mirror: mirror}
}

// OnFrame converts every complete plane of one captured frame and publishes
// the results. Planes missing stride, height or data are silently skipped —
// some plane descriptors legitimately lack data, that is not an error.
//
// Plane bytes have already been copied by the capture layer; the produced
// images own their pixels outright.
func (s *FrameSink) OnFrame(planes []types.Plane) {
	seq := atomic.AddUint64(&s.seq, 1)
	now := time.Now()
	traceID := uuid.New().String()

	for _, plane := range planes {
		if !plane.Valid() {
			atomic.AddUint64(&s.planesSkipped, 1)
			slog.Debug("pipeline: skipping incomplete plane",
				"seq", seq,
				"stride", plane.Stride,
				"height", plane.Height,
				"has_data", plane.Data != nil,
			)
			continue
		}

		rgbaImg, grayImg := convert.Convert(plane, s.mirror)

		s.rgba.Put(types.RGBAFrame{Image: rgbaImg, Seq: seq, Timestamp: now, TraceID: traceID})
		s.gray.Put(types.GrayFrame{Image: grayImg, Seq: seq, Timestamp: now, TraceID: traceID})
	}
}

// SinkStats is a snapshot of sink counters.
type SinkStats struct {
	// FramesReceived counts OnFrame invocations.
	FramesReceived uint64
	// PlanesSkipped counts planes dropped for missing attributes.
	PlanesSkipped uint64
}

// Stats returns a snapshot of the sink counters (non-blocking).
func (s *FrameSink) Stats() SinkStats {
	return SinkStats{
		FramesReceived: atomic.LoadUint64(&s.seq),
		PlanesSkipped:  atomic.LoadUint64(&s.planesSkipped),
	}
}
