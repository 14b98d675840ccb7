// Package capture acquires raw video frames and hands them to the pipeline.
//
// Providers expose a deliberately narrow surface: per frame, zero or more
// planes of {stride, height, bytes}. Nothing about the provider's concrete
// frame representation leaks past this boundary, and plane bytes are copied
// before the underlying buffer is recycled, so handlers own what they get.
package capture

import (
	"context"

	"github.com/samuelcolvin/qrcam/internal/types"
)

// FrameHandler consumes the planes of one captured frame.
//
// OnFrame is invoked synchronously on the provider's capture goroutine, at
// camera frequency. Implementations must return quickly and must not block;
// anything expensive belongs on another goroutine.
type FrameHandler interface {
	OnFrame(planes []types.Plane)
}

// Provider is the contract for frame acquisition.
//
// Implementations must guarantee:
//   - Start() returns promptly; frames arrive asynchronously afterwards
//   - Stop() is idempotent and delivers no frames after it returns
//   - Stats() is safe from any goroutine
type Provider interface {
	Start(ctx context.Context) error
	Stop() error
	Stats() Stats
}

// Stats is a snapshot of provider counters.
type Stats struct {
	// FramesDelivered counts frames handed to the FrameHandler.
	FramesDelivered uint64
	// BytesRead is the total plane bytes copied out of the source.
	BytesRead uint64
	// FPSReal is the measured delivery rate since Start.
	FPSReal float64
	// Resolution is the configured frame size, e.g. "1280x720".
	Resolution string
	// IsRunning reports whether the provider is currently capturing.
	IsRunning bool
}
