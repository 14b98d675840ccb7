package types

import (
	"image"
	"time"
)

// Plane is one rectangular byte buffer of a captured video frame, as handed
// over by a capture provider. The capture layer copies the bytes before the
// provider's callback returns, so Data is owned by the receiver.
//
// A plane descriptor may legitimately arrive without stride, height or data
// (some formats report metadata-only planes). Valid() gates those out.
type Plane struct {
	// Stride is the number of bytes per row. For packed 4:2:2 this is
	// 2 bytes per pixel, so the pixel width is Stride/2.
	Stride uint32

	// Height is the number of rows.
	Height uint32

	// Data contains Stride*Height bytes. Shorter buffers are tolerated
	// downstream (the converter skips out-of-range pixel pairs).
	Data []byte
}

// Valid reports whether the plane carries all three attributes needed for
// conversion. Invalid planes are silently skipped, not errors.
func (p Plane) Valid() bool {
	return p.Stride > 0 && p.Height > 0 && p.Data != nil
}

// RGBAFrame is a display-ready image plus capture metadata.
type RGBAFrame struct {
	Image     *image.RGBA
	Seq       uint64
	Timestamp time.Time
	TraceID   string
}

// GrayFrame is a decode-ready luma image plus capture metadata.
type GrayFrame struct {
	Image     *image.Gray
	Seq       uint64
	Timestamp time.Time
	TraceID   string
}
