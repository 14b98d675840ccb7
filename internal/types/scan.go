package types

import (
	"encoding/json"
	"image"
	"time"
)

// ScanResult is one decoded barcode: its payload plus the extremal corners
// of the region the engine located it in. Engines may report finer
// quadrilaterals; only the two extremal corners are carried downstream.
type ScanResult struct {
	Text        string      `json:"text"`
	TopLeft     image.Point `json:"top_left"`
	BottomRight image.Point `json:"bottom_right"`
}

// ScanBatch is the outcome of one decode cycle over a single grayscale
// frame. A batch with zero results is a valid outcome (nothing found, or
// the engine failed on this sample).
type ScanBatch struct {
	// Seq and TraceID identify the source frame the batch was decoded from.
	Seq     uint64
	TraceID string

	// Timestamp is when the decode cycle completed.
	Timestamp time.Time

	// Elapsed is how long the engine took on this sample.
	Elapsed time.Duration

	Results []ScanResult
}

// ScanEvent is the wire representation of a batch, published by the emitter.
type ScanEvent struct {
	InstanceID   string       `json:"instance_id"`
	Seq          uint64       `json:"seq"`
	TraceID      string       `json:"trace_id"`
	TimestampStr string       `json:"timestamp"`
	DecodeMS     float64      `json:"decode_ms"`
	Results      []ScanResult `json:"results"`
}

// NewScanEvent builds the wire event for a batch.
func NewScanEvent(instanceID string, batch ScanBatch) ScanEvent {
	return ScanEvent{
		InstanceID:   instanceID,
		Seq:          batch.Seq,
		TraceID:      batch.TraceID,
		TimestampStr: batch.Timestamp.UTC().Format(time.RFC3339Nano),
		DecodeMS:     float64(batch.Elapsed.Microseconds()) / 1000.0,
		Results:      batch.Results,
	}
}

// ToJSON converts the event to JSON bytes.
func (e ScanEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
