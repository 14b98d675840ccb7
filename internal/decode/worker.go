// Package decode runs barcode scanning on a rate-limited background worker.
//
// The worker samples the grayscale mailbox on a fixed interval that is
// deliberately coarser than the camera frame interval, so expensive decoding
// never runs once per frame: it sees only the most recent frame each cycle
// and everything in between is dropped.
package decode

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samuelcolvin/qrcam/internal/mailbox"
	"github.com/samuelcolvin/qrcam/internal/types"
)

// State is the worker's position in its sampling cycle.
type State int32

const (
	// StateIdle means the worker is sleeping between samples.
	StateIdle State = iota
	// StateSampling means the worker is taking the grayscale mailbox.
	StateSampling
	// StateDecoding means the engine is running on a sample.
	StateDecoding
	// StateStopped is terminal: the loop has observed the stop flag.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateDecoding:
		return "decoding"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config controls worker timing.
type Config struct {
	// SampleInterval is the sleep between mailbox samples. It acts as the
	// decode rate limiter and should stay coarser than the camera frame
	// interval. Default 50ms.
	SampleInterval time.Duration

	// JoinTimeout bounds how long Shutdown waits for the loop to exit.
	// Default 3s.
	JoinTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SampleInterval <= 0 {
		c.SampleInterval = 50 * time.Millisecond
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 3 * time.Second
	}
}

// Worker is a long-lived background task that repeatedly samples the
// grayscale mailbox, invokes the engine, and publishes result batches.
//
// The background goroutine is spawned by NewWorker and destroyed exactly
// once by Shutdown; nothing restarts it.
type Worker struct {
	cfg     Config
	gray    *mailbox.Mailbox[types.GrayFrame]
	results *mailbox.Mailbox[types.ScanBatch]
	engine  Engine

	stop atomic.Bool
	done chan struct{}

	state        atomic.Int32
	cycles       uint64
	framesSeen   uint64
	decodeErrors uint64
	symbolsFound uint64
	lastDecodeNS int64
}

// NewWorker spawns the decode loop immediately and returns its handle.
//
// The worker takes frames from gray and publishes batches to results. One
// batch is published per sampled frame, empty when the engine found nothing
// or failed on that sample; an unconsumed batch is replaced by the next.
func NewWorker(cfg Config, gray *mailbox.Mailbox[types.GrayFrame], results *mailbox.Mailbox[types.ScanBatch], engine Engine) *Worker {
	cfg.applyDefaults()

	w := &Worker{
		cfg:     cfg,
		gray:    gray,
		results: results,
		engine:  engine,
		done:    make(chan struct{}),
	}

	go w.loop()

	slog.Debug("decode: worker started",
		"sample_interval", cfg.SampleInterval,
		"join_timeout", cfg.JoinTimeout,
	)

	return w
}

// loop is the sampling cycle: Idle → Sampling → Decoding → Idle, terminal
// Stopped. The stop flag is checked once per iteration, never mid-decode,
// so an in-flight decode always completes before the loop exits.
func (w *Worker) loop() {
	defer close(w.done)
	defer w.state.Store(int32(StateStopped))

	for {
		w.state.Store(int32(StateIdle))
		time.Sleep(w.cfg.SampleInterval)
		atomic.AddUint64(&w.cycles, 1)

		w.state.Store(int32(StateSampling))
		frame, ok := w.gray.Take()
		if ok {
			w.state.Store(int32(StateDecoding))
			w.decodeOne(frame)
		}

		if w.stop.Load() {
			return
		}
	}
}

// decodeOne runs the engine on a single sample and publishes the batch.
// An engine failure yields an empty batch for this cycle, never a worker
// death: the loop resumes sampling on the next interval regardless.
func (w *Worker) decodeOne(frame types.GrayFrame) {
	atomic.AddUint64(&w.framesSeen, 1)

	start := time.Now()
	found, err := w.engine.Decode(frame.Image)
	elapsed := time.Since(start)
	atomic.StoreInt64(&w.lastDecodeNS, int64(elapsed))

	if err != nil {
		atomic.AddUint64(&w.decodeErrors, 1)
		slog.Warn("decode: engine failed on sample, publishing empty batch",
			"seq", frame.Seq,
			"trace_id", frame.TraceID,
			"error", err,
		)
		found = nil
	}
	atomic.AddUint64(&w.symbolsFound, uint64(len(found)))

	w.results.Put(types.ScanBatch{
		Seq:       frame.Seq,
		TraceID:   frame.TraceID,
		Timestamp: time.Now(),
		Elapsed:   elapsed,
		Results:   found,
	})

	if len(found) > 0 {
		slog.Debug("decode: symbols found",
			"seq", frame.Seq,
			"count", len(found),
			"decode_ms", elapsed.Milliseconds(),
		)
	}
}

// Shutdown sets the stop flag and blocks until the loop has observed it and
// exited. After Shutdown returns nil, no further mailbox writes occur.
//
// A join timeout is the only hard failure this package surfaces: it means
// the background task never stopped and has leaked. Idempotent; subsequent
// calls return immediately.
func (w *Worker) Shutdown() error {
	w.stop.Store(true)

	select {
	case <-w.done:
		slog.Debug("decode: worker stopped",
			"cycles", atomic.LoadUint64(&w.cycles),
			"frames_decoded", atomic.LoadUint64(&w.framesSeen),
		)
		return nil
	case <-time.After(w.cfg.JoinTimeout):
		return fmt.Errorf("decode: worker did not exit within %s", w.cfg.JoinTimeout)
	}
}

// Stats is a snapshot of worker operational counters.
type Stats struct {
	// State is the current loop state.
	State string
	// Cycles is the number of completed sampling intervals.
	Cycles uint64
	// FramesDecoded counts cycles where a frame was present and decoded.
	FramesDecoded uint64
	// DecodeErrors counts engine failures (each produced an empty batch).
	DecodeErrors uint64
	// SymbolsFound is the lifetime count of decoded symbols.
	SymbolsFound uint64
	// LastDecodeMS is the duration of the most recent engine call.
	LastDecodeMS float64
}

// Stats returns a snapshot of the worker counters (non-blocking).
func (w *Worker) Stats() Stats {
	return Stats{
		State:         State(w.state.Load()).String(),
		Cycles:        atomic.LoadUint64(&w.cycles),
		FramesDecoded: atomic.LoadUint64(&w.framesSeen),
		DecodeErrors:  atomic.LoadUint64(&w.decodeErrors),
		SymbolsFound:  atomic.LoadUint64(&w.symbolsFound),
		LastDecodeMS:  float64(atomic.LoadInt64(&w.lastDecodeNS)) / 1e6,
	}
}
