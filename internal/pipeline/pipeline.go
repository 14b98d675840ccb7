// Package pipeline assembles the frame-processing and asynchronous-decode
// pipeline: capture callbacks feed the FrameSink, which converts packed
// 4:2:2 planes and stages the results in single-slot mailboxes; a
// rate-limited background worker samples the grayscale mailbox and stages
// decode batches; a slower polling consumer drains the read side.
//
// Nothing on the frame-arrival path ever blocks, and nothing on the read
// side ever blocks. The only blocking operation in the whole pipeline is
// Shutdown, once, at teardown.
package pipeline

import (
	"time"

	"github.com/samuelcolvin/qrcam/internal/decode"
	"github.com/samuelcolvin/qrcam/internal/mailbox"
	"github.com/samuelcolvin/qrcam/internal/types"
)

// Config controls pipeline behavior.
type Config struct {
	// Mirror flips converted images horizontally (selfie-style preview).
	Mirror bool

	// SampleInterval is the decode worker's rate limiter; see decode.Config.
	SampleInterval time.Duration

	// JoinTimeout bounds Shutdown's wait for the worker; see decode.Config.
	JoinTimeout time.Duration
}

// Pipeline owns the three staging mailboxes, the frame sink and the decode
// worker. The mailboxes are the only shared mutable state: RGBA and Gray are
// written by the capture goroutine (via OnFrame), Gray is read by the
// worker, RGBA and Results are read by the polling consumer.
//
// No atomic-pair guarantee exists across mailboxes: the consumer may observe
// the image from frame N next to results derived from an earlier frame,
// because the grayscale side is always one rate-limited sample behind.
type Pipeline struct {
	rgba    *mailbox.Mailbox[types.RGBAFrame]
	gray    *mailbox.Mailbox[types.GrayFrame]
	results *mailbox.Mailbox[types.ScanBatch]

	sink   *FrameSink
	worker *decode.Worker
}

// New builds the pipeline and starts its decode worker immediately.
// The worker is stopped exactly once, by Shutdown; no component restarts it.
func New(cfg Config, engine decode.Engine) *Pipeline {
	rgba := mailbox.New[types.RGBAFrame]()
	gray := mailbox.New[types.GrayFrame]()
	results := mailbox.New[types.ScanBatch]()

	return &Pipeline{
		rgba:    rgba,
		gray:    gray,
		results: results,
		sink:    NewFrameSink(rgba, gray, cfg.Mirror),
		worker: decode.NewWorker(decode.Config{
			SampleInterval: cfg.SampleInterval,
			JoinTimeout:    cfg.JoinTimeout,
		}, gray, results, engine),
	}
}

// OnFrame implements the capture-facing sink; see FrameSink.OnFrame.
func (p *Pipeline) OnFrame(planes []types.Plane) {
	p.sink.OnFrame(planes)
}

// TakeLatestImage returns and clears the most recent display-ready frame.
// Non-blocking and destructive: ok is false when nothing new has arrived
// since the previous call.
func (p *Pipeline) TakeLatestImage() (types.RGBAFrame, bool) {
	return p.rgba.Take()
}

// TakeLatestResults returns and clears the most recent decode batch.
// Non-blocking and destructive, like TakeLatestImage.
func (p *Pipeline) TakeLatestResults() (types.ScanBatch, bool) {
	return p.results.Take()
}

// Shutdown stops the decode worker and blocks until it has exited. After a
// nil return the worker writes nothing further, making teardown race-free.
// The error case (join timeout) means the worker goroutine leaked and the
// caller must know. Idempotent.
func (p *Pipeline) Shutdown() error {
	return p.worker.Shutdown()
}

// Stats is a snapshot of the whole pipeline.
type Stats struct {
	Sink    SinkStats
	Worker  decode.Stats
	RGBA    mailbox.Stats
	Gray    mailbox.Stats
	Results mailbox.Stats
}

// Stats returns a snapshot of all pipeline counters (non-blocking).
func (p *Pipeline) Stats() Stats {
	return Stats{
		Sink:    p.sink.Stats(),
		Worker:  p.worker.Stats(),
		RGBA:    p.rgba.Stats(),
		Gray:    p.gray.Stats(),
		Results: p.results.Stats(),
	}
}
