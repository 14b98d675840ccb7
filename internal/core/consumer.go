package core

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samuelcolvin/qrcam/internal/types"
)

// consumeResults is the pull-only consumer: on every tick it drains the
// result mailbox and the display mailbox. Both reads are non-blocking and
// destructive, so a slow tick simply means intermediate batches and frames
// were replaced, never queued.
func (s *Scanner) consumeResults(ctx context.Context) {
	defer s.wg.Done()

	slog.Info("core: result consumer started",
		"poll_interval_ms", s.cfg.Consumer.PollIntervalMS,
	)

	ticker := time.NewTicker(time.Duration(s.cfg.Consumer.PollIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	lastLog := time.Now()
	logInterval := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			slog.Info("core: result consumer stopping",
				"events_published", atomic.LoadUint64(&s.eventsPublished),
				"symbols_seen", atomic.LoadUint64(&s.symbolsSeen),
			)
			return

		case <-ticker.C:
			if frame, ok := s.pipeline.TakeLatestImage(); ok {
				s.mu.Lock()
				s.lastImage = frame
				s.hasImage = true
				s.mu.Unlock()
			}

			if batch, ok := s.pipeline.TakeLatestResults(); ok {
				s.handleBatch(batch)
			}

			if time.Since(lastLog) >= logInterval {
				st := s.pipeline.Stats()
				cs := s.provider.Stats()
				slog.Debug("core: pipeline stats",
					"frames_captured", cs.FramesDelivered,
					"fps_real", float64(int(cs.FPSReal*100))/100,
					"decode_cycles", st.Worker.Cycles,
					"symbols_found", st.Worker.SymbolsFound,
					"rgba_drops", st.RGBA.Drops,
					"gray_drops", st.Gray.Drops,
				)
				lastLog = time.Now()
			}
		}
	}
}

// handleBatch logs found symbols and publishes the event when a broker is
// configured. Empty batches are consumed silently; they carry no news.
func (s *Scanner) handleBatch(batch types.ScanBatch) {
	if len(batch.Results) == 0 {
		return
	}

	atomic.AddUint64(&s.symbolsSeen, uint64(len(batch.Results)))

	for _, r := range batch.Results {
		slog.Info("core: barcode found",
			"text", r.Text,
			"seq", batch.Seq,
			"trace_id", batch.TraceID,
			"top_left", r.TopLeft,
			"bottom_right", r.BottomRight,
			"decode_ms", float64(batch.Elapsed.Microseconds())/1000.0,
		)
	}

	if s.emitter == nil {
		return
	}

	event := types.NewScanEvent(s.cfg.InstanceID, batch)
	if err := s.emitter.Publish(event); err != nil {
		slog.Error("core: failed to publish scan event",
			"seq", batch.Seq,
			"trace_id", batch.TraceID,
			"error", err,
		)
		return
	}
	atomic.AddUint64(&s.eventsPublished, 1)
}
