package core

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"time"
)

// StartHealthServer exposes the local HTTP surface:
//
//	GET /healthz  — JSON snapshot of all service counters
//	GET /snapshot — latest display frame as PNG
//
// A port of 0 disables the server. Non-blocking; the listener runs until the
// process exits.
func (s *Scanner) StartHealthServer(port int) error {
	if port == 0 {
		slog.Info("core: health server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/snapshot", s.handleSnapshot)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("core: health server failed", "error", err)
		}
	}()

	slog.Info("core: health server started", "port", port)
	return nil
}

func (s *Scanner) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
		slog.Error("core: failed to encode health response", "error", err)
	}
}

func (s *Scanner) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.LatestSnapshot()
	if !ok {
		http.Error(w, "no frame captured yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Frame-Seq", fmt.Sprintf("%d", frame.Seq))
	w.Header().Set("X-Trace-ID", frame.TraceID)
	if err := png.Encode(w, frame.Image); err != nil {
		slog.Error("core: failed to encode snapshot", "error", err, "seq", frame.Seq)
	}
}
