package decode_test

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samuelcolvin/qrcam/internal/decode"
	"github.com/samuelcolvin/qrcam/internal/mailbox"
	"github.com/samuelcolvin/qrcam/internal/types"
)

// mockEngine counts calls and replays scripted results.
type mockEngine struct {
	mu      sync.Mutex
	calls   uint64
	lastSeq byte
	results []types.ScanResult
	err     error
}

func (m *mockEngine) Decode(img *image.Gray) ([]types.ScanResult, error) {
	atomic.AddUint64(&m.calls, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(img.Pix) > 0 {
		m.lastSeq = img.Pix[0]
	}
	return m.results, m.err
}

func (m *mockEngine) callCount() uint64 {
	return atomic.LoadUint64(&m.calls)
}

func (m *mockEngine) lastFrameMarker() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSeq
}

// markedFrame builds a 2x2 gray frame whose first pixel identifies it.
func markedFrame(marker byte, seq uint64) types.GrayFrame {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix[0] = marker
	return types.GrayFrame{Image: img, Seq: seq, Timestamp: time.Now()}
}

// TestWorkerDecodesAndPublishes validates the basic sample→decode→publish
// cycle and batch metadata propagation.
func TestWorkerDecodesAndPublishes(t *testing.T) {
	gray := mailbox.New[types.GrayFrame]()
	results := mailbox.New[types.ScanBatch]()
	engine := &mockEngine{results: []types.ScanResult{{Text: "hello"}}}

	w := decode.NewWorker(decode.Config{SampleInterval: 10 * time.Millisecond}, gray, results, engine)
	defer w.Shutdown()

	frame := markedFrame(7, 42)
	frame.TraceID = "trace-42"
	gray.Put(frame)

	batch := waitForBatch(t, results, time.Second)
	if len(batch.Results) != 1 || batch.Results[0].Text != "hello" {
		t.Fatalf("batch results = %+v, want scripted result", batch.Results)
	}
	if batch.Seq != 42 || batch.TraceID != "trace-42" {
		t.Errorf("batch metadata = seq %d trace %q, want 42/trace-42", batch.Seq, batch.TraceID)
	}
}

// TestWorkerShutdownStopsEngine validates no decode happens after Shutdown
// returns: the call counter is sampled immediately after shutdown and again
// after an extra sampling interval.
func TestWorkerShutdownStopsEngine(t *testing.T) {
	gray := mailbox.New[types.GrayFrame]()
	results := mailbox.New[types.ScanBatch]()
	engine := &mockEngine{}

	interval := 10 * time.Millisecond
	w := decode.NewWorker(decode.Config{SampleInterval: interval}, gray, results, engine)

	gray.Put(markedFrame(1, 1))
	waitForBatch(t, results, time.Second)

	if err := w.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	after := engine.callCount()

	// Keep feeding the mailbox; a live worker would pick these up.
	gray.Put(markedFrame(2, 2))
	time.Sleep(5 * interval)
	gray.Put(markedFrame(3, 3))
	time.Sleep(5 * interval)

	if got := engine.callCount(); got != after {
		t.Fatalf("engine called after shutdown: %d → %d", after, got)
	}

	if st := w.Stats(); st.State != "stopped" {
		t.Errorf("state = %q, want stopped", st.State)
	}
}

// TestWorkerShutdownIdempotent validates repeated Shutdown calls all return
// nil once the loop has exited.
func TestWorkerShutdownIdempotent(t *testing.T) {
	w := decode.NewWorker(
		decode.Config{SampleInterval: 5 * time.Millisecond},
		mailbox.New[types.GrayFrame](), mailbox.New[types.ScanBatch](), &mockEngine{})

	for i := 0; i < 3; i++ {
		if err := w.Shutdown(); err != nil {
			t.Fatalf("Shutdown() call %d: %v", i+1, err)
		}
	}
}

// TestWorkerRateLimiting validates lossy sampling: frames arriving faster
// than the sampling interval are not all decoded, and the frame that IS
// decoded is the most recently written one.
func TestWorkerRateLimiting(t *testing.T) {
	gray := mailbox.New[types.GrayFrame]()
	results := mailbox.New[types.ScanBatch]()
	engine := &mockEngine{}

	interval := 60 * time.Millisecond
	w := decode.NewWorker(decode.Config{SampleInterval: interval}, gray, results, engine)
	defer w.Shutdown()

	// 5 frames within a fraction of one interval.
	for i := byte(1); i <= 5; i++ {
		gray.Put(markedFrame(i, uint64(i)))
		time.Sleep(2 * time.Millisecond)
	}

	// Allow at most two intervals to elapse, then check: one decode, and it
	// saw the last frame.
	deadline := time.Now().Add(4 * interval)
	for engine.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(interval / 2)

	if got := engine.callCount(); got != 1 {
		t.Fatalf("engine calls = %d, want 1 (one sample per interval)", got)
	}
	if marker := engine.lastFrameMarker(); marker != 5 {
		t.Fatalf("decoded frame marker = %d, want 5 (most recent write wins)", marker)
	}

	if drops := gray.Stats().Drops; drops != 4 {
		t.Errorf("gray mailbox drops = %d, want 4", drops)
	}
}

// TestWorkerEngineFailureRecovers validates an engine error produces an
// empty batch and the loop keeps sampling afterwards.
func TestWorkerEngineFailureRecovers(t *testing.T) {
	gray := mailbox.New[types.GrayFrame]()
	results := mailbox.New[types.ScanBatch]()
	engine := &mockEngine{err: errors.New("corrupt sample")}

	w := decode.NewWorker(decode.Config{SampleInterval: 10 * time.Millisecond}, gray, results, engine)
	defer w.Shutdown()

	gray.Put(markedFrame(1, 1))
	batch := waitForBatch(t, results, time.Second)
	if len(batch.Results) != 0 {
		t.Fatalf("failed decode produced %d results, want empty batch", len(batch.Results))
	}

	// Engine recovers; the loop must still be alive.
	engine.mu.Lock()
	engine.err = nil
	engine.results = []types.ScanResult{{Text: "back"}}
	engine.mu.Unlock()

	gray.Put(markedFrame(2, 2))
	batch = waitForBatch(t, results, time.Second)
	if len(batch.Results) != 1 || batch.Results[0].Text != "back" {
		t.Fatalf("post-failure batch = %+v, want recovery result", batch.Results)
	}

	if st := w.Stats(); st.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", st.DecodeErrors)
	}
}

// TestWorkerResultBatchReplaced validates an unconsumed batch is replaced
// by the next cycle's batch, not queued.
func TestWorkerResultBatchReplaced(t *testing.T) {
	gray := mailbox.New[types.GrayFrame]()
	results := mailbox.New[types.ScanBatch]()
	engine := &mockEngine{}

	w := decode.NewWorker(decode.Config{SampleInterval: 10 * time.Millisecond}, gray, results, engine)
	defer w.Shutdown()

	gray.Put(markedFrame(1, 1))
	waitForWrites(t, results, 1, time.Second)

	gray.Put(markedFrame(2, 2))
	waitForWrites(t, results, 2, time.Second)

	batch, ok := results.Take()
	if !ok {
		t.Fatal("no batch available")
	}
	if batch.Seq != 2 {
		t.Fatalf("batch seq = %d, want 2 (latest batch wins)", batch.Seq)
	}
	if _, ok := results.Take(); ok {
		t.Fatal("second Take returned a batch; earlier batch should have been replaced")
	}
}

func waitForBatch(t *testing.T, results *mailbox.Mailbox[types.ScanBatch], timeout time.Duration) types.ScanBatch {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if batch, ok := results.Take(); ok {
			return batch
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for result batch")
	return types.ScanBatch{}
}

func waitForWrites(t *testing.T, results *mailbox.Mailbox[types.ScanBatch], n uint64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if results.Stats().Writes >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d result writes", n)
}
