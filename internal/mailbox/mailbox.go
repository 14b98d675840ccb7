// Package mailbox provides a single-slot, latest-wins staging container for
// cross-goroutine handoff.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// A Mailbox holds at most one value. Put unconditionally replaces the held
// value (an unread value is discarded and counted as a drop), Take returns
// and clears it. Neither operation ever blocks beyond the mutex scope of the
// single read-or-write, so a slow reader can never stall a producer and a
// Take never observes a torn value.
package mailbox

import (
	"sync"
	"sync/atomic"
)

// Mailbox is a single-slot, overwrite-on-write, destructive-read container.
// Safe for one concurrent writer and any number of concurrent readers; each
// value is delivered to at most one Take.
//
// The zero value is ready to use.
type Mailbox[T any] struct {
	mu    sync.Mutex
	value T
	full  bool

	// Counters are atomic so Stats never contends with Put/Take.
	writes uint64
	takes  uint64
	drops  uint64
}

// New creates an empty Mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Put replaces the current content unconditionally. If an unread value was
// present it is discarded (latest-wins) and counted as a drop.
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	if m.full {
		atomic.AddUint64(&m.drops, 1)
	}
	m.value = v
	m.full = true
	m.mu.Unlock()

	atomic.AddUint64(&m.writes, 1)
}

// Take returns and clears the current content. The second return is false
// when the mailbox is empty; calling Take on an empty mailbox is a no-op.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		var zero T
		return zero, false
	}

	v := m.value
	var zero T
	m.value = zero // release the reference for GC
	m.full = false

	atomic.AddUint64(&m.takes, 1)
	return v, true
}

// Stats is a snapshot of mailbox operational counters.
type Stats struct {
	// Writes is the total number of Put calls.
	Writes uint64
	// Takes is the number of Takes that returned a value.
	Takes uint64
	// Drops counts values overwritten before any reader took them. A high
	// drop rate is the normal operating mode for rate-limited consumers,
	// not a fault.
	Drops uint64
}

// Stats returns a snapshot of the mailbox counters (non-blocking).
func (m *Mailbox[T]) Stats() Stats {
	return Stats{
		Writes: atomic.LoadUint64(&m.writes),
		Takes:  atomic.LoadUint64(&m.takes),
		Drops:  atomic.LoadUint64(&m.drops),
	}
}
