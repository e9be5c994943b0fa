// Package ringchan provides a bounded FIFO with overwrite-oldest semantics.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Ring is a bounded channel-like buffer. Producers never block: when the
// buffer is full the oldest element is discarded. Elements that survive are
// delivered in the order they were sent.
//
//	r := ringchan.New[byte](4)
//	r.Send(0x31)
//	for v := range r.C() {
//	    ...
//	}
//
// Producers use Send; the single consumer ranges over C() or calls Receive.
type Ring[T any] struct {
	ch      chan T
	mu      sync.Mutex // serializes producers so drop+send is atomic
	closed  bool
	metrics Metrics
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
//
// Reading from it bypasses the Processed metric; use Receive when the count
// matters.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// Returns true if an element was discarded. Sending on a closed Ring is a
// no-op that returns false.
func (r *Ring[T]) Send(v T) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	select {
	case r.ch <- v:
		r.metrics.addWritten(1)
		return false
	default:
	}

	select {
	case <-r.ch:
		r.metrics.addOverwritten(1)
		dropped = true
	default:
		// consumer drained it in the meantime
	}
	r.ch <- v
	r.metrics.addWritten(1)
	return dropped
}

// Receive blocks until a value is available or the Ring is closed.
func (r *Ring[T]) Receive() (v T, ok bool) {
	v, ok = <-r.ch
	if ok {
		r.metrics.addProcessed(1)
	}
	return
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close closes the Ring. Buffered elements can still be received. Close is
// idempotent.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.ch)
}

// Metrics returns a snapshot of the counters.
func (r *Ring[T]) Metrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&r.metrics.Processed),
		Written:     atomic.LoadInt64(&r.metrics.Written),
		Overwritten: atomic.LoadInt64(&r.metrics.Overwritten),
	}
}

// Metrics counts Ring traffic.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) addProcessed(n int) {
	atomic.AddInt64(&m.Processed, int64(n))
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}
