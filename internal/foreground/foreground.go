// Package foreground provides the single point through which background
// workers hand presentation updates to the foreground loop.
package foreground

import "sync"

// Dispatcher schedules fn to run on the foreground loop.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// Immediate runs callbacks on the calling goroutine. Useful for headless
// commands that have no foreground loop.
var Immediate Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// Queue collects callbacks from any goroutine until the foreground loop
// drains them.
type Queue struct {
	mu      sync.Mutex
	pending []func()
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Dispatch appends fn; it never blocks on the foreground loop.
func (q *Queue) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Drain runs every queued callback in dispatch order and returns how many
// ran. Callbacks dispatched while draining run on the next Drain.
func (q *Queue) Drain() int {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Len returns the number of queued callbacks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
