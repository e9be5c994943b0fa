// Package eventbus fans session events out to interested observers.
package eventbus

import (
	"sync"

	"github.com/cskr/pubsub/v2"
)

// Topic identifies an event stream.
type Topic string

const (
	// TopicSessionState carries session.StateChange values.
	TopicSessionState Topic = "session.state"
	// TopicWriteResult carries session.WriteResult values.
	TopicWriteResult Topic = "session.write"
)

// Publisher publishes events.
type Publisher interface {
	Publish(topic Topic, data any)
}

// Bus is a pubsub-backed Publisher that also hands out subscriptions.
// Publishing never blocks; a subscriber that falls behind misses events.
type Bus struct {
	ps     *pubsub.PubSub[Topic, any]
	mu     sync.RWMutex
	closed bool
}

// Subscription is a live subscription to one topic.
type Subscription struct {
	C <-chan any

	once  sync.Once
	unsub func()
}

// New creates a Bus whose subscriber channels buffer capacity events.
func New(capacity int) *Bus {
	return &Bus{ps: pubsub.New[Topic, any](capacity)}
}

// Publish delivers data to every subscriber of topic without blocking.
func (b *Bus) Publish(topic Topic, data any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	b.ps.TryPub(data, topic)
}

// Subscribe subscribes to topic. The returned channel is closed on
// Unsubscribe or Close.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		ch := make(chan any)
		close(ch)
		return &Subscription{C: ch, unsub: func() {}}
	}

	ch := b.ps.Sub(topic)
	return &Subscription{
		C: ch,
		unsub: func() {
			b.mu.RLock()
			defer b.mu.RUnlock()
			// Shutdown already closed ch and stopped the pubsub loop.
			if b.closed {
				return
			}
			b.ps.Unsub(ch, topic)
		},
	}
}

// Close shuts the bus down and closes every subscription channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.ps.Shutdown()
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.unsub)
}

// Nop discards everything published to it.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(Topic, any) {}
