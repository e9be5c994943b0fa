package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan any) any {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "subscription channel MUST be open")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New(4)
	defer bus.Close()

	sub := bus.Subscribe(TopicSessionState)
	other := bus.Subscribe(TopicWriteResult)

	bus.Publish(TopicSessionState, "ready")

	assert.Equal(t, "ready", receive(t, sub.C))
	select {
	case v := <-other.C:
		t.Fatalf("unexpected event on other topic: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_CloseClosesSubscriptions(t *testing.T) {
	bus := New(1)
	sub := bus.Subscribe(TopicSessionState)

	bus.Close()
	bus.Close()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.C:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	assert.NotPanics(t, func() { bus.Publish(TopicSessionState, "late") })

	late := bus.Subscribe(TopicSessionState)
	_, ok := <-late.C
	assert.False(t, ok)
	late.Unsubscribe()
}

func TestSubscription_UnsubscribeTwice(t *testing.T) {
	bus := New(1)
	defer bus.Close()

	sub := bus.Subscribe(TopicSessionState)
	assert.NotPanics(t, func() {
		sub.Unsubscribe()
		sub.Unsubscribe()
	})
}

func TestSubscription_UnsubscribeClosesChannel(t *testing.T) {
	bus := New(1)
	defer bus.Close()

	sub := bus.Subscribe(TopicWriteResult)
	sub.Unsubscribe()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok, "unsubscribed channel MUST be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Unsubscribe")
	}
}

func TestSubscription_UnsubscribeAfterClose(t *testing.T) {
	bus := New(1)
	sub := bus.Subscribe(TopicWriteResult)
	bus.Close()

	done := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unsubscribe blocked after Close")
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NotPanics(t, func() { p.Publish(TopicSessionState, 1) })
}
