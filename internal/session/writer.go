package session

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/device"
	"github.com/srg/trackctl/internal/eventbus"
	"github.com/srg/trackctl/internal/ringchan"
)

// channelWriter serializes the writes of one logical channel. Each write
// waits for the peer's acknowledgment before the next one starts, so a
// channel's commands land in submission order.
type channelWriter struct {
	channel command.Channel
	char    device.Characteristic
	link    device.Link
	queue   *ringchan.Ring[byte]
	stopped atomic.Bool
}

func (m *Manager) startWriter(ctx context.Context, link device.Link, ch command.Channel, c device.Characteristic) *channelWriter {
	w := &channelWriter{
		channel: ch,
		char:    c,
		link:    link,
		queue:   ringchan.New[byte](m.opts.WriteQueueDepth),
	}
	m.group.Go(ctx, "channel-writer-"+ch.String(), func(context.Context) {
		m.drain(w)
	})
	return w
}

func (m *Manager) drain(w *channelWriter) {
	for {
		v, ok := w.queue.Receive()
		if !ok {
			return
		}
		if w.stopped.Load() {
			m.dropped.Add(1)
			continue
		}

		err := w.link.WriteWithResponse(w.char, []byte{v})
		if err != nil {
			m.failed.Add(1)
			m.logger.WithFields(logrus.Fields{
				"channel": w.channel,
				"value":   command.Describe(w.channel, v),
				"error":   err,
			}).Warn("Write not acknowledged")
		} else {
			m.sent.Add(1)
			m.logger.WithFields(logrus.Fields{
				"channel": w.channel,
				"value":   command.Describe(w.channel, v),
			}).Debug("Write acknowledged")
		}
		m.opts.Events.Publish(eventbus.TopicWriteResult, WriteResult{Channel: w.channel, Value: v, Err: err})
	}
}

// stop abandons pending writes; the write in flight, if any, completes.
func (w *channelWriter) stop() {
	w.stopped.Store(true)
	w.queue.Close()
}
