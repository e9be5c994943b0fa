// Package session owns the link to the vehicle: it scans for the control
// service, connects to the first match, resolves the channel
// characteristics and writes command bytes to them. Every lifecycle event
// is handled on one background worker; Write may be called from any
// goroutine and never blocks.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/device"
	"github.com/srg/trackctl/internal/eventbus"
	"github.com/srg/trackctl/internal/groutine"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	ErrClosed         = errors.New("session closed")
)

// Manager is the peripheral session manager. Construct it once per process
// and hand it to the input adapters by reference.
type Manager struct {
	central device.Central
	opts    Options
	logger  *logrus.Logger

	// resolved lookup table: normalized characteristic UUID -> channel
	byUUID map[string]command.Channel

	events chan event
	group  groutine.Group

	lifecycle sync.Mutex
	started   bool
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc

	// guarded by mu; written only by the worker
	mu      sync.RWMutex
	state   State
	label   string
	writers map[command.Channel]*channelWriter
	changed chan struct{}

	// worker-only
	scanGen  uint64
	stopScan context.CancelFunc
	linkGen  uint64
	link     device.Link

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// New creates an idle Manager. Zero option fields take their defaults.
func New(central device.Central, opts Options, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	opts.applyDefaults()

	byUUID := make(map[string]command.Channel, len(opts.Channels))
	for ch, uuid := range opts.Channels {
		byUUID[device.NormalizeUUID(uuid)] = ch
	}

	return &Manager{
		central: central,
		opts:    opts,
		logger:  logger,
		byUUID:  byUUID,
		events:  make(chan event, 32),
		state:   Idle,
		label:   NoDeviceLabel,
		writers: make(map[command.Channel]*channelWriter),
		changed: make(chan struct{}),
	}
}

// Start leaves Idle and begins scanning. The session runs until ctx is done
// or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.group.Go(m.ctx, "session-worker", m.run)
	m.post(evStart{})
	return nil
}

// Close stops the session, tears the link down and waits for every
// background goroutine to exit. Safe to call more than once.
func (m *Manager) Close() {
	m.lifecycle.Lock()
	if m.closed {
		m.lifecycle.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	m.lifecycle.Unlock()

	if cancel != nil {
		cancel()
	}
	m.group.Wait()
}

// Write queues one command byte on ch. It is a silent no-op while ch has no
// resolved handle. It never blocks and never reports an error; failures
// show up in Stats.
func (m *Manager) Write(ch command.Channel, value byte) {
	m.mu.RLock()
	w := m.writers[ch]
	m.mu.RUnlock()

	if w == nil {
		m.dropped.Add(1)
		m.logger.WithFields(logrus.Fields{
			"channel": ch,
			"value":   command.Describe(ch, value),
		}).Debug("Write dropped: channel not resolved")
		return
	}

	if w.queue.Send(value) {
		m.dropped.Add(1)
		m.logger.WithField("channel", ch).Warn("Write queue full, oldest pending command discarded")
	}
}

// CurrentDeviceLabel returns the connected device's name (or address), or
// NoDeviceLabel.
func (m *Manager) CurrentDeviceLabel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.label
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Resolved reports whether ch currently has a handle.
func (m *Manager) Resolved(ch command.Channel) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writers[ch] != nil
}

// Stats returns a snapshot of the write counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Sent:    m.sent.Load(),
		Failed:  m.failed.Load(),
		Dropped: m.dropped.Load(),
	}
}

// WaitForState blocks until the session reaches want or ctx is done.
func (m *Manager) WaitForState(ctx context.Context, want State) error {
	for {
		m.mu.RLock()
		st, changed := m.state, m.changed
		m.mu.RUnlock()

		if st == want {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// post hands ev to the worker; it gives up once the session is stopping.
func (m *Manager) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	label := m.label
	changed := m.changed
	m.changed = make(chan struct{})
	m.mu.Unlock()
	close(changed)

	m.logger.WithFields(logrus.Fields{
		"from": prev,
		"to":   next,
	}).Info("Session state changed")
	m.opts.Events.Publish(eventbus.TopicSessionState, StateChange{From: prev, To: next, Label: label})
}

func (m *Manager) setLabel(label string) {
	m.mu.Lock()
	m.label = label
	m.mu.Unlock()

	if sink := m.opts.LabelSink; sink != nil {
		m.opts.Dispatcher.Dispatch(func() { sink.OnDeviceLabelChanged(label) })
	}
}

func (m *Manager) scheduleRescan(gen uint64) {
	time.AfterFunc(m.opts.RescanDelay, func() {
		m.post(evRescan{gen: gen})
	})
}
