package session

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/device"
)

type event interface{ isEvent() }

type (
	evStart struct{}

	// evFound carries the first matching advertisement of scan gen.
	evFound struct {
		gen  uint64
		peer device.Peer
	}

	// evScanEnded reports a scan that stopped on its own.
	evScanEnded struct {
		gen uint64
		err error
	}

	evRescan struct{ gen uint64 }

	evLinkLost struct{ gen uint64 }
)

func (evStart) isEvent()     {}
func (evFound) isEvent()     {}
func (evScanEnded) isEvent() {}
func (evRescan) isEvent()    {}
func (evLinkLost) isEvent()  {}

// run is the session worker. It is the only goroutine that mutates session
// state.
func (m *Manager) run(ctx context.Context) {
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.handle(ctx, ev)
		}
	}
}

func (m *Manager) handle(ctx context.Context, ev event) {
	switch e := ev.(type) {
	case evStart:
		m.beginScan(ctx)

	case evFound:
		if e.gen != m.scanGen || m.State() != Scanning {
			m.logger.WithField("address", e.peer.Address).Debug("Ignoring stale discovery")
			return
		}
		m.connect(ctx, e.peer)

	case evScanEnded:
		if e.gen != m.scanGen || m.State() != Scanning {
			return
		}
		m.logger.WithFields(logrus.Fields{
			"error": e.err,
			"retry": m.opts.RescanDelay,
		}).Warn("Scan stopped, rescanning")
		m.scheduleRescan(e.gen)

	case evRescan:
		if e.gen != m.scanGen || m.State() != Scanning {
			return
		}
		m.beginScan(ctx)

	case evLinkLost:
		if e.gen != m.linkGen || m.link == nil {
			m.logger.Debug("Ignoring link loss from a previous connection")
			return
		}
		m.logger.WithField("device", m.CurrentDeviceLabel()).Warn("Link lost")
		m.dropLink()
		m.setState(Disconnected)
		m.beginScan(ctx)
	}
}

// beginScan starts a new discovery generation. Only the first matching
// advertisement of a generation reaches the worker.
func (m *Manager) beginScan(ctx context.Context) {
	m.cancelScan()
	m.scanGen++
	gen := m.scanGen

	scanCtx, cancel := context.WithCancel(ctx)
	m.stopScan = cancel
	m.setState(Scanning)

	m.logger.WithField("service", m.opts.ServiceUUID).Info("Scanning for vehicle...")

	var matched atomic.Bool
	m.group.Go(scanCtx, "session-scan", func(scanCtx context.Context) {
		err := m.central.Scan(scanCtx, m.opts.ServiceUUID, func(peer device.Peer) {
			if !peer.Advertises(m.opts.ServiceUUID) || !matched.CompareAndSwap(false, true) {
				return
			}
			m.post(evFound{gen: gen, peer: peer})
		})
		if scanCtx.Err() == nil {
			m.post(evScanEnded{gen: gen, err: err})
		}
	})
}

func (m *Manager) cancelScan() {
	if m.stopScan != nil {
		m.stopScan()
		m.stopScan = nil
	}
}

// connect dials peer and resolves its channels. A failed dial goes straight
// back to scanning.
func (m *Manager) connect(ctx context.Context, peer device.Peer) {
	m.cancelScan()
	m.setState(Connecting)

	link, err := m.central.Connect(ctx, peer)
	if ctx.Err() != nil {
		if link != nil {
			_ = link.Close()
		}
		return
	}
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"device": peer.Label(),
			"error":  err,
		}).Warn("Connection failed, rescanning")
		m.beginScan(ctx)
		return
	}

	m.linkGen++
	m.link = link
	label := link.Name()
	if label == "" {
		label = peer.Label()
	}
	m.setLabel(label)
	m.setState(ResolvingServices)
	m.watch(ctx, link, m.linkGen)

	m.resolve(ctx, link)
}

// watch reports the loss of link generation gen to the worker.
func (m *Manager) watch(ctx context.Context, link device.Link, gen uint64) {
	m.group.Go(ctx, "session-link-watch", func(ctx context.Context) {
		select {
		case <-link.Disconnected():
			m.post(evLinkLost{gen: gen})
		case <-ctx.Done():
		}
	})
}

func (m *Manager) resolve(ctx context.Context, link device.Link) {
	want := device.NormalizeUUID(m.opts.ServiceUUID)

	services, err := link.DiscoverServices([]string{m.opts.ServiceUUID})
	if err != nil {
		m.logger.WithField("error", err).Warn("Service discovery failed, writes are disabled until reconnect")
		return
	}

	var target device.Service
	for _, svc := range services {
		if device.NormalizeUUID(svc.UUID()) == want {
			target = svc
			break
		}
	}
	if target == nil {
		m.logger.WithField("error", &device.NotFoundError{Resource: "service", UUIDs: []string{want}}).
			Warn("Control service missing, writes are disabled until reconnect")
		return
	}

	m.setState(ResolvingChannels)

	chars, err := link.DiscoverCharacteristics(target)
	if err != nil {
		m.logger.WithField("error", err).Warn("Characteristic discovery failed, writes are disabled until reconnect")
		return
	}

	for _, c := range chars {
		ch, ok := m.byUUID[device.NormalizeUUID(c.UUID())]
		if !ok {
			continue
		}
		m.addWriter(ctx, link, ch, c)
	}

	var missing []string
	for _, ch := range command.Channels {
		if !m.Resolved(ch) {
			missing = append(missing, ch.String())
		}
	}
	if len(missing) > 0 {
		m.logger.WithField("missing", missing).Warn("Some channels are unresolved; writes to them are dropped")
	}

	m.setState(Ready)
}

func (m *Manager) addWriter(ctx context.Context, link device.Link, ch command.Channel, c device.Characteristic) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writers[ch] != nil {
		return
	}
	m.writers[ch] = m.startWriter(ctx, link, ch, c)
	m.logger.WithFields(logrus.Fields{
		"channel": ch,
		"uuid":    device.ShortenUUID(device.NormalizeUUID(c.UUID())),
	}).Debug("Channel resolved")
}

// dropLink clears every handle and closes the current link.
func (m *Manager) dropLink() {
	m.mu.Lock()
	writers := m.writers
	m.writers = make(map[command.Channel]*channelWriter)
	m.mu.Unlock()

	for _, w := range writers {
		w.stop()
	}

	if link := m.link; link != nil {
		m.link = nil
		if err := link.Close(); err != nil {
			m.logger.WithField("error", err).Debug("Closing lost link")
		}
	}
	m.setLabel(NoDeviceLabel)
}

func (m *Manager) shutdown() {
	m.cancelScan()
	if m.link != nil {
		m.dropLink()
	}
	m.setState(Idle)
}
