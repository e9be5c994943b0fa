package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/trackctl/internal/device"
)

type fakeService struct{ uuid string }

func (s fakeService) UUID() string { return s.uuid }

type fakeChar struct{ uuid string }

func (c fakeChar) UUID() string { return c.uuid }

// fakeLink is an in-memory vehicle link.
type fakeLink struct {
	name     string
	address  string
	services []string
	chars    []string

	writeErr   error
	writeDelay time.Duration

	mu     sync.Mutex
	writes map[string][]byte

	disconnected chan struct{}
	dropOnce     sync.Once
	closed       atomic.Bool
}

func newFakeLink(name string, chars ...string) *fakeLink {
	return &fakeLink{
		name:         name,
		address:      "AA:BB:CC:DD:EE:" + name,
		services:     []string{DefaultServiceUUID},
		chars:        chars,
		writes:       make(map[string][]byte),
		disconnected: make(chan struct{}),
	}
}

func (l *fakeLink) Name() string    { return l.name }
func (l *fakeLink) Address() string { return l.address }

func (l *fakeLink) DiscoverServices(filter []string) ([]device.Service, error) {
	var out []device.Service
	for _, s := range l.services {
		out = append(out, fakeService{uuid: s})
	}
	return out, nil
}

func (l *fakeLink) DiscoverCharacteristics(svc device.Service) ([]device.Characteristic, error) {
	var out []device.Characteristic
	for _, c := range l.chars {
		out = append(out, fakeChar{uuid: c})
	}
	return out, nil
}

func (l *fakeLink) WriteWithResponse(c device.Characteristic, data []byte) error {
	if l.closed.Load() {
		return device.ErrNotConnected
	}
	if l.writeDelay > 0 {
		time.Sleep(l.writeDelay)
	}
	if l.writeErr != nil {
		return l.writeErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	uuid := device.NormalizeUUID(c.UUID())
	l.writes[uuid] = append(l.writes[uuid], data...)
	return nil
}

func (l *fakeLink) Disconnected() <-chan struct{} { return l.disconnected }

func (l *fakeLink) Close() error {
	l.closed.Store(true)
	l.drop()
	return nil
}

// drop simulates link loss.
func (l *fakeLink) drop() {
	l.dropOnce.Do(func() { close(l.disconnected) })
}

// written returns the bytes acknowledged on the characteristic.
func (l *fakeLink) written(uuid string) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.writes[device.NormalizeUUID(uuid)]...)
}

// fakeCentral reports the configured peers on every scan once a connect
// result is queued, and hands out the queued results in order.
type fakeCentral struct {
	mu       sync.Mutex
	peers    []device.Peer
	scanErrs []error
	results  []connectResult
	dialed   []device.Peer

	scans atomic.Int32
}

type connectResult struct {
	link *fakeLink
	err  error
}

func (c *fakeCentral) Scan(ctx context.Context, service string, found func(device.Peer)) error {
	c.scans.Add(1)

	c.mu.Lock()
	var scanErr error
	if len(c.scanErrs) > 0 {
		scanErr, c.scanErrs = c.scanErrs[0], c.scanErrs[1:]
	}
	peers := append([]device.Peer(nil), c.peers...)
	c.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}

	// Vehicles stay out of range until a connect result is queued.
	for !c.pending() {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Millisecond):
		}
	}

	for _, p := range peers {
		if p.Advertises(service) {
			found(p)
		}
	}
	<-ctx.Done()
	return nil
}

func (c *fakeCentral) Connect(ctx context.Context, peer device.Peer) (device.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dialed = append(c.dialed, peer)
	if len(c.results) == 0 {
		return nil, errors.New("no connect result queued")
	}
	r := c.results[0]
	c.results = c.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.link, nil
}

func (c *fakeCentral) queue(results ...connectResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results...)
}

func (c *fakeCentral) pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results) > 0
}

func (c *fakeCentral) dialedPeers() []device.Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]device.Peer(nil), c.dialed...)
}

func vehicle(name string) device.Peer {
	return device.Peer{
		Address:  "AA:BB:CC:DD:EE:" + name,
		Name:     name,
		Services: []string{device.NormalizeUUID(DefaultServiceUUID)},
	}
}
