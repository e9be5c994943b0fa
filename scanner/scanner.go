// Package scanner lists the vehicles advertising the control service.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/trackctl/internal/device"
	"github.com/srg/trackctl/internal/ringchan"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

type DeviceEvent struct {
	Type DeviceEventType
	Peer device.Peer
}

// Scanner collects advertisers during a bounded scan.
type Scanner struct {
	central device.Central
	devices *hashmap.Map[string, device.Peer]
	events  *ringchan.Ring[DeviceEvent]
	logger  *logrus.Logger
	opts    *ScanOptions
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration  time.Duration
	Service   string // empty reports every advertiser
	AllowList []string
	BlockList []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 10 * time.Second,
	}
}

// NewScanner creates a scanner on top of central.
func NewScanner(central device.Central, logger *logrus.Logger) (*Scanner, error) {
	if central == nil {
		return nil, fmt.Errorf("central is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		central: central,
		events:  ringchan.New[DeviceEvent](100),
		logger:  logger,
	}, nil
}

// Scan discovers advertisers until opts.Duration elapses or ctx is done and
// returns them strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]device.Peer, error) {
	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {}
	}

	s.devices = hashmap.New[string, device.Peer]()
	s.opts = opts
	defer func() { s.opts = nil }()

	scanCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithFields(logrus.Fields{
		"duration": opts.Duration,
		"service":  opts.Service,
	}).Info("Starting BLE scan...")
	progressCallback("Scanning")

	if err := s.central.Scan(scanCtx, opts.Service, s.handlePeer); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	return s.list(), nil
}

// handlePeer updates an existing entry or adds a new one.
func (s *Scanner) handlePeer(p device.Peer) {
	key := strings.ToLower(p.Address)

	prev, existing := s.devices.Get(key)
	if !existing && !s.shouldInclude(key) {
		return
	}

	event := DeviceEvent{Peer: p, Type: EventNew}
	if existing {
		if p.Name == "" {
			p.Name = prev.Name
		}
		event.Peer = p
		event.Type = EventUpdated
	} else {
		s.logger.WithFields(logrus.Fields{
			"device":  p.Label(),
			"address": p.Address,
			"rssi":    p.RSSI,
		}).Info("Discovered new device")
	}
	s.devices.Set(key, p)

	if s.events.Send(event) {
		s.logger.Debug("Scanner event queue full, dropped oldest event")
	}
}

func (s *Scanner) shouldInclude(addr string) bool {
	for _, blocked := range s.opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}

	if len(s.opts.AllowList) == 0 {
		return true
	}
	for _, a := range s.opts.AllowList {
		if strings.EqualFold(addr, a) {
			return true
		}
	}
	return false
}

func (s *Scanner) list() []device.Peer {
	peers := make([]device.Peer, 0, s.devices.Len())
	s.devices.Range(func(_ string, p device.Peer) bool {
		peers = append(peers, p)
		return true
	})

	sort.Slice(peers, func(i, j int) bool {
		if peers[i].RSSI != peers[j].RSSI {
			return peers[i].RSSI > peers[j].RSSI
		}
		return peers[i].Address < peers[j].Address
	})
	return peers
}

// Events returns a read-only channel of device events. The oldest events
// are overwritten when nobody reads.
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}
