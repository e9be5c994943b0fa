package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/device"
)

// DefaultConnectTimeout bounds a single dial attempt.
const DefaultConnectTimeout = 10 * time.Second

// Central implements device.Central on top of go-ble.
// The radio is opened lazily on first use and reused afterwards.
type Central struct {
	connectTimeout time.Duration
	logger         *logrus.Logger

	mu    sync.Mutex
	radio Radio
}

var _ device.Central = (*Central)(nil)

// NewCentral creates a Central. A zero connectTimeout selects DefaultConnectTimeout.
func NewCentral(connectTimeout time.Duration, logger *logrus.Logger) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Central{connectTimeout: connectTimeout, logger: logger}
}

func (c *Central) open() (Radio, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.radio != nil {
		return c.radio, nil
	}
	r, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	c.radio = r
	return r, nil
}

// Scan reports every advertiser listing service (all advertisers when service
// is empty) until ctx is done.
func (c *Central) Scan(ctx context.Context, service string, found func(device.Peer)) error {
	r, err := c.open()
	if err != nil {
		return err
	}

	want := device.NormalizeUUID(service)
	c.logger.WithField("service", service).Debug("Starting BLE scan...")

	err = r.Scan(ctx, false, func(adv ble.Advertisement) {
		peer := PeerFromAdvertisement(adv)
		if want != "" && !peer.Advertises(want) {
			return
		}
		found(peer)
	})

	if ctx.Err() != nil {
		c.logger.Debug("BLE scan stopped")
		return nil
	}
	if err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Connect dials peer, bounded by the connect timeout.
func (c *Central) Connect(ctx context.Context, peer device.Peer) (device.Link, error) {
	if strings.TrimSpace(peer.Address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	r, err := c.open()
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"address": peer.Address,
		"timeout": c.connectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	defer cancel()

	client, err := r.Dial(connCtx, ble.NewAddr(peer.Address))
	if err != nil {
		if errors.Is(connCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", device.ErrTimeout, err)
		} else {
			err = NormalizeError(err)
		}
		c.logger.WithFields(logrus.Fields{
			"address": peer.Address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", peer.Address, err)
	}

	c.logger.WithField("address", peer.Address).Info("BLE device connected")
	return newLink(client, peer, c.logger), nil
}

// PeerFromAdvertisement converts a go-ble advertisement into a device.Peer.
// Both the complete and the overflow service lists are considered advertised.
func PeerFromAdvertisement(adv ble.Advertisement) device.Peer {
	peer := device.Peer{
		Name: adv.LocalName(),
		RSSI: adv.RSSI(),
	}
	if addr := adv.Addr(); addr != nil {
		peer.Address = addr.String()
	}

	uuids := append(append([]ble.UUID{}, adv.Services()...), adv.OverflowService()...)
	for _, u := range uuids {
		if n := device.NormalizeUUID(u.String()); n != "" {
			peer.Services = append(peer.Services, n)
		}
	}
	return peer
}
