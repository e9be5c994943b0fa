package goble

import (
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/device"
)

// Service wraps a discovered *ble.Service.
type Service struct {
	uuid string
	svc  *ble.Service
}

// UUID returns the normalized service UUID.
func (s *Service) UUID() string { return s.uuid }

// Characteristic wraps a discovered *ble.Characteristic.
type Characteristic struct {
	uuid string
	char *ble.Characteristic
}

// UUID returns the normalized characteristic UUID.
func (c *Characteristic) UUID() string { return c.uuid }

// Link is a live go-ble connection to one peripheral.
type Link struct {
	client     ble.Client
	peer       device.Peer
	logger     *logrus.Logger
	writeMutex sync.Mutex
	closeOnce  sync.Once
	closeErr   error
}

var _ device.Link = (*Link)(nil)

func newLink(client ble.Client, peer device.Peer, logger *logrus.Logger) *Link {
	return &Link{client: client, peer: peer, logger: logger}
}

// Name returns the advertised name, or the name the client reports when the
// advertisement carried none.
func (l *Link) Name() string {
	if l.peer.Name != "" {
		return l.peer.Name
	}
	return l.client.Name()
}

func (l *Link) Address() string {
	if l.peer.Address != "" {
		return l.peer.Address
	}
	if addr := l.client.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// DiscoverServices lists the services matching filter (all when empty).
func (l *Link) DiscoverServices(filter []string) ([]device.Service, error) {
	var uuids []ble.UUID
	for _, f := range filter {
		u, err := ble.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID %q: %w", f, err)
		}
		uuids = append(uuids, u)
	}

	svcs, err := l.client.DiscoverServices(uuids)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", NormalizeError(err))
	}

	result := make([]device.Service, 0, len(svcs))
	for _, s := range svcs {
		result = append(result, &Service{uuid: device.NormalizeUUID(s.UUID.String()), svc: s})
	}
	l.logger.WithFields(logrus.Fields{
		"address":  l.Address(),
		"services": len(result),
	}).Debug("Services discovered")
	return result, nil
}

// DiscoverCharacteristics enumerates every characteristic of svc.
func (l *Link) DiscoverCharacteristics(svc device.Service) ([]device.Characteristic, error) {
	s, ok := svc.(*Service)
	if !ok {
		return nil, fmt.Errorf("%w: foreign service handle %T", device.ErrUnsupported, svc)
	}

	chars, err := l.client.DiscoverCharacteristics(nil, s.svc)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics of %s: %w", device.ShortenUUID(s.uuid), NormalizeError(err))
	}

	result := make([]device.Characteristic, 0, len(chars))
	for _, c := range chars {
		result = append(result, &Characteristic{uuid: device.NormalizeUUID(c.UUID.String()), char: c})
	}
	return result, nil
}

// WriteWithResponse writes data and waits for the acknowledgment.
func (l *Link) WriteWithResponse(c device.Characteristic, data []byte) error {
	ch, ok := c.(*Characteristic)
	if !ok {
		return fmt.Errorf("%w: foreign characteristic handle %T", device.ErrUnsupported, c)
	}

	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()

	if err := l.client.WriteCharacteristic(ch.char, data, false); err != nil {
		return fmt.Errorf("write to %s failed: %w", device.ShortenUUID(ch.uuid), NormalizeError(err))
	}
	return nil
}

func (l *Link) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

// Close cancels the connection. Repeated calls return the first result.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = NormalizeError(l.client.CancelConnection())
		if l.closeErr != nil {
			l.logger.WithField("error", l.closeErr).Warn("BLE device disconnected with errors")
		} else {
			l.logger.WithField("address", l.Address()).Info("BLE device disconnected")
		}
	})
	return l.closeErr
}
