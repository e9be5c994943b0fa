package device

import (
	"context"
	"errors"
	"fmt"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// Peer is a discovered advertiser.
type Peer struct {
	Address  string
	Name     string
	RSSI     int
	Services []string // normalized UUIDs
}

// Label returns the name shown for the peer, falling back to its address.
func (p Peer) Label() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Address
}

// Advertises reports whether the peer lists the given service UUID.
func (p Peer) Advertises(service string) bool {
	want := NormalizeUUID(service)
	for _, s := range p.Services {
		if NormalizeUUID(s) == want {
			return true
		}
	}
	return false
}

// Central is the local radio acting as a BLE central.
type Central interface {
	// Scan reports advertisers that list service until ctx is done.
	// It returns nil (or ctx.Err()) when stopped through ctx.
	Scan(ctx context.Context, service string, found func(Peer)) error

	// Connect dials peer and returns the live link.
	Connect(ctx context.Context, peer Peer) (Link, error)
}

// Service is a GATT service advertised by a connected peer.
type Service interface {
	UUID() string
}

// Characteristic is a GATT characteristic; it is the opaque handle used for
// writes.
type Characteristic interface {
	UUID() string
}

// Link is a live connection to one peripheral.
type Link interface {
	Name() string
	Address() string

	// DiscoverServices lists the services matching filter (all when empty).
	DiscoverServices(filter []string) ([]Service, error)

	// DiscoverCharacteristics enumerates every characteristic of svc.
	DiscoverCharacteristics(svc Service) ([]Characteristic, error)

	// WriteWithResponse writes data and waits for the peer's acknowledgment.
	WriteWithResponse(c Characteristic, data []byte) error

	// Disconnected is closed when the link drops for any reason.
	Disconnected() <-chan struct{}

	// Close tears the link down.
	Close() error
}
