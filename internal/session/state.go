package session

import (
	"fmt"
	"time"

	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/eventbus"
	"github.com/srg/trackctl/internal/foreground"
)

// State is the link session lifecycle state.
type State int

const (
	Idle State = iota
	Scanning
	Connecting
	ResolvingServices
	ResolvingChannels
	Ready
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Connecting:
		return "connecting"
	case ResolvingServices:
		return "resolving-services"
	case ResolvingChannels:
		return "resolving-channels"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// NoDeviceLabel is shown while no vehicle is connected.
const NoDeviceLabel = "-----"

// Vehicle GATT identifiers.
const (
	DefaultServiceUUID = "ae563286-b114-49ae-aab3-3cc37bbfe46a"
	DefaultLeftUUID    = "e3956242-861b-4545-a006-6d3cfdc7bc2b"
	DefaultRightUUID   = "fc131b73-9e78-4ee6-a837-03edd24b66f9"
	DefaultGearUUID    = "2a741394-d7f4-45de-88d2-e888f50d763e"
)

const (
	DefaultRescanDelay     = time.Second
	DefaultWriteQueueDepth = 16
)

// LabelSink receives the device label whenever it changes. It is always
// invoked through the foreground dispatcher.
type LabelSink interface {
	OnDeviceLabelChanged(label string)
}

// Options configures a Manager.
type Options struct {
	ServiceUUID string
	// Channels maps each logical channel to its characteristic UUID.
	Channels map[command.Channel]string

	// RescanDelay is the pause before scanning is re-issued after the scan
	// itself failed (radio off, scan refused).
	RescanDelay time.Duration
	// WriteQueueDepth bounds each channel's pending writes; the oldest pending
	// write is discarded on overflow.
	WriteQueueDepth int

	// Dispatcher marshals label updates onto the foreground loop.
	Dispatcher foreground.Dispatcher
	LabelSink  LabelSink
	// Events receives StateChange and WriteResult notifications.
	Events eventbus.Publisher
}

// DefaultOptions returns Options for the stock vehicle firmware.
func DefaultOptions() Options {
	return Options{
		ServiceUUID: DefaultServiceUUID,
		Channels: map[command.Channel]string{
			command.Left:  DefaultLeftUUID,
			command.Right: DefaultRightUUID,
			command.Gear:  DefaultGearUUID,
		},
		RescanDelay:     DefaultRescanDelay,
		WriteQueueDepth: DefaultWriteQueueDepth,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.ServiceUUID == "" {
		o.ServiceUUID = def.ServiceUUID
	}
	if len(o.Channels) == 0 {
		o.Channels = def.Channels
	}
	if o.RescanDelay <= 0 {
		o.RescanDelay = def.RescanDelay
	}
	if o.WriteQueueDepth <= 0 {
		o.WriteQueueDepth = def.WriteQueueDepth
	}
	if o.Dispatcher == nil {
		o.Dispatcher = foreground.Immediate
	}
	if o.Events == nil {
		o.Events = eventbus.Nop{}
	}
}

// StateChange is published on eventbus.TopicSessionState.
type StateChange struct {
	From  State
	To    State
	Label string
}

// WriteResult is published on eventbus.TopicWriteResult once the peer
// acknowledged (or rejected) a write.
type WriteResult struct {
	Channel command.Channel
	Value   byte
	Err     error
}

// Stats is the session health signal.
type Stats struct {
	Sent    uint64 // acknowledged writes
	Failed  uint64 // writes the link rejected
	Dropped uint64 // writes to unresolved channels, overwritten or abandoned queue entries
}
