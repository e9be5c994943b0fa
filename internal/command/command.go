// Package command maps logical vehicle commands to the single-byte values
// the vehicle firmware reads from its control characteristics.
//
// The vehicle only understands the ASCII digits '0'..'5', so every command
// on the wire is exactly one byte in the range 0x30..0x35.
package command

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel names one control endpoint on the vehicle.
type Channel int

const (
	Left Channel = iota
	Right
	Gear
)

// Channels lists every logical channel in resolution order.
var Channels = []Channel{Left, Right, Gear}

func (c Channel) String() string {
	switch c {
	case Left:
		return "left"
	case Right:
		return "right"
	case Gear:
		return "gear"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// Direction is the motion requested for one track.
type Direction int

const (
	Stop Direction = iota
	Forward
	Reverse
)

func (d Direction) String() string {
	switch d {
	case Stop:
		return "stop"
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Wire values.
const (
	ValueStop    byte = 0x30
	ValueForward byte = 0x31
	ValueReverse byte = 0x32

	MinGear = 1
	MaxGear = 5
)

// EncodeDirection returns the wire byte for a track direction.
// Unknown directions encode as stop.
func EncodeDirection(d Direction) byte {
	switch d {
	case Forward:
		return ValueForward
	case Reverse:
		return ValueReverse
	default:
		return ValueStop
	}
}

// EncodeGear returns the wire byte for a gear. Gears outside
// [MinGear, MaxGear] encode as gear 1.
func EncodeGear(gear int) byte {
	if gear < MinGear || gear > MaxGear {
		return '0' + MinGear
	}
	return byte('0' + gear)
}

// Encode maps a channel and its value to the wire byte. For track channels
// value is a Direction, for the gear channel it is the gear number.
func Encode(ch Channel, value int) byte {
	if ch == Gear {
		return EncodeGear(value)
	}
	return EncodeDirection(Direction(value))
}

// Describe renders a wire byte for logs, e.g. "forward" or "gear 3".
func Describe(ch Channel, b byte) string {
	if ch == Gear {
		if b < '0'+MinGear || b > '0'+MaxGear {
			return fmt.Sprintf("gear 0x%02x", b)
		}
		return fmt.Sprintf("gear %d", int(b-'0'))
	}
	switch b {
	case ValueStop:
		return Stop.String()
	case ValueForward:
		return Forward.String()
	case ValueReverse:
		return Reverse.String()
	default:
		return fmt.Sprintf("0x%02x", b)
	}
}

// ParseChannel parses a channel name ("left", "right", "gear").
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	case "gear":
		return Gear, nil
	default:
		return 0, fmt.Errorf("unknown channel %q (must be left, right or gear)", s)
	}
}

// ParseValue parses the value argument for a channel and returns its wire
// byte. Tracks accept stop/forward/reverse, the gear channel accepts 1..5.
func ParseValue(ch Channel, s string) (byte, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if ch == Gear {
		gear, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid gear %q: %w", s, err)
		}
		if gear < MinGear || gear > MaxGear {
			return 0, fmt.Errorf("gear %d out of range [%d, %d]", gear, MinGear, MaxGear)
		}
		return EncodeGear(gear), nil
	}

	switch s {
	case "stop":
		return EncodeDirection(Stop), nil
	case "forward", "fwd":
		return EncodeDirection(Forward), nil
	case "reverse", "rvs":
		return EncodeDirection(Reverse), nil
	default:
		return 0, fmt.Errorf("unknown direction %q (must be stop, forward or reverse)", s)
	}
}
