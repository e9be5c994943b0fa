// Package gamepad reads a physical game controller through the Linux
// joystick API (/dev/input/js*) and reports controller hotplug.
package gamepad

import (
	"encoding/binary"
	"fmt"
)

// EventSize is the size of struct js_event.
const EventSize = 8

// Event types. TypeInit is or-ed into the synthetic events the driver emits
// on open to report the initial state.
const (
	TypeButton uint8 = 0x01
	TypeAxis   uint8 = 0x02
	TypeInit   uint8 = 0x80
)

// Event is one js_event.
type Event struct {
	Time   uint32 // milliseconds, driver clock
	Value  int16
	Type   uint8
	Number uint8
}

// Kind returns the event type without the init flag.
func (e Event) Kind() uint8 {
	return e.Type &^ TypeInit
}

// IsInit reports whether the event describes the initial state.
func (e Event) IsInit() bool {
	return e.Type&TypeInit != 0
}

// ParseEvent decodes one little-endian js_event.
func ParseEvent(b []byte) (Event, error) {
	if len(b) < EventSize {
		return Event{}, fmt.Errorf("short joystick event: %d bytes", len(b))
	}
	return Event{
		Time:   binary.LittleEndian.Uint32(b[0:4]),
		Value:  int16(binary.LittleEndian.Uint16(b[4:6])),
		Type:   b[6],
		Number: b[7],
	}, nil
}

// MarshalBinary encodes the event in js_event layout.
func (e Event) MarshalBinary() ([]byte, error) {
	b := make([]byte, EventSize)
	binary.LittleEndian.PutUint32(b[0:4], e.Time)
	binary.LittleEndian.PutUint16(b[4:6], uint16(e.Value))
	b[6] = e.Type
	b[7] = e.Number
	return b, nil
}
