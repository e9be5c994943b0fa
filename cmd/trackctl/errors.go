package main

import (
	"errors"
	"fmt"

	"github.com/srg/trackctl/internal/device"
)

// Command-level errors
var (
	// ErrNoVehicle means no vehicle became ready before the deadline.
	ErrNoVehicle = errors.New("no vehicle found")
	// ErrConnectionLost means the link dropped while a command was pending.
	ErrConnectionLost = errors.New("connection lost")
)

// formatUserError adds a hint for the failures a user can act on.
func formatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return fmt.Sprintf("%v (turn Bluetooth on and try again)", err)
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("%v (Bluetooth is supported on Linux and macOS only)", err)
	case errors.Is(err, ErrNoVehicle):
		return fmt.Sprintf("%v (is the vehicle powered on and in range?)", err)
	default:
		return err.Error()
	}
}
