//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/srg/trackctl/internal/device"
)

func newPlatformDevice() (Radio, error) {
	return nil, fmt.Errorf("%w: no BLE backend for %s", device.ErrUnsupported, runtime.GOOS)
}
