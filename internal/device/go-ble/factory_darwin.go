package goble

import "github.com/go-ble/ble/darwin"

func newPlatformDevice() (Radio, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		return nil, err
	}
	return dev, nil
}
