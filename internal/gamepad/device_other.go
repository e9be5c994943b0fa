//go:build !linux && !darwin

package gamepad

import (
	"context"
	"io"
	"os"
)

func openDevice(_ context.Context, path string) (io.ReadCloser, error) {
	return os.Open(path)
}
