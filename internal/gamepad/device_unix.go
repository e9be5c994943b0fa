//go:build linux || darwin

package gamepad

import (
	"context"
	"errors"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// pollTimeoutMs bounds how long a read waits before re-checking ctx.
const pollTimeoutMs = 100

// deviceReader reads a character device, waking up regularly so a cancelled
// context ends the read even when the controller is idle.
type deviceReader struct {
	ctx  context.Context
	file *os.File
	fd   []unix.PollFd
}

func openDevice(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	return &deviceReader{
		ctx:  ctx,
		file: f,
		fd:   []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}},
	}, nil
}

func (d *deviceReader) Read(p []byte) (int, error) {
	for {
		if err := d.ctx.Err(); err != nil {
			return 0, err
		}

		n, err := unix.Poll(d.fd, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return 0, err
		}
		if n == 0 {
			continue // timeout, check context
		}
		if d.fd[0].Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 && d.fd[0].Revents&unix.POLLIN == 0 {
			return 0, io.EOF
		}

		n, err = d.file.Read(p)
		if err != nil && (errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR)) {
			continue
		}
		if errors.Is(err, syscall.ENODEV) {
			return n, io.EOF
		}
		return n, err
	}
}

func (d *deviceReader) Close() error {
	return d.file.Close()
}
