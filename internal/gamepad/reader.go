package gamepad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/input"
)

// Reader decodes a joystick event stream into a controller snapshot.
// State may be called from any goroutine while Run is reading.
type Reader struct {
	mapping Mapping
	logger  *logrus.Logger

	mu    sync.Mutex
	state input.PadState
}

var _ input.PadSource = (*Reader)(nil)

// NewReader creates a Reader using mapping.
func NewReader(mapping Mapping, logger *logrus.Logger) *Reader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Reader{mapping: mapping, logger: logger}
}

// State returns the latest snapshot.
func (r *Reader) State() input.PadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run reads events from src until it fails or ctx is done. Reaching the end
// of the stream (device unplugged) returns io.EOF.
func (r *Reader) Run(ctx context.Context, src io.Reader) error {
	buf := make([]byte, EventSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := io.ReadFull(src, buf); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			return err
		}

		ev, err := ParseEvent(buf)
		if err != nil {
			return fmt.Errorf("decode joystick event: %w", err)
		}
		r.Apply(ev)
	}
}

// Apply folds one event into the snapshot.
func (r *Reader) Apply(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.mapping
	switch ev.Kind() {
	case TypeAxis:
		up := ev.Value <= -m.AxisThreshold
		down := ev.Value >= m.AxisThreshold
		switch ev.Number {
		case m.LeftStickAxis:
			r.state.LeftUp, r.state.LeftDown = up, down
		case m.RightStickAxis:
			r.state.RightUp, r.state.RightDown = up, down
		}
	case TypeButton:
		pressed := ev.Value != 0
		switch ev.Number {
		case m.LeftTriggerButton:
			r.state.LeftTrigger = pressed
		case m.RightTriggerButton:
			r.state.RightTrigger = pressed
		}
	}

	if r.logger.IsLevelEnabled(logrus.TraceLevel) {
		r.logger.WithFields(logrus.Fields{
			"type":   ev.Type,
			"number": ev.Number,
			"value":  ev.Value,
		}).Trace("Joystick event")
	}
}

// Clear resets the snapshot to nothing pressed.
func (r *Reader) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = input.PadState{}
}
