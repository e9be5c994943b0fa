// Package motion turns raw input samples into edge-triggered vehicle
// commands.
//
// A track only emits a command when its motion state changes; repeated
// samples while the state is unchanged never reach the link. Release is the
// one exception: it always emits stop so the real vehicle halts even if the
// local state already says stopped.
package motion

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
)

// Writer accepts encoded commands. The session manager implements it; calls
// must not block.
type Writer interface {
	Write(ch command.Channel, value byte)
}

// State is the motion state of one track.
type State int

const (
	Stopped State = iota
	MovingForward
	MovingReverse
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case MovingForward:
		return "forward"
	case MovingReverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// track holds the state shared by both debouncer flavours.
type track struct {
	channel command.Channel
	writer  Writer
	logger  *logrus.Logger
	state   State
}

func newTrack(ch command.Channel, w Writer, logger *logrus.Logger) track {
	if logger == nil {
		logger = logrus.New()
	}
	return track{channel: ch, writer: w, logger: logger}
}

// transition moves to next and sends the matching command if the state
// actually changes. Returns true if a command was sent.
func (t *track) transition(next State) bool {
	if t.state == next {
		return false
	}
	t.state = next
	t.send(next)
	return true
}

func (t *track) send(s State) {
	dir := command.Stop
	switch s {
	case MovingForward:
		dir = command.Forward
	case MovingReverse:
		dir = command.Reverse
	}

	t.logger.WithFields(logrus.Fields{
		"channel":   t.channel,
		"direction": dir,
	}).Debug("Track command")

	if t.writer != nil {
		t.writer.Write(t.channel, command.EncodeDirection(dir))
	}
}

// State returns the current motion state.
func (t *track) State() State {
	return t.state
}

// Channel returns the track's channel.
func (t *track) Channel() command.Channel {
	return t.channel
}

// Halt sends stop if the track is moving and returns it to stopped.
func (t *track) Halt() {
	t.transition(Stopped)
}
