package motion

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
)

// StickOptions configures the analog stick accumulator.
type StickOptions struct {
	// Neutral is the accumulator value at rest.
	Neutral float64
	// Deadzone is the distance from Neutral that must be exceeded before a
	// motion command is issued.
	Deadzone float64
	// Damping scales every reported velocity before it is accumulated.
	Damping float64
}

// DefaultStickOptions returns the stick tuning used by the touch sticks:
// thresholds half way between the neutral midpoint and either edge.
func DefaultStickOptions() StickOptions {
	return StickOptions{
		Neutral:  180,
		Deadzone: 90,
		Damping:  0.12,
	}
}

// Stick debounces a virtual analog stick for one track.
type Stick struct {
	track
	opts StickOptions
	pos  float64
}

// NewStick creates a stick debouncer for the given track channel.
func NewStick(ch command.Channel, w Writer, opts StickOptions, logger *logrus.Logger) *Stick {
	return &Stick{
		track: newTrack(ch, w, logger),
		opts:  opts,
		pos:   opts.Neutral,
	}
}

// Position returns the accumulated stick position.
func (s *Stick) Position() float64 {
	return s.pos
}

// Upper returns the forward threshold.
func (s *Stick) Upper() float64 {
	return s.opts.Neutral + s.opts.Deadzone
}

// Lower returns the reverse threshold.
func (s *Stick) Lower() float64 {
	return s.opts.Neutral - s.opts.Deadzone
}

// OnSample accumulates a vertical velocity sample reported by the stick
// widget while it is being dragged.
func (s *Stick) OnSample(velocity float64) {
	s.pos += velocity * s.opts.Damping

	switch {
	case s.pos > s.Upper():
		s.transition(MovingForward)
	case s.pos < s.Lower():
		s.transition(MovingReverse)
	}
}

// OnRelease recentres the stick and always sends stop.
func (s *Stick) OnRelease() {
	s.pos = s.opts.Neutral
	s.state = Stopped
	s.send(Stopped)
}

// Reset recentres the stick without sending anything.
func (s *Stick) Reset() {
	s.pos = s.opts.Neutral
	s.state = Stopped
}
