package motion

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
)

// Press debounces a discrete up/down control (a thumbstick read as
// pressed directions) for one track.
type Press struct {
	track
}

// NewPress creates a press debouncer for the given track channel.
func NewPress(ch command.Channel, w Writer, logger *logrus.Logger) *Press {
	return &Press{track: newTrack(ch, w, logger)}
}

// OnPressChange feeds the current pressed state of both directions. It is
// safe to call every frame; only transitions produce commands.
func (p *Press) OnPressChange(up, down bool) {
	switch {
	case up && down:
		// contradictory reading, hold the current state
	case up:
		p.transition(MovingForward)
	case down:
		p.transition(MovingReverse)
	default:
		p.transition(Stopped)
	}
}

// Reset returns to stopped without sending anything.
func (p *Press) Reset() {
	p.state = Stopped
}
