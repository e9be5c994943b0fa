package input

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/motion"
)

// PadState is one snapshot of the physical controller, already reduced to
// pressed/released signals.
type PadState struct {
	LeftUp, LeftDown   bool // left thumbstick
	RightUp, RightDown bool // right thumbstick
	LeftTrigger        bool // shifts up
	RightTrigger       bool // shifts down
}

// PadSource supplies the latest controller snapshot without blocking.
type PadSource interface {
	State() PadState
}

// PadSourceFunc adapts a function to PadSource.
type PadSourceFunc func() PadState

func (f PadSourceFunc) State() PadState { return f() }

// Gamepad drives the tracks from thumbstick presses and the gear from
// trigger press edges.
type Gamepad struct {
	left  *motion.Press
	right *motion.Press
	gear  *motion.Gear
	prev  PadState
}

// NewGamepad creates the gamepad adapter writing to w. sink receives gear
// indicator updates and may be nil.
func NewGamepad(w motion.Writer, sink motion.GearSink, opts motion.GearOptions, logger *logrus.Logger) *Gamepad {
	return &Gamepad{
		left:  motion.NewPress(command.Left, w, logger),
		right: motion.NewPress(command.Right, w, logger),
		gear:  motion.NewGear(w, sink, opts, logger),
	}
}

// Sample processes one frame's snapshot. Held triggers shift only once.
func (g *Gamepad) Sample(s PadState) {
	g.left.OnPressChange(s.LeftUp, s.LeftDown)
	g.right.OnPressChange(s.RightUp, s.RightDown)

	if s.LeftTrigger && !g.prev.LeftTrigger {
		g.gear.Increment()
	}
	if s.RightTrigger && !g.prev.RightTrigger {
		g.gear.Decrement()
	}
	g.prev = s
}

// Activate starts from neutral: tracks stopped, minimum gear sent. Triggers
// already held in current do not count as a press.
func (g *Gamepad) Activate(current PadState) {
	g.left.Reset()
	g.right.Reset()
	g.prev = PadState{LeftTrigger: current.LeftTrigger, RightTrigger: current.RightTrigger}
	g.gear.Reset()
}

// Deactivate stops any moving track and returns to the minimum gear.
func (g *Gamepad) Deactivate() {
	g.left.Halt()
	g.right.Halt()
	g.gear.Reset()
	g.prev = PadState{}
}

// Gear returns the selected gear.
func (g *Gamepad) Gear() int {
	return g.gear.Current()
}

// Track returns the motion state of ch.
func (g *Gamepad) Track(ch command.Channel) motion.State {
	if ch == command.Right {
		return g.right.State()
	}
	return g.left.State()
}
