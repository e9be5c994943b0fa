package input

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/motion"
)

// VirtualJoystick is the on-screen dual stick: one analog stick per track,
// reporting vertical drag velocity while tracking and a stop when released.
type VirtualJoystick struct {
	left  *motion.Stick
	right *motion.Stick
}

// NewVirtualJoystick creates both track sticks writing to w.
func NewVirtualJoystick(w motion.Writer, opts motion.StickOptions, logger *logrus.Logger) *VirtualJoystick {
	return &VirtualJoystick{
		left:  motion.NewStick(command.Left, w, opts, logger),
		right: motion.NewStick(command.Right, w, opts, logger),
	}
}

// Stick returns the stick driving ch, or nil for the gear channel.
func (v *VirtualJoystick) Stick(ch command.Channel) *motion.Stick {
	switch ch {
	case command.Left:
		return v.left
	case command.Right:
		return v.right
	default:
		return nil
	}
}

// OnTracking feeds a drag sample for the stick of ch.
func (v *VirtualJoystick) OnTracking(ch command.Channel, velocity float64) {
	if s := v.Stick(ch); s != nil {
		s.OnSample(velocity)
	}
}

// OnStop releases the stick of ch.
func (v *VirtualJoystick) OnStop(ch command.Channel) {
	if s := v.Stick(ch); s != nil {
		s.OnRelease()
	}
}

// Halt stops any moving track and recentres both sticks.
func (v *VirtualJoystick) Halt() {
	for _, s := range []*motion.Stick{v.left, v.right} {
		s.Halt()
		s.Reset()
	}
}

// Reset recentres both sticks without sending anything.
func (v *VirtualJoystick) Reset() {
	v.left.Reset()
	v.right.Reset()
}
