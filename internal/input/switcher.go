// Package input holds the two interchangeable command producers (the
// virtual dual stick and the physical gamepad) and the Switcher that keeps
// exactly one of them active.
package input

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/motion"
)

// Adapter names an input source.
type Adapter int32

const (
	Virtual Adapter = iota
	GamepadAdapter
)

func (a Adapter) String() string {
	if a == GamepadAdapter {
		return "gamepad"
	}
	return "virtual"
}

// GearIndicator is the presentation's gear display.
type GearIndicator interface {
	motion.GearSink
	HideGear()
}

// Options configures the adapters.
type Options struct {
	Stick     motion.StickOptions
	Gear      motion.GearOptions
	Indicator GearIndicator // may be nil
}

// Switcher owns both adapters and the shared session writer. Controller
// presence may change from any goroutine; the handoff itself happens in
// Frame on the foreground loop, between two samples.
type Switcher struct {
	virtual *VirtualJoystick
	pad     *Gamepad
	source  PadSource
	ind     GearIndicator
	logger  *logrus.Logger

	present atomic.Bool
	active  atomic.Int32
}

// NewSwitcher creates a Switcher with the virtual joystick active.
func NewSwitcher(w motion.Writer, source PadSource, opts Options, logger *logrus.Logger) *Switcher {
	if logger == nil {
		logger = logrus.New()
	}

	var sink motion.GearSink
	if opts.Indicator != nil {
		sink = opts.Indicator
	}

	return &Switcher{
		virtual: NewVirtualJoystick(w, opts.Stick, logger),
		pad:     NewGamepad(w, sink, opts.Gear, logger),
		source:  source,
		ind:     opts.Indicator,
		logger:  logger,
	}
}

// ControllerConnected records that a physical controller is present.
func (s *Switcher) ControllerConnected() {
	if !s.present.Swap(true) {
		s.logger.Info("Game controller connected")
	}
}

// ControllerDisconnected records that the physical controller is gone.
func (s *Switcher) ControllerDisconnected() {
	if s.present.Swap(false) {
		s.logger.Info("Game controller disconnected")
	}
}

// ActiveAdapter returns the adapter currently producing commands.
func (s *Switcher) ActiveAdapter() Adapter {
	return Adapter(s.active.Load())
}

// Gear returns the gamepad gear; it is only meaningful while the gamepad is
// active.
func (s *Switcher) Gear() int {
	return s.pad.Gear()
}

// Frame runs once per foreground frame: it completes a pending handoff and
// then samples the controller if it is the active adapter.
func (s *Switcher) Frame() {
	want := Virtual
	if s.present.Load() && s.source != nil {
		want = GamepadAdapter
	}

	if want != s.ActiveAdapter() {
		s.handoff(want)
	}

	if s.ActiveAdapter() == GamepadAdapter {
		s.pad.Sample(s.source.State())
	}
}

func (s *Switcher) handoff(to Adapter) {
	s.logger.WithFields(logrus.Fields{
		"from": s.ActiveAdapter(),
		"to":   to,
	}).Info("Switching input adapter")

	switch to {
	case GamepadAdapter:
		s.virtual.Halt()
		s.pad.Activate(s.source.State())
	default:
		s.pad.Deactivate()
		if s.ind != nil {
			s.ind.HideGear()
		}
		s.virtual.Reset()
	}
	s.active.Store(int32(to))
}

// OnTracking forwards a virtual stick drag sample. Ignored while the
// gamepad is active.
func (s *Switcher) OnTracking(ch command.Channel, velocity float64) {
	if s.ActiveAdapter() != Virtual {
		return
	}
	s.virtual.OnTracking(ch, velocity)
}

// OnStop forwards a virtual stick release. Ignored while the gamepad is
// active.
func (s *Switcher) OnStop(ch command.Channel) {
	if s.ActiveAdapter() != Virtual {
		return
	}
	s.virtual.OnStop(ch)
}

// TrackState returns the active adapter's motion state for ch.
func (s *Switcher) TrackState(ch command.Channel) motion.State {
	if s.ActiveAdapter() == GamepadAdapter {
		return s.pad.Track(ch)
	}
	if st := s.virtual.Stick(ch); st != nil {
		return st.State()
	}
	return motion.Stopped
}
