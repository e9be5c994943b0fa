// Package shell is the interactive terminal front end: it drives the
// virtual sticks from the keyboard, runs the foreground frame loop and
// renders the vehicle status line.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/foreground"
	"github.com/srg/trackctl/internal/input"
	"github.com/srg/trackctl/internal/motion"
	"github.com/srg/trackctl/internal/session"
)

const (
	DefaultFPS             = 30
	DefaultKeyVelocity     = 400.0
	DefaultKeyRepeatDelay  = 700 * time.Millisecond
	DefaultKeyReleaseAfter = 150 * time.Millisecond

	clearLineSequence = "\r\033[K"
	keyCtrlC          = 0x03
)

// SessionView is the read side of the session the status line shows.
type SessionView interface {
	State() session.State
	Stats() session.Stats
}

// Controls is the input side the shell drives each frame.
type Controls interface {
	StickSink
	Frame()
	ActiveAdapter() input.Adapter
	TrackState(ch command.Channel) motion.State
}

// Options configures a Shell.
type Options struct {
	FPS             int
	KeyVelocity     float64
	KeyRepeatDelay  time.Duration // grace before the first auto-repeat
	KeyReleaseAfter time.Duration // grace between auto-repeats
	Color           bool
}

// DefaultOptions returns the interactive defaults.
func DefaultOptions() Options {
	return Options{
		FPS:             DefaultFPS,
		KeyVelocity:     DefaultKeyVelocity,
		KeyRepeatDelay:  DefaultKeyRepeatDelay,
		KeyReleaseAfter: DefaultKeyReleaseAfter,
		Color:           true,
	}
}

// Shell owns the foreground loop. Everything except Dispatch, the label
// sink and the gear indicator runs on the goroutine that calls Run.
type Shell struct {
	queue    *foreground.Queue
	view     SessionView
	controls Controls
	keys     *Keyboard
	out      io.Writer
	palette  palette
	logger   *logrus.Logger
	opts     Options

	label     string
	gear      int
	gearShown bool
	last      string
}

// New creates a Shell writing the status line to out. Its Dispatcher must be
// the one the session uses for label updates.
func New(out io.Writer, opts Options, logger *logrus.Logger) *Shell {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.KeyVelocity <= 0 {
		opts.KeyVelocity = DefaultKeyVelocity
	}
	if opts.KeyRepeatDelay <= 0 {
		opts.KeyRepeatDelay = DefaultKeyRepeatDelay
	}
	if opts.KeyReleaseAfter <= 0 {
		opts.KeyReleaseAfter = DefaultKeyReleaseAfter
	}

	return &Shell{
		queue:    foreground.NewQueue(),
		out:      out,
		palette:  newPalette(opts.Color),
		logger:   logger,
		opts:     opts,
		label:    session.NoDeviceLabel,
		gear:     1,
	}
}

// Attach connects the session and the input controls. It must be called
// before Run; both are built after the Shell because it is their label sink
// and gear indicator.
func (s *Shell) Attach(view SessionView, controls Controls) {
	s.view = view
	s.controls = controls
	s.keys = NewKeyboard(controls, s.opts.KeyVelocity, s.opts.KeyRepeatDelay, s.opts.KeyReleaseAfter)
}

// Dispatcher returns the foreground queue.
func (s *Shell) Dispatcher() foreground.Dispatcher {
	return s.queue
}

// OnDeviceLabelChanged implements session.LabelSink. It is always invoked
// through the queue, so it runs on the foreground loop.
func (s *Shell) OnDeviceLabelChanged(label string) {
	s.label = label
}

// OnGearChanged implements input.GearIndicator.
func (s *Shell) OnGearChanged(gear int) {
	s.gear = gear
	s.gearShown = true
}

// HideGear implements input.GearIndicator.
func (s *Shell) HideGear() {
	s.gearShown = false
}

// Label returns the device label currently displayed.
func (s *Shell) Label() string {
	return s.label
}

// HandleKey processes one key press. Returns false once the user asked to
// quit.
func (s *Shell) HandleKey(r rune, now time.Time) bool {
	switch r {
	case 'q', 'Q', keyCtrlC:
		return false
	}
	if s.keys != nil && !s.keys.Key(r, now) {
		s.logger.WithField("key", fmt.Sprintf("%q", r)).Trace("Ignoring key")
	}
	return true
}

// Frame runs one foreground frame: pending callbacks, inputs, then the
// status line.
func (s *Shell) Frame(now time.Time) {
	s.queue.Drain()
	if s.keys != nil {
		s.keys.Tick(now)
	}
	if s.controls != nil {
		s.controls.Frame()
	}
	s.render()
}

func (s *Shell) snapshot() status {
	st := status{
		label:     s.label,
		gear:      s.gear,
		gearShown: s.gearShown,
	}
	if s.view != nil {
		st.state = s.view.State()
		st.stats = s.view.Stats()
	}
	if s.controls != nil {
		st.adapter = s.controls.ActiveAdapter()
		st.left = s.controls.TrackState(command.Left)
		st.right = s.controls.TrackState(command.Right)
	}
	return st
}

// render rewrites the status line when it changed.
func (s *Shell) render() {
	line := s.snapshot().render(s.palette)
	if line == s.last {
		return
	}
	s.last = line
	_, _ = fmt.Fprint(s.out, clearLineSequence+line)
}

// Run reads keys from in and drives frames until ctx is done or the user
// quits. When in is a terminal it is switched to raw mode for the duration.
func (s *Shell) Run(ctx context.Context, in *os.File) error {
	if in != nil && term.IsTerminal(int(in.Fd())) {
		prev, err := term.MakeRaw(int(in.Fd()))
		if err != nil {
			return fmt.Errorf("failed to switch terminal to raw mode: %w", err)
		}
		defer func() {
			_ = term.Restore(int(in.Fd()), prev)
			_, _ = fmt.Fprint(s.out, "\r\n")
		}()
	}

	keys := make(chan rune, 64)
	if in != nil {
		go readKeys(in, keys)
	}

	ticker := time.NewTicker(time.Second / time.Duration(s.opts.FPS))
	defer ticker.Stop()

	s.Frame(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			if !s.HandleKey(r, time.Now()) {
				return nil
			}
		case now := <-ticker.C:
			s.Frame(now)
		}
	}
}

// readKeys forwards single bytes from in. The goroutine ends with the
// process; a blocked terminal read cannot be interrupted portably.
func readKeys(in io.Reader, keys chan<- rune) {
	defer close(keys)
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if err != nil {
			return
		}
		if n == 1 {
			keys <- rune(buf[0])
		}
	}
}
