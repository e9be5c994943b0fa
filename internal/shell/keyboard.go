package shell

import (
	"time"

	"github.com/srg/trackctl/internal/command"
)

// StickSink receives virtual stick callbacks.
type StickSink interface {
	OnTracking(ch command.Channel, velocity float64)
	OnStop(ch command.Channel)
}

// keyStick emulates one analog stick with two keys. Terminals deliver
// repeats but no key-up, so a release is inferred once the key went quiet:
// repeatDelay after the initial press, releaseAfter once repeats flow.
type keyStick struct {
	channel   command.Channel
	dir       float64 // +1 up, -1 down, 0 idle
	repeating bool
	lastSeen  time.Time
}

// Keyboard turns key presses into virtual stick samples:
// w/s drive the left track, i/k the right one, space releases both.
type Keyboard struct {
	sink         StickSink
	velocity     float64
	repeatDelay  time.Duration
	releaseAfter time.Duration
	sticks       [2]*keyStick
}

// NewKeyboard creates a keyboard stick emulator feeding sink. Every frame a
// held key reports velocity. repeatDelay must cover the terminal's
// auto-repeat delay, releaseAfter its repeat interval.
func NewKeyboard(sink StickSink, velocity float64, repeatDelay, releaseAfter time.Duration) *Keyboard {
	return &Keyboard{
		sink:         sink,
		velocity:     velocity,
		repeatDelay:  repeatDelay,
		releaseAfter: releaseAfter,
		sticks: [2]*keyStick{
			{channel: command.Left},
			{channel: command.Right},
		},
	}
}

// Key handles one key press. Returns false for keys it does not use.
func (k *Keyboard) Key(r rune, now time.Time) bool {
	switch r {
	case 'w', 'W':
		k.hold(k.sticks[0], 1, now)
	case 's', 'S':
		k.hold(k.sticks[0], -1, now)
	case 'i', 'I':
		k.hold(k.sticks[1], 1, now)
	case 'k', 'K':
		k.hold(k.sticks[1], -1, now)
	case ' ':
		for _, s := range k.sticks {
			k.release(s)
		}
	default:
		return false
	}
	return true
}

func (k *Keyboard) hold(s *keyStick, dir float64, now time.Time) {
	if s.dir != 0 && s.dir != dir {
		k.release(s)
	}
	s.repeating = s.dir == dir
	s.dir = dir
	s.lastSeen = now
}

func (k *Keyboard) release(s *keyStick) {
	if s.dir == 0 {
		return
	}
	s.dir = 0
	s.repeating = false
	k.sink.OnStop(s.channel)
}

// Tick emits one tracking sample per held stick and releases sticks whose
// key went quiet.
func (k *Keyboard) Tick(now time.Time) {
	for _, s := range k.sticks {
		if s.dir == 0 {
			continue
		}
		quiet := k.repeatDelay
		if s.repeating {
			quiet = k.releaseAfter
		}
		if now.Sub(s.lastSeen) > quiet {
			k.release(s)
			continue
		}
		k.sink.OnTracking(s.channel, s.dir*k.velocity)
	}
}
