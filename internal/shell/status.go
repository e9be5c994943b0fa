package shell

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/input"
	"github.com/srg/trackctl/internal/motion"
	"github.com/srg/trackctl/internal/session"
)

// status is everything the status line shows.
type status struct {
	label     string
	state     session.State
	adapter   input.Adapter
	gear      int
	gearShown bool
	left      motion.State
	right     motion.State
	stats     session.Stats
}

type palette struct {
	ok, warn, bad, dim *color.Color
}

func newPalette(enable bool) palette {
	p := palette{
		ok:   color.New(color.FgGreen, color.Bold),
		warn: color.New(color.FgYellow),
		bad:  color.New(color.FgRed),
		dim:  color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.ok, p.warn, p.bad, p.dim} {
		if enable {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) stateColor(s session.State) *color.Color {
	switch s {
	case session.Ready:
		return p.ok
	case session.Disconnected, session.Idle:
		return p.bad
	default:
		return p.warn
	}
}

func trackGlyph(s motion.State) string {
	switch s {
	case motion.MovingForward:
		return "^"
	case motion.MovingReverse:
		return "v"
	default:
		return "-"
	}
}

// render formats the status line without a trailing newline.
func (s status) render(p palette) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s", p.stateColor(s.state).Sprint(s.label), p.dim.Sprintf("[%s]", s.state))
	fmt.Fprintf(&b, "  input:%s", s.adapter)
	if s.gearShown {
		fmt.Fprintf(&b, "  gear:%d", s.gear)
	}
	fmt.Fprintf(&b, "  %s:%s %s:%s", command.Left, trackGlyph(s.left), command.Right, trackGlyph(s.right))

	writes := fmt.Sprintf("  sent:%d", s.stats.Sent)
	b.WriteString(writes)
	if s.stats.Failed > 0 {
		b.WriteString(p.bad.Sprintf(" failed:%d", s.stats.Failed))
	}
	if s.stats.Dropped > 0 {
		b.WriteString(p.warn.Sprintf(" dropped:%d", s.stats.Dropped))
	}
	return b.String()
}
