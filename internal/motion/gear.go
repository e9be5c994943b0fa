package motion

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/trackctl/internal/command"
)

// GearSink receives gear indicator updates. Implementations belong to the
// presentation layer.
type GearSink interface {
	OnGearChanged(gear int)
}

// GearOptions configures the gear controller.
type GearOptions struct {
	Min int
	Max int
	// ResendOnClamp re-sends the current gear when a step is requested at a
	// boundary. Keeping it on resynchronises the vehicle on every trigger
	// press.
	ResendOnClamp bool
}

// DefaultGearOptions returns gears 1..5 with boundary re-send enabled.
func DefaultGearOptions() GearOptions {
	return GearOptions{
		Min:           command.MinGear,
		Max:           command.MaxGear,
		ResendOnClamp: true,
	}
}

// Gear tracks the selected gear and writes it to the gear channel.
type Gear struct {
	opts   GearOptions
	gear   int
	writer Writer
	sink   GearSink
	logger *logrus.Logger
}

// NewGear creates a gear controller starting at the minimum gear. Nothing is
// sent until the first step or Reset.
func NewGear(w Writer, sink GearSink, opts GearOptions, logger *logrus.Logger) *Gear {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Max < opts.Min {
		opts.Max = opts.Min
	}
	return &Gear{
		opts:   opts,
		gear:   opts.Min,
		writer: w,
		sink:   sink,
		logger: logger,
	}
}

// Current returns the selected gear.
func (g *Gear) Current() int {
	return g.gear
}

// Increment shifts up one gear.
func (g *Gear) Increment() {
	g.step(1)
}

// Decrement shifts down one gear.
func (g *Gear) Decrement() {
	g.step(-1)
}

// Reset selects the minimum gear and sends it.
func (g *Gear) Reset() {
	g.gear = g.opts.Min
	g.apply()
}

func (g *Gear) step(delta int) {
	next := g.gear + delta
	if next < g.opts.Min || next > g.opts.Max {
		g.logger.WithFields(logrus.Fields{
			"gear":  g.gear,
			"delta": delta,
		}).Debug("Gear change clamped at boundary")
		if !g.opts.ResendOnClamp {
			return
		}
		g.apply()
		return
	}

	g.gear = next
	g.apply()
}

func (g *Gear) apply() {
	g.logger.WithField("gear", g.gear).Debug("Gear command")
	if g.writer != nil {
		g.writer.Write(command.Gear, command.EncodeGear(g.gear))
	}
	if g.sink != nil {
		g.sink.OnGearChanged(g.gear)
	}
}
