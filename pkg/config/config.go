// Package config loads the trackctl configuration file and turns it into
// the options of the individual components.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/srg/trackctl/internal/command"
	"github.com/srg/trackctl/internal/device"
	"github.com/srg/trackctl/internal/gamepad"
	"github.com/srg/trackctl/internal/motion"
	"github.com/srg/trackctl/internal/session"
	"github.com/srg/trackctl/internal/shell"
)

// ChannelTable maps channel names ("left", "right", "gear") to
// characteristic UUIDs, in file order.
type ChannelTable = orderedmap.OrderedMap[string, string]

// Config holds application configuration
type Config struct {
	LogLevel string        `yaml:"log_level" default:"warn"`
	Vehicle  VehicleConfig `yaml:"vehicle"`
	Stick    StickConfig   `yaml:"stick"`
	Gear     GearConfig    `yaml:"gear"`
	Shell    ShellConfig   `yaml:"shell"`
	Gamepad  GamepadConfig `yaml:"gamepad"`
}

type VehicleConfig struct {
	ServiceUUID     string        `yaml:"service_uuid" default:"ae563286-b114-49ae-aab3-3cc37bbfe46a"`
	Channels        *ChannelTable `yaml:"channels"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"10s"`
	RescanDelay     time.Duration `yaml:"rescan_delay" default:"1s"`
	WriteQueueDepth int           `yaml:"write_queue_depth" default:"16"`
}

type StickConfig struct {
	Neutral  float64 `yaml:"neutral" default:"180"`
	Deadzone float64 `yaml:"deadzone" default:"90"`
	Damping  float64 `yaml:"damping" default:"0.12"`
}

type GearConfig struct {
	Min           int  `yaml:"min" default:"1"`
	Max           int  `yaml:"max" default:"5"`
	ResendOnClamp bool `yaml:"resend_on_clamp" default:"true"`
}

type ShellConfig struct {
	FPS             int           `yaml:"fps" default:"30"`
	KeyVelocity     float64       `yaml:"key_velocity" default:"400"`
	KeyRepeatDelay  time.Duration `yaml:"key_repeat_delay" default:"700ms"`
	KeyReleaseAfter time.Duration `yaml:"key_release_after" default:"150ms"`
	Color           bool          `yaml:"color" default:"true"`
}

type GamepadConfig struct {
	Enabled bool            `yaml:"enabled" default:"true"`
	Device  string          `yaml:"device" default:"/dev/input/js*"`
	Mapping gamepad.Mapping `yaml:"mapping"`
}

// DefaultChannels returns the stock firmware channel table.
func DefaultChannels() *ChannelTable {
	t := orderedmap.New[string, string]()
	t.Set(command.Left.String(), session.DefaultLeftUUID)
	t.Set(command.Right.String(), session.DefaultRightUUID)
	t.Set(command.Gear.String(), session.DefaultGearUUID)
	return t
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Vehicle.Channels = DefaultChannels()
	return cfg
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates the result. Missing channels
// keep their defaults.
func Parse(data []byte, cfg *Config) error {
	cfg.Vehicle.Channels = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	merged := DefaultChannels()
	if cfg.Vehicle.Channels != nil {
		for p := cfg.Vehicle.Channels.Oldest(); p != nil; p = p.Next() {
			merged.Set(p.Key, p.Value)
		}
	}
	cfg.Vehicle.Channels = merged

	return cfg.Validate()
}

// Validate rejects unusable values.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if _, err := device.ValidateUUID(c.Vehicle.ServiceUUID); err != nil {
		return fmt.Errorf("vehicle.service_uuid: %w", err)
	}
	if c.Vehicle.Channels == nil {
		return fmt.Errorf("vehicle.channels: no channels configured")
	}
	owners := make(map[string]string, c.Vehicle.Channels.Len())
	for p := c.Vehicle.Channels.Oldest(); p != nil; p = p.Next() {
		if _, err := command.ParseChannel(p.Key); err != nil {
			return fmt.Errorf("vehicle.channels: %w", err)
		}
		uuids, err := device.ValidateUUID(p.Value)
		if err != nil {
			return fmt.Errorf("vehicle.channels.%s: %w", p.Key, err)
		}
		if owner, dup := owners[uuids[0]]; dup {
			return fmt.Errorf("vehicle.channels.%s: characteristic %s is already used by %s", p.Key, p.Value, owner)
		}
		owners[uuids[0]] = p.Key
	}
	if c.Vehicle.WriteQueueDepth <= 0 {
		return fmt.Errorf("vehicle.write_queue_depth must be positive, got %d", c.Vehicle.WriteQueueDepth)
	}
	if c.Vehicle.ConnectTimeout <= 0 || c.Vehicle.RescanDelay <= 0 {
		return fmt.Errorf("vehicle timeouts must be positive")
	}

	if c.Stick.Deadzone <= 0 || c.Stick.Damping <= 0 {
		return fmt.Errorf("stick deadzone and damping must be positive")
	}

	if c.Gear.Min < command.MinGear || c.Gear.Max > command.MaxGear || c.Gear.Min > c.Gear.Max {
		return fmt.Errorf("gear range %d..%d must lie within %d..%d", c.Gear.Min, c.Gear.Max, command.MinGear, command.MaxGear)
	}

	if c.Shell.FPS <= 0 || c.Shell.FPS > 240 {
		return fmt.Errorf("shell.fps must be within 1..240, got %d", c.Shell.FPS)
	}
	if c.Shell.KeyReleaseAfter <= 0 || c.Shell.KeyRepeatDelay < c.Shell.KeyReleaseAfter {
		return fmt.Errorf("shell.key_repeat_delay (%s) must be at least shell.key_release_after (%s), both positive",
			c.Shell.KeyRepeatDelay, c.Shell.KeyReleaseAfter)
	}

	if err := c.Gamepad.Mapping.Validate(); err != nil {
		return fmt.Errorf("gamepad.mapping: %w", err)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// SessionOptions returns the session manager options. Presentation hooks
// (dispatcher, label sink, events) are left for the caller.
func (c *Config) SessionOptions() (session.Options, error) {
	opts := session.DefaultOptions()
	opts.ServiceUUID = c.Vehicle.ServiceUUID
	opts.RescanDelay = c.Vehicle.RescanDelay
	opts.WriteQueueDepth = c.Vehicle.WriteQueueDepth

	opts.Channels = make(map[command.Channel]string, c.Vehicle.Channels.Len())
	for p := c.Vehicle.Channels.Oldest(); p != nil; p = p.Next() {
		ch, err := command.ParseChannel(p.Key)
		if err != nil {
			return session.Options{}, err
		}
		opts.Channels[ch] = p.Value
	}
	return opts, nil
}

func (c *Config) StickOptions() motion.StickOptions {
	return motion.StickOptions{
		Neutral:  c.Stick.Neutral,
		Deadzone: c.Stick.Deadzone,
		Damping:  c.Stick.Damping,
	}
}

func (c *Config) GearOptions() motion.GearOptions {
	return motion.GearOptions{
		Min:           c.Gear.Min,
		Max:           c.Gear.Max,
		ResendOnClamp: c.Gear.ResendOnClamp,
	}
}

func (c *Config) ShellOptions() shell.Options {
	return shell.Options{
		FPS:             c.Shell.FPS,
		KeyVelocity:     c.Shell.KeyVelocity,
		KeyRepeatDelay:  c.Shell.KeyRepeatDelay,
		KeyReleaseAfter: c.Shell.KeyReleaseAfter,
		Color:           c.Shell.Color,
	}
}
