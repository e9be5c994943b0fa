package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	goble "github.com/srg/trackctl/internal/device/go-ble"
	"github.com/srg/trackctl/internal/gamepad"
	"github.com/srg/trackctl/internal/groutine"
	"github.com/srg/trackctl/internal/input"
	"github.com/srg/trackctl/internal/session"
	"github.com/srg/trackctl/internal/shell"
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Drive the first vehicle found",
	Long: `Connect to the first vehicle advertising the control service and drive it.

Keyboard: w/s move the left track, i/k the right track, space stops both,
q quits. A game controller plugged in at any time takes over: the thumbsticks
drive the tracks and the shoulder buttons shift gears. Unplugging it hands
control back to the keyboard.

The status line shows the vehicle, the connection state, the active input
and the write counters. Logs are discarded unless --log-file is given.`,
	Args: cobra.NoArgs,
	RunE: runDrive,
}

var (
	driveLogFile   string
	driveNoGamepad bool
)

func init() {
	driveCmd.Flags().StringVar(&driveLogFile, "log-file", "", "Write logs to this file")
	driveCmd.Flags().BoolVar(&driveNoGamepad, "no-gamepad", false, "Ignore game controllers")
}

func runDrive(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// The status line owns the terminal.
	logger.SetOutput(io.Discard)
	if driveLogFile != "" {
		f, err := os.OpenFile(driveLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = f.Close() }()
		logger.SetOutput(f)
	}

	opts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	sh := shell.New(cmd.OutOrStdout(), cfg.ShellOptions(), logger)
	opts.Dispatcher = sh.Dispatcher()
	opts.LabelSink = sh

	mgr := session.New(goble.NewCentral(cfg.Vehicle.ConnectTimeout, logger), opts, logger)

	var watcher *gamepad.Watcher
	var source input.PadSource
	if cfg.Gamepad.Enabled && !driveNoGamepad {
		source = input.PadSourceFunc(func() input.PadState { return watcher.State() })
	}

	sw := input.NewSwitcher(mgr, source, input.Options{
		Stick:     cfg.StickOptions(),
		Gear:      cfg.GearOptions(),
		Indicator: sh,
	}, logger)
	sh.Attach(mgr, sw)

	ctx, cancel := interruptible(cmd.Context())
	defer cancel()

	var background groutine.Group
	defer background.Wait()
	defer cancel()

	if source != nil {
		watcher = gamepad.NewWatcher(cfg.Gamepad.Device, cfg.Gamepad.Mapping, sw, logger)
		background.Go(ctx, "gamepad-watcher", func(ctx context.Context) {
			if err := watcher.Run(ctx); err != nil {
				logger.WithError(err).Warn("Game controller support disabled")
			}
		})
	}

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	logger.WithFields(logrus.Fields{
		"service": opts.ServiceUUID,
		"gamepad": source != nil,
	}).Info("Driving")

	err = sh.Run(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
