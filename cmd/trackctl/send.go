package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/trackctl/internal/command"
	goble "github.com/srg/trackctl/internal/device/go-ble"
	"github.com/srg/trackctl/internal/eventbus"
	"github.com/srg/trackctl/internal/session"
)

var sendCmd = &cobra.Command{
	Use:   "send <left|right|gear> <stop|forward|reverse|1..5>",
	Short: "Send one command to the first vehicle found",
	Long: `Connect to the first vehicle advertising the control service, write a
single command and report whether the vehicle acknowledged it.

Examples:
  trackctl send left forward
  trackctl send gear 3 --timeout 30s`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var sendTimeout time.Duration

func init() {
	sendCmd.Flags().DurationVarP(&sendTimeout, "timeout", "t", 15*time.Second, "Time allowed to find, connect and write")
}

func runSend(cmd *cobra.Command, args []string) error {
	ch, err := command.ParseChannel(args[0])
	if err != nil {
		return err
	}
	value, err := command.ParseValue(ch, args[1])
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	bus := eventbus.New(16)
	defer bus.Close()
	results := bus.Subscribe(eventbus.TopicWriteResult)
	defer results.Unsubscribe()

	opts.Events = bus
	mgr := session.New(goble.NewCentral(cfg.Vehicle.ConnectTimeout, logger), opts, logger)

	ctx, cancel := interruptible(cmd.Context())
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, sendTimeout)
	defer cancelTimeout()

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer mgr.Close()

	if err := mgr.WaitForState(ctx, session.Ready); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w within %s", ErrNoVehicle, sendTimeout)
		}
		return err
	}
	if !mgr.Resolved(ch) {
		return fmt.Errorf("vehicle %s has no %s channel", mgr.CurrentDeviceLabel(), ch)
	}

	// Only state changes after Ready matter.
	states := bus.Subscribe(eventbus.TopicSessionState)
	defer states.Unsubscribe()

	logger.WithFields(logrus.Fields{
		"device":  mgr.CurrentDeviceLabel(),
		"channel": ch,
		"value":   command.Describe(ch, value),
	}).Info("Sending command")
	mgr.Write(ch, value)

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("no acknowledgement within %s", sendTimeout)
			}
			return ctx.Err()

		case ev, ok := <-states.C:
			if !ok {
				continue
			}
			if change, _ := ev.(session.StateChange); change.To == session.Disconnected {
				return ErrConnectionLost
			}

		case ev, ok := <-results.C:
			if !ok {
				return ErrConnectionLost
			}
			res, _ := ev.(session.WriteResult)
			if res.Channel != ch {
				continue
			}
			if res.Err != nil {
				return fmt.Errorf("write to %s failed: %w", ch, res.Err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", mgr.CurrentDeviceLabel(), ch, command.Describe(ch, value))
			return nil
		}
	}
}
