package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/trackctl/internal/device"
	goble "github.com/srg/trackctl/internal/device/go-ble"
	"github.com/srg/trackctl/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List nearby vehicles",
	Long: `Scan for vehicles advertising the control service and list them,
strongest signal first. Use --all to list every BLE advertiser and --watch
to print each device as it is discovered or re-advertises.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanFormat    string
	scanAll       bool
	scanAllowList []string
	scanBlockList []string
	scanWatch     bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 5*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every advertiser, not only vehicles")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVarP(&scanWatch, "watch", "w", false, "Print devices as they are discovered")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}
	if scanDuration <= 0 {
		return fmt.Errorf("scan duration must be positive")
	}

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	s, err := scanner.NewScanner(goble.NewCentral(cfg.Vehicle.ConnectTimeout, logger), logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	opts := &scanner.ScanOptions{
		Duration:  scanDuration,
		Service:   cfg.Vehicle.ServiceUUID,
		AllowList: scanAllowList,
		BlockList: scanBlockList,
	}
	if scanAll {
		opts.Service = ""
	}

	ctx, cancel := interruptible(cmd.Context())
	defer cancel()

	progress := func(phase string) {
		logger.WithField("phase", phase).Debug("Scan progress")
	}

	var peers []device.Peer
	if scanWatch {
		peers, err = watchScan(ctx, cmd.OutOrStdout(), s, opts, progress)
	} else {
		peers, err = s.Scan(ctx, opts, progress)
	}
	if err != nil {
		return err
	}

	if scanFormat == "json" {
		return displayPeersJSON(cmd.OutOrStdout(), peers)
	}
	return displayPeersTable(cmd.OutOrStdout(), peers)
}

// watchScan runs the scan in the background and prints every discovery
// event until it completes.
func watchScan(ctx context.Context, out io.Writer, s *scanner.Scanner, opts *scanner.ScanOptions, progress scanner.ProgressCallback) ([]device.Peer, error) {
	type scanResult struct {
		peers []device.Peer
		err   error
	}
	done := make(chan scanResult, 1)
	go func() {
		peers, err := s.Scan(ctx, opts, progress)
		done <- scanResult{peers: peers, err: err}
	}()

	for {
		select {
		case ev := <-s.Events():
			printDeviceEvent(out, ev)
		case res := <-done:
			// Flush what the scan queued after the last receive.
			for {
				select {
				case ev := <-s.Events():
					printDeviceEvent(out, ev)
				default:
					if res.err == nil {
						fmt.Fprintln(out)
					}
					return res.peers, res.err
				}
			}
		}
	}
}

func printDeviceEvent(out io.Writer, ev scanner.DeviceEvent) {
	kind := "new"
	if ev.Type == scanner.EventUpdated {
		kind = "updated"
	}
	name := ev.Peer.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(out, "[%s] %s %s %d dBm\n", kind, name, ev.Peer.Address, ev.Peer.RSSI)
}

func displayPeersTable(out io.Writer, peers []device.Peer) error {
	if len(peers) == 0 {
		_, err := fmt.Fprintln(out, "No vehicles discovered")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 50))
	for _, p := range peers {
		name := p.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 24 {
			name = name[:21] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\n", name, p.Address, p.RSSI)
	}
	return w.Flush()
}

type peerJSON struct {
	Name     string   `json:"name,omitempty"`
	Address  string   `json:"address"`
	RSSI     int      `json:"rssi"`
	Services []string `json:"services,omitempty"`
}

func displayPeersJSON(out io.Writer, peers []device.Peer) error {
	list := make([]peerJSON, 0, len(peers))
	for _, p := range peers {
		list = append(list, peerJSON{Name: p.Name, Address: p.Address, RSSI: p.RSSI, Services: p.Services})
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
