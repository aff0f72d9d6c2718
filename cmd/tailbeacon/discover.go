package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newDiscover(a *app) *cobra.Command {
	var report bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run one sweep and print the beacons as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			d, err := a.discoverer()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if report {
				return enc.Encode(d.Sweep(ctx, a.cfg.Timeout).Run())
			}
			return enc.Encode(d.Discover(ctx, a.cfg.Timeout))
		},
	}
	cmd.Flags().BoolVar(&report, "report", false, "print the full run summary instead of just the beacons")
	return cmd
}
