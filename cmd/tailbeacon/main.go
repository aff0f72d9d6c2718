package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tailbeacon/pkg/config"
	"tailbeacon/pkg/logging"
)

type app struct {
	cfg config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCmd(filepath.Base(os.Args[0])).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(executable string) *cobra.Command {
	a := &app{cfg: config.Load(), log: zap.NewNop()}
	cmd := &cobra.Command{
		Use:           executable,
		Short:         "Find gateway beacons advertised over the tailnet's wide-area DNS-SD domain",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.New(a.cfg.LogLevel, a.cfg.LogFormat)
			if err != nil {
				return err
			}
			a.log = log
			zap.ReplaceGlobals(log)
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&a.cfg.Domain, "domain", a.cfg.Domain, "wide-area DNS-SD domain")
	f.StringVar(&a.cfg.ServiceType, "service", a.cfg.ServiceType, "DNS-SD service type")
	f.DurationVar(&a.cfg.Timeout, "timeout", a.cfg.Timeout, "overall budget for one discovery sweep")
	f.IntVar(&a.cfg.MaxConcurrency, "max-concurrency", a.cfg.MaxConcurrency, "max concurrent peer chains (0 = unlimited)")
	f.StringVar(&a.cfg.Overlay, "overlay", a.cfg.Overlay, "overlay status source: tailscale|wireguard")
	f.StringVar(&a.cfg.TailscalePath, "tailscale", a.cfg.TailscalePath, "path to the tailscale CLI")
	f.StringVar(&a.cfg.WireGuardIf, "wg-iface", a.cfg.WireGuardIf, "WireGuard interface (overlay=wireguard)")
	f.StringVar(&a.cfg.Resolver, "resolver", a.cfg.Resolver, "query runner: dig|dns")
	f.StringVar(&a.cfg.DigPath, "dig", a.cfg.DigPath, "path to dig (resolver=dig)")
	f.StringVar(&a.cfg.DNSPort, "dns-port", a.cfg.DNSPort, "nameserver port (resolver=dns)")
	f.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug|info|warn|error")
	f.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "console|json")

	cmd.AddCommand(
		newDiscover(a),
		newServe(a),
		newToken(a),
		newHashPassword(),
		newVersion(),
	)
	return cmd
}
