package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tailbeacon/pkg/agent"
	"tailbeacon/pkg/api"
	"tailbeacon/pkg/journal"
	"tailbeacon/pkg/metrics"
)

func newServe(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sweep periodically and serve the beacon set over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	f := cmd.Flags()
	f.StringVar(&a.cfg.ListenAddr, "addr", a.cfg.ListenAddr, "listen address")
	f.DurationVar(&a.cfg.SweepInterval, "interval", a.cfg.SweepInterval, "sweep interval")
	f.StringVar(&a.cfg.Store, "store", a.cfg.Store, "store backend: memory|consul (requires build tag consul)")
	f.StringVar(&a.cfg.ConsulAddr, "consul-addr", a.cfg.ConsulAddr, "consul address (when store=consul)")
	f.StringVar(&a.cfg.JournalPath, "journal", a.cfg.JournalPath, `sqlite journal path, or "off"`)
	f.DurationVar(&a.cfg.Retention, "retention", a.cfg.Retention, "drop journaled runs older than this (0 keeps all)")
	f.StringVar(&a.cfg.TLSCert, "tls-cert", a.cfg.TLSCert, "TLS cert path (enables HTTPS with --tls-key)")
	f.StringVar(&a.cfg.TLSKey, "tls-key", a.cfg.TLSKey, "TLS key path (enables HTTPS with --tls-cert)")
	f.StringVar(&a.cfg.ClientCA, "client-ca", a.cfg.ClientCA, "require and verify client certs using this CA")
	return cmd
}

func (a *app) serve(ctx context.Context) (err error) {
	d, err := a.discoverer()
	if err != nil {
		return err
	}
	authn, err := newAuthenticator(a)
	if err != nil {
		return err
	}
	st, err := newStore(a)
	if err != nil {
		return err
	}
	tlsCfg, err := api.ServerTLSConfig(a.cfg.TLSCert, a.cfg.TLSKey, a.cfg.ClientCA)
	if err != nil {
		return err
	}
	var jr journal.Journal
	if a.cfg.JournalEnabled() {
		jr, err = journal.Open(ctx, a.cfg.JournalPath, a.cfg.MySQLDSN, a.log)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, jr.Close()) }()
	}

	m := metrics.New()
	hub := api.NewHub(a.log)
	sw := agent.NewSweeper(d, st, a.cfg.Timeout, a.log)
	sw.Journal = jr
	sw.Retention = a.cfg.Retention
	sw.Metrics = m
	sw.Pub = hub

	srv := api.NewServer(st, sw, authn, a.log)
	srv.Journal = jr
	srv.Metrics = m
	srv.Hub = hub
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpSrv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         tlsCfg,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sw.Run(sweepCtx, a.cfg.SweepInterval)
	}()

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", a.cfg.ListenAddr), zap.Bool("tls", tlsCfg != nil),
			zap.String("domain", a.cfg.NormalizedDomain()), zap.Duration("interval", a.cfg.SweepInterval))
		if tlsCfg != nil {
			serveErr <- httpSrv.ListenAndServeTLS("", "")
			return
		}
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case e := <-serveErr:
		if !errors.Is(e, http.ErrServerClosed) {
			err = multierr.Append(err, e)
		}
	}
	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stopSweep()
	<-sweepDone
	return multierr.Combine(err, httpSrv.Shutdown(shutdownCtx), hub.Close())
}
