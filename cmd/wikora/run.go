package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wikora/wikora/internal/metrics"
	"github.com/wikora/wikora/internal/reaper"
	"github.com/wikora/wikora/internal/server"
)

var (
	runListen string
)

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Start the wiki server",
	GroupID: "server",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if runListen != "" {
			cfg.Run.Listen = runListen
		}
		var m *metrics.Metrics
		if cfg.Run.Metrics {
			var err error
			m, err = metrics.Enable(cfg.Run.MetricsInterval)
			if err != nil {
				return err
			}
			defer func() { _ = m.Shutdown(context.Background()) }()
		}

		svc, cleanup, err := openService(m)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(svc, server.Options{
			BodyLimit: "10M",
			Log:       log,
		})

		log.WithField("listen", cfg.Run.Listen).Info("starting server")
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Start(gctx, cfg.Run.Listen, cfg.Run.TLSCert, cfg.Run.TLSKey)
		})
		g.Go(func() error {
			err := reaper.New(svc, cfg.Run.ReaperInterval, log).Run(gctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
		return g.Wait()
	},
}

func init() {
	runCmd.Flags().StringVar(&runListen, "listen", "", "listen address override")
}
