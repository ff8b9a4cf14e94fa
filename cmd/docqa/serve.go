package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docqa/docqa/pkg/metrics"
	"github.com/docqa/docqa/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if listen != "" {
				a.cfg.Listen = listen
			}

			m := metrics.New()
			m.WatchLookups(a.lookup)

			srv := server.New(a.cfg.Listen, server.Deps{
				Answers:   a.answers,
				Documents: a.docs,
				Stats:     a.store,
				Lookups:   a.lookup,
				Metrics:   m,
				Logger:    a.log.Named("http"),
			})
			a.log.Info("docqa starting",
				zap.String("version", version),
				zap.String("db", a.cfg.DBPath),
				zap.String("vector_store", a.cfg.VectorStore.Type))
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
