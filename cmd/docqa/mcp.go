package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docqa/docqa/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve docqa tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			srv := mcp.New(a.answers, a.store, a.lookup, version, a.log.Named("mcp"))
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	return cmd
}
