package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/fluxstore/internal/app"
	"github.com/vango-dev/fluxstore/internal/config"
)

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store inspector",
		Long: `Create the configured stores and serve the inspector.

Routes:
  GET  /stores                      list stores
  GET  /stores/{id}                 store snapshot
  GET  /stores/{id}/watch           websocket change feed
  POST /stores/{id}/actions/{type}  dispatch an action
  GET  /metrics                     Prometheus metrics

Examples:
  fluxstore serve
  fluxstore serve --addr=:7070
  fluxstore serve -c fluxstore.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Inspector.Addr = addr
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from configuration)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	printBanner()
	success("%d stores ready", len(cfg.Stores))
	info("inspector: http://%s/stores", cfg.Inspector.Addr)
	info("metrics:   http://%s/metrics", cfg.Inspector.Addr)

	return a.Serve(ctx)
}
