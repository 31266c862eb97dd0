package main

import (
	"context"
	"os/signal"
	"syscall"

	"PPDesk/service/console"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := withSignals(cmd.Context())
	defer stop()

	a, err := buildApp(appConfig, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.close()

	srv := console.New(a.sync, appConfig.ConsoleConfig(), nil)
	return srv.Run(ctx)
}

func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
