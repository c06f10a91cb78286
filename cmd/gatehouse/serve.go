// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// stopTimeout bounds graceful shutdown of the monitor and the
// observability server.
const stopTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session sweeper and observability endpoints",
		Long: `Run the background sweeper that closes expired sessions, together
with the Prometheus metrics and health endpoints. Terminates cleanly on
SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.Log.Format)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer d.close()

	obsServer := observability.NewServer(cfg.Observability.Addr, func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return d.store.Ping(pingCtx) == nil
	})

	obsErrs, err := obsServer.Start()
	if err != nil {
		return oops.With("operation", "start observability server").Wrap(err)
	}
	logger.Info("observability endpoints listening", "addr", obsServer.Addr())

	if err := d.monitor.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-obsErrs:
		if err != nil {
			errutil.LogError(logger, "observability server failed", err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if err := d.monitor.Stop(stopCtx); err != nil {
		errutil.LogError(logger, "session monitor stop failed", err)
	}
	if err := obsServer.Stop(stopCtx); err != nil {
		errutil.LogError(logger, "observability server stop failed", err)
	}

	logger.Info("gatehouse stopped")
	return nil
}
