// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/logging"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Close expired sessions once and exit",
		Long: `Run a single expired-session sweep against the database, then
exit. Useful from cron when the long-running serve process is not wanted.`,
		RunE: runSweep,
	}
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.Log.Format)

	ctx := cmd.Context()
	d, err := buildDeps(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer d.close()

	if err := d.monitor.Sweep(ctx); err != nil {
		return err
	}

	cmd.Println("sweep complete")
	return nil
}
