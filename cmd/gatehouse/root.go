// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the gatehouse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Gatehouse - credential and session lifecycle service",
		Long: `Gatehouse manages user accounts, login sessions, and password
resets on PostgreSQL, with a background sweeper that closes expired
sessions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	cmd.PersistentFlags().String("database.url", "", "PostgreSQL connection URL")
	cmd.PersistentFlags().String("log.format", "json", "log format (json or text)")
	cmd.PersistentFlags().Duration("sweep.interval", time.Minute, "pause between expired-session sweeps")
	cmd.PersistentFlags().String("observability.addr", ":9090", "metrics and health listen address")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewSweepCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadConfig resolves the configuration for a running subcommand. An
// explicit --config path must exist; the XDG default may be absent.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := configFile
	explicit := path != ""
	if path == "" {
		path = filepath.Join(xdg.ConfigDir(), "gatehouse.yaml")
	}
	return config.Load(path, explicit, cmd.Flags())
}
