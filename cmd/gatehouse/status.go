// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/store"
)

const statusTimeout = 10 * time.Second

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check database connectivity and schema version",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	logger := slog.New(slog.DiscardHandler)

	pool, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		cmd.Println("database: unreachable")
		return err
	}
	defer pool.Close()
	cmd.Println("database: ok")

	m, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning:", closeErr)
		}
	}()

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	switch {
	case dirty:
		cmd.Printf("schema: version %d (dirty)\n", version)
	case version == 0:
		cmd.Println("schema: no migrations applied")
	default:
		cmd.Printf("schema: version %d\n", version)
	}

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		cmd.Printf("schema: %d migration(s) pending\n", len(pending))
	}

	return nil
}
