// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/notify"
	"github.com/gatehouse/gatehouse/internal/store"
)

// deps is the wired dependency graph shared by the runtime subcommands.
type deps struct {
	pool    *pgxpool.Pool
	store   *postgres.Store
	manager *auth.SessionManager
	monitor *auth.SessionMonitor
}

// buildDeps connects to the database and wires the auth services.
// Call close when done.
func buildDeps(ctx context.Context, cfg config.Config, logger *slog.Logger) (*deps, error) {
	pool, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}

	credStore, err := postgres.NewStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	var hasher auth.PasswordHasher
	switch cfg.Hasher {
	case "sha256":
		hasher = auth.NewSHA256Hasher()
	default:
		hasher = auth.NewArgon2idHasher()
	}

	var notifier auth.Notifier
	if cfg.SMTP.Host != "" {
		notifier, err = notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port,
			cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
		if err != nil {
			pool.Close()
			return nil, err
		}
	} else {
		logger.Warn("smtp not configured, reset notices go to the log")
		notifier = notify.NewLogNotifier(logger)
	}

	manager, err := auth.NewSessionManager(credStore, hasher,
		auth.NewRandomTokenGenerator(), notifier, logger, auth.ManagerConfig{
			SessionTTL:    cfg.Session.TTL,
			ResetTokenTTL: cfg.Reset.TTL,
		})
	if err != nil {
		pool.Close()
		return nil, oops.With("operation", "wire session manager").Wrap(err)
	}

	monitor, err := auth.NewSessionMonitor(credStore, logger, cfg.Sweep.Interval)
	if err != nil {
		pool.Close()
		return nil, oops.With("operation", "wire session monitor").Wrap(err)
	}

	return &deps{
		pool:    pool,
		store:   credStore,
		manager: manager,
		monitor: monitor,
	}, nil
}

func (d *deps) close() {
	d.pool.Close()
}
