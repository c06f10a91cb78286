// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// DefaultSweepInterval is the pause between expired-session sweeps.
const DefaultSweepInterval = time.Minute

// SessionMonitor is the background sweeper that closes expired sessions.
// It is an explicitly constructed, owned object with lifecycle
// New -> Start -> Stop; it shares no state with SessionManager beyond the
// store itself, whose transactions serialize concurrent access.
type SessionMonitor struct {
	store    CredentialStore
	logger   *slog.Logger
	interval time.Duration

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSessionMonitor creates a SessionMonitor. A non-positive interval falls
// back to DefaultSweepInterval.
func NewSessionMonitor(store CredentialStore, logger *slog.Logger, interval time.Duration) (*SessionMonitor, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &SessionMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
	}, nil
}

// Start launches the sweep loop. It sweeps once immediately, then once per
// interval until Stop is called.
func (m *SessionMonitor) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return oops.Code("SWEEP_ALREADY_RUNNING").Errorf("session monitor already running")
	}

	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.run()

	m.logger.Info("session monitor started", "interval", m.interval.String())
	return nil
}

// Stop requests termination and blocks until the loop has exited or ctx is
// done. The stop signal is observed both at loop-top and mid-sleep, so Stop
// returns promptly instead of waiting out a full polling interval.
func (m *SessionMonitor) Stop(ctx context.Context) error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}

	close(m.stop)

	select {
	case <-m.done:
		m.logger.Info("session monitor stopped")
		return nil
	case <-ctx.Done():
		return oops.Code("SWEEP_STOP_TIMEOUT").
			With("operation", "join sweep loop").
			Wrap(ctx.Err())
	}
}

// run is the sweep loop. A failed sweep is logged and the loop proceeds to
// the next tick; one bad iteration never kills the monitor.
func (m *SessionMonitor) run() {
	defer close(m.done)

	ctx := context.Background()

	if err := m.Sweep(ctx); err != nil {
		errutil.LogError(m.logger, "session sweep failed", err)
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				errutil.LogError(m.logger, "session sweep failed", err)
			}
		}
	}
}

// Sweep executes one expired-session reclamation pass in its own
// transaction and returns the first error encountered. Exported so the CLI
// can run a single pass on demand.
func (m *SessionMonitor) Sweep(ctx context.Context) error {
	var swept int

	err := m.store.InTx(ctx, func(tx StoreTx) error {
		now := time.Now()

		expired, findErr := tx.FindExpiredOpenSessions(ctx, now)
		if findErr != nil {
			return oops.Code("SWEEP_FAILED").
				With("operation", "find expired open sessions").
				Wrap(findErr)
		}

		for _, es := range expired {
			if closeErr := tx.CloseSession(ctx, es.Token, now); closeErr != nil {
				return oops.Code("SWEEP_FAILED").
					With("operation", "close expired session").
					With("username", es.Username).
					Wrap(closeErr)
			}
			m.logger.Info("ended expired session", "username", es.Username)
			swept++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if swept > 0 {
		observability.RecordSessionsSwept(swept)
		m.logger.Info("sweep complete", "closed", swept)
	}
	return nil
}
