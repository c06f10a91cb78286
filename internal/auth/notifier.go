// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "context"

// Notifier delivers a password-reset token to a user out of band. Delivery
// is fire-and-forget from the store's point of view: SessionManager calls
// Send only after the reset transaction has committed, and a delivery
// failure is logged, never rolled back.
type Notifier interface {
	Send(ctx context.Context, email, token string) error
}
