// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// ExpiredSession identifies one expired-but-open session found by a sweep.
type ExpiredSession struct {
	Token    string
	Username string
}

// StoreTx is the per-transaction surface of the credential store. Every
// method sees the same transaction; the transaction is committed or rolled
// back by CredentialStore.InTx, never by StoreTx methods.
type StoreTx interface {
	// FindUserByUsernameOrEmail looks up a user whose username or email
	// matches key (case-insensitive). Returns ErrNotFound if absent.
	FindUserByUsernameOrEmail(ctx context.Context, key string) (*User, error)

	// FindUserByEmail looks up a user by email (case-insensitive).
	// Returns ErrNotFound if absent.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// InsertUser stores a new user. Returns ErrDuplicate if the username
	// or email is already taken.
	InsertUser(ctx context.Context, user *User) error

	// DeleteUser removes a user. Sessions and reset tokens cascade.
	// Returns ErrNotFound if absent.
	DeleteUser(ctx context.Context, userID ulid.ULID) error

	// FindOpenSession returns the user's session with no end timestamp.
	// Returns ErrNotFound if the user has no open session.
	FindOpenSession(ctx context.Context, userID ulid.ULID) (*Session, error)

	// InsertSession stores a new session.
	InsertSession(ctx context.Context, session *Session) error

	// CloseSession sets the end timestamp on an open session identified by
	// its token. Returns ErrNotFound if no open session has that token.
	CloseSession(ctx context.Context, token string, now time.Time) error

	// FindExpiredOpenSessions returns every open session whose expiry is
	// before now, with the owning username for logging.
	FindExpiredOpenSessions(ctx context.Context, now time.Time) ([]ExpiredSession, error)

	// InsertResetToken stores a new password-reset token.
	InsertResetToken(ctx context.Context, token *PasswordResetToken) error

	// FindResetToken looks up a reset token by its value.
	// Returns ErrNotFound if absent.
	FindResetToken(ctx context.Context, token string) (*PasswordResetToken, error)

	// DeleteResetTokens removes all reset tokens for a user and returns
	// the count of deleted rows. Zero rows is a valid state.
	DeleteResetTokens(ctx context.Context, userID ulid.ULID) (int64, error)

	// MarkPasswordResetRequired sets or clears the user's reset flag.
	// Returns ErrNotFound if the user is absent.
	MarkPasswordResetRequired(ctx context.Context, userID ulid.ULID, required bool) error

	// UpdatePasswordDigest replaces the user's password digest. Used for
	// in-place digest upgrades on login. Returns ErrNotFound if absent.
	UpdatePasswordDigest(ctx context.Context, userID ulid.ULID, digest string) error

	// UpdatePasswordAndClearResetFlag replaces the user's password digest
	// and clears the reset flag in one statement. Returns ErrNotFound if
	// the user is absent.
	UpdatePasswordAndClearResetFlag(ctx context.Context, userID ulid.ULID, digest string) error
}

// CredentialStore is the transactional abstraction over the persistent
// store. Implementations guarantee symmetric transaction handling: every
// successful InTx commits exactly once, every failing InTx rolls back
// exactly once before returning.
type CredentialStore interface {
	// InTx begins a transaction, runs fn against it, and commits if fn
	// returns nil. Any error from fn (or a panic) rolls the transaction
	// back and the error is returned unchanged.
	InTx(ctx context.Context, fn func(tx StoreTx) error) error

	// Ping verifies connectivity to the underlying store.
	Ping(ctx context.Context) error
}
