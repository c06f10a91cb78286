// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package postgres implements the credential store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock's pool
// interface satisfies it, which keeps unit tests off a live database.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store implements auth.CredentialStore over a pgx connection pool.
type Store struct {
	db DB
}

// NewStore creates a Store.
func NewStore(db DB) (*Store, error) {
	if db == nil {
		return nil, oops.Code("STORE_CONFIG_INVALID").Errorf("database handle is required")
	}
	return &Store{db: db}, nil
}

// InTx runs fn inside a single transaction. fn's error (or a panic)
// rolls the transaction back; a nil return commits it.
func (s *Store) InTx(ctx context.Context, fn func(tx auth.StoreTx) error) (err error) {
	pgtx, err := s.db.Begin(ctx)
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").Wrap(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = pgtx.Rollback(ctx) //nolint:errcheck // re-panicking anyway
			panic(p)
		}
	}()

	if err := fn(&storeTx{tx: pgtx}); err != nil {
		if rbErr := pgtx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return oops.Code("STORE_OP_FAILED").
				With("rollback_error", rbErr.Error()).
				Wrap(err)
		}
		return err
	}

	if err := pgtx.Commit(ctx); err != nil {
		return oops.Code("STORE_OP_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return oops.Code("STORE_UNAVAILABLE").Wrap(err)
	}
	return nil
}

// storeTx implements auth.StoreTx over one pgx transaction.
type storeTx struct {
	tx pgx.Tx
}

const userColumns = `user_id, username, first_name, last_name, email, password_hash, password_reset_required`

func (t *storeTx) FindUserByUsernameOrEmail(ctx context.Context, key string) (*auth.User, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($1)`,
		key)
	return scanUser(row, "key", key)
}

func (t *storeTx) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE LOWER(email) = LOWER($1)`,
		email)
	return scanUser(row, "email", email)
}

func (t *storeTx) InsertUser(ctx context.Context, user *auth.User) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID.String(),
		user.Username,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordDigest,
		user.PasswordResetRequired,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.
				With("username", user.Username).
				Wrap(auth.ErrDuplicate)
		}
		return oops.Code("STORE_OP_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

func (t *storeTx) DeleteUser(ctx context.Context, userID ulid.ULID) error {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM users WHERE user_id = $1`,
		userID.String())
	if err != nil {
		return oops.Code("STORE_OP_FAILED").
			With("operation", "delete user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (t *storeTx) FindOpenSession(ctx context.Context, userID ulid.ULID) (*auth.Session, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT session_id, user_id, session_token, expires_at, ip_address, created_at, end_session_at
		 FROM user_sessions
		 WHERE user_id = $1 AND end_session_at IS NULL`,
		userID.String())
	return scanSession(row, userID)
}

func (t *storeTx) InsertSession(ctx context.Context, session *auth.Session) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_sessions (session_id, user_id, session_token, expires_at, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID.String(),
		session.UserID.String(),
		session.Token,
		session.ExpiresAt,
		session.IPAddress,
		session.CreatedAt,
	)
	if err != nil {
		return oops.Code("STORE_OP_FAILED").
			With("operation", "insert session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

func (t *storeTx) CloseSession(ctx context.Context, token string, now time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_sessions
		 SET end_session_at = $2
		 WHERE session_token = $1 AND end_session_at IS NULL`,
		token, now)
	if err != nil {
		return oops.Code("STORE_OP_FAILED").
			With("operation", "close session").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Wrap(auth.ErrNotFound)
	}
	return nil
}

func (t *storeTx) FindExpiredOpenSessions(ctx context.Context, now time.Time) ([]auth.ExpiredSession, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT s.session_token, u.username
		 FROM user_sessions s
		 JOIN users u ON u.user_id = s.user_id
		 WHERE s.end_session_at IS NULL AND s.expires_at < $1`,
		now)
	if err != nil {
		return nil, oops.Code("STORE_OP_FAILED").
			With("operation", "find expired sessions").
			Wrap(err)
	}
	defer rows.Close()

	var expired []auth.ExpiredSession
	for rows.Next() {
		var e auth.ExpiredSession
		if err := rows.Scan(&e.Token, &e.Username); err != nil {
			return nil, oops.Code("STORE_OP_FAILED").
				With("operation", "scan expired session").
				Wrap(err)
		}
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_OP_FAILED").
			With("operation", "iterate expired sessions").
			Wrap(err)
	}
	return expired, nil
}

func (t *storeTx) InsertResetToken(ctx context.Context, token *auth.PasswordResetToken) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO password_resets (id, user_id, reset_token, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.ID.String(),
		token.UserID.String(),
		token.Token,
		token.ExpiresAt,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("STORE_OP_FAILED").
			With("operation", "insert reset token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

func (t *storeTx) FindResetToken(ctx context.Context, token string) (*auth.PasswordResetToken, error) {
	var (
		rt        auth.PasswordResetToken
		idStr     string
		userIDStr string
	)
	err := t.tx.QueryRow(ctx,
		`SELECT id, user_id, reset_token, expires_at, created_at
		 FROM password_resets
		 WHERE reset_token = $1`,
		token).Scan(&idStr, &userIDStr, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("STORE_OP_FAILED").
			With("operation", "find reset token").
			Wrap(err)
	}
	if rt.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ROW").With("id", idStr).Wrap(err)
	}
	if rt.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ROW").With("user_id", userIDStr).Wrap(err)
	}
	return &rt, nil
}

func (t *storeTx) DeleteResetTokens(ctx context.Context, userID ulid.ULID) (int64, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM password_resets WHERE user_id = $1`,
		userID.String())
	if err != nil {
		return 0, oops.Code("STORE_OP_FAILED").
			With("operation", "delete reset tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

func (t *storeTx) MarkPasswordResetRequired(ctx context.Context, userID ulid.ULID, required bool) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET password_reset_required = $2 WHERE user_id = $1`,
		userID.String(), required)
	if err != nil {
		return oops.Code("STORE_OP_FAILED").
			With("operation", "mark password reset").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (t *storeTx) UpdatePasswordDigest(ctx context.Context, userID ulid.ULID, digest string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE user_id = $1`,
		userID.String(), digest)
	if err != nil {
		return oops.Code("STORE_OP_FAILED").
			With("operation", "update password digest").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func (t *storeTx) UpdatePasswordAndClearResetFlag(ctx context.Context, userID ulid.ULID, digest string) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users
		 SET password_hash = $2, password_reset_required = FALSE
		 WHERE user_id = $1`,
		userID.String(), digest)
	if err != nil {
		return oops.Code("STORE_OP_FAILED").
			With("operation", "update password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row, keyName, keyValue string) (*auth.User, error) {
	var (
		u     auth.User
		idStr string
	)
	err := row.Scan(&idStr, &u.Username, &u.FirstName, &u.LastName, &u.Email,
		&u.PasswordDigest, &u.PasswordResetRequired)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With(keyName, keyValue).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("STORE_OP_FAILED").
			With("operation", "scan user").
			With(keyName, keyValue).
			Wrap(err)
	}
	if u.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ROW").With("user_id", idStr).Wrap(err)
	}
	return &u, nil
}

func scanSession(row pgx.Row, userID ulid.ULID) (*auth.Session, error) {
	var (
		s         auth.Session
		idStr     string
		userIDStr string
	)
	err := row.Scan(&idStr, &userIDStr, &s.Token, &s.ExpiresAt, &s.IPAddress,
		&s.CreatedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("STORE_OP_FAILED").
			With("operation", "scan session").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if s.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ROW").With("session_id", idStr).Wrap(err)
	}
	if s.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("STORE_CORRUPT_ROW").With("user_id", userIDStr).Wrap(err)
	}
	return &s, nil
}

var _ auth.CredentialStore = (*Store)(nil)
var _ auth.StoreTx = (*storeTx)(nil)
