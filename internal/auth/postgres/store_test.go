// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewStore_NilDB(t *testing.T) {
	_, err := NewStore(nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_CONFIG_INVALID")
}

func TestStore_InTx_Commits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(_ auth.StoreTx) error {
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTx_RollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	sentinel := errors.New("domain failure")
	err := store.InTx(context.Background(), func(_ auth.StoreTx) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_InTx_BeginFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err := store.InTx(context.Background(), func(_ auth.StoreTx) error {
		t.Fatal("fn must not run when begin fails")
		return nil
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
}

func TestStore_InTx_CommitFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("deadlock detected"))

	err := store.InTx(context.Background(), func(_ auth.StoreTx) error {
		return nil
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_OP_FAILED")
}

func TestStore_InTx_RollsBackOnPanic(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.InTx(context.Background(), func(_ auth.StoreTx) error {
			panic("boom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Ping(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	err := store.Ping(context.Background())
	errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
}

func userRows(u *auth.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"user_id", "username", "first_name", "last_name", "email",
		"password_hash", "password_reset_required",
	}).AddRow(
		u.ID.String(), u.Username, u.FirstName, u.LastName, u.Email,
		u.PasswordDigest, u.PasswordResetRequired,
	)
}

func testUser() *auth.User {
	return &auth.User{
		ID:             ulid.Make(),
		Username:       "hsolo",
		FirstName:      "Han",
		LastName:       "Solo",
		Email:          "hsolo@example.com",
		PasswordDigest: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
	}
}

func TestStoreTx_FindUserByUsernameOrEmail(t *testing.T) {
	store, mock := newMockStore(t)
	want := testUser()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT user_id, username, first_name, last_name, email, password_hash, password_reset_required\s+FROM users`).
		WithArgs("hsolo").
		WillReturnRows(userRows(want))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		got, err := tx.FindUserByUsernameOrEmail(context.Background(), "hsolo")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Username, got.Username)
		assert.Equal(t, want.Email, got.Email)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreTx_FindUserByUsernameOrEmail_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM users`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{
			"user_id", "username", "first_name", "last_name", "email",
			"password_hash", "password_reset_required",
		}))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		_, err := tx.FindUserByUsernameOrEmail(context.Background(), "ghost")
		return err
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestStoreTx_InsertUser(t *testing.T) {
	store, mock := newMockStore(t)
	u := testUser()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID.String(), u.Username, u.FirstName, u.LastName, u.Email,
			u.PasswordDigest, u.PasswordResetRequired).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		return tx.InsertUser(context.Background(), u)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreTx_InsertUser_Duplicate(t *testing.T) {
	store, mock := newMockStore(t)
	u := testUser()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID.String(), u.Username, u.FirstName, u.LastName, u.Email,
			u.PasswordDigest, u.PasswordResetRequired).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		return tx.InsertUser(context.Background(), u)
	})
	require.ErrorIs(t, err, auth.ErrDuplicate)
}

func TestStoreTx_DeleteUser_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := ulid.Make()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM users`).
		WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		return tx.DeleteUser(context.Background(), id)
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestStoreTx_FindOpenSession(t *testing.T) {
	store, mock := newMockStore(t)
	userID := ulid.Make()
	sessionID := ulid.Make()
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT session_id, user_id, session_token, expires_at, ip_address, created_at, end_session_at\s+FROM user_sessions`).
		WithArgs(userID.String()).
		WillReturnRows(pgxmock.NewRows([]string{
			"session_id", "user_id", "session_token", "expires_at",
			"ip_address", "created_at", "end_session_at",
		}).AddRow(
			sessionID.String(), userID.String(), "tok",
			now.Add(3*time.Hour), "198.51.100.7", now, nil,
		))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		got, err := tx.FindOpenSession(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, sessionID, got.ID)
		assert.Equal(t, "tok", got.Token)
		assert.Nil(t, got.EndedAt)
		assert.True(t, got.IsOpen())
		return nil
	})
	require.NoError(t, err)
}

func TestStoreTx_CloseSession(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE user_sessions\s+SET end_session_at`).
		WithArgs("tok", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		return tx.CloseSession(context.Background(), "tok", now)
	})
	require.NoError(t, err)
}

func TestStoreTx_CloseSession_AlreadyClosed(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE user_sessions\s+SET end_session_at`).
		WithArgs("tok", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		return tx.CloseSession(context.Background(), "tok", now)
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestStoreTx_FindExpiredOpenSessions(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT s.session_token, u.username\s+FROM user_sessions s\s+JOIN users u`).
		WithArgs(now).
		WillReturnRows(pgxmock.NewRows([]string{"session_token", "username"}).
			AddRow("tok1", "hsolo").
			AddRow("tok2", "lorgana"))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		expired, err := tx.FindExpiredOpenSessions(context.Background(), now)
		require.NoError(t, err)
		require.Len(t, expired, 2)
		assert.Equal(t, auth.ExpiredSession{Token: "tok1", Username: "hsolo"}, expired[0])
		return nil
	})
	require.NoError(t, err)
}

func TestStoreTx_ResetTokenRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	userID := ulid.Make()
	tokenID := ulid.Make()
	now := time.Now().UTC().Truncate(time.Second)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO password_resets`).
		WithArgs(tokenID.String(), userID.String(), "reset-tok",
			now.Add(time.Hour), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`SELECT id, user_id, reset_token, expires_at, created_at\s+FROM password_resets`).
		WithArgs("reset-tok").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "reset_token", "expires_at", "created_at",
		}).AddRow(tokenID.String(), userID.String(), "reset-tok",
			now.Add(time.Hour), now))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		rt := &auth.PasswordResetToken{
			ID:        tokenID,
			UserID:    userID,
			Token:     "reset-tok",
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
		}
		if err := tx.InsertResetToken(context.Background(), rt); err != nil {
			return err
		}
		got, err := tx.FindResetToken(context.Background(), "reset-tok")
		require.NoError(t, err)
		assert.Equal(t, userID, got.UserID)
		assert.Equal(t, "reset-tok", got.Token)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreTx_FindResetToken_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, user_id, reset_token`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "user_id", "reset_token", "expires_at", "created_at",
		}))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		_, err := tx.FindResetToken(context.Background(), "ghost")
		return err
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestStoreTx_DeleteResetTokens(t *testing.T) {
	store, mock := newMockStore(t)
	userID := ulid.Make()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM password_resets`).
		WithArgs(userID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		n, err := tx.DeleteResetTokens(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return nil
	})
	require.NoError(t, err)
}

func TestStoreTx_MarkPasswordResetRequired_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	userID := ulid.Make()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users SET password_reset_required`).
		WithArgs(userID.String(), true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		return tx.MarkPasswordResetRequired(context.Background(), userID, true)
	})
	require.ErrorIs(t, err, auth.ErrNotFound)
}

func TestStoreTx_UpdatePasswordAndClearResetFlag(t *testing.T) {
	store, mock := newMockStore(t)
	userID := ulid.Make()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE users\s+SET password_hash = \$2, password_reset_required = FALSE`).
		WithArgs(userID.String(), "new-digest").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.StoreTx) error {
		return tx.UpdatePasswordAndClearResetFlag(context.Background(), userID, "new-digest")
	})
	require.NoError(t, err)
}
