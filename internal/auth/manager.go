// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// dummyPasswordDigest is verified when a login names an unknown account, so
// the response time matches the known-account path. This is NOT a real
// credential - it is a fake digest that can never match any password.
//
//nolint:gosec // G101: intentionally fake digest for timing-attack prevention, not a credential.
const dummyPasswordDigest = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// ManagerConfig carries optional SessionManager tuning. Zero values fall
// back to the package defaults.
type ManagerConfig struct {
	// SessionTTL is the lifetime of a new login session.
	SessionTTL time.Duration

	// ResetTokenTTL is the lifetime of a password-reset token.
	ResetTokenTTL time.Duration
}

// SessionManager orchestrates registration, login, logout, account deletion,
// and the password-reset flow. Every operation runs inside a single store
// transaction; the notifier is only invoked after a commit.
type SessionManager struct {
	store    CredentialStore
	hasher   PasswordHasher
	tokens   TokenGenerator
	notifier Notifier
	logger   *slog.Logger

	sessionTTL time.Duration
	resetTTL   time.Duration
}

// NewSessionManager creates a SessionManager. All dependencies are required.
func NewSessionManager(store CredentialStore, hasher PasswordHasher, tokens TokenGenerator, notifier Notifier, logger *slog.Logger, cfg ManagerConfig) (*SessionManager, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token generator is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}

	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = SessionTTL
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = ResetTokenTTL
	}

	return &SessionManager{
		store:      store,
		hasher:     hasher,
		tokens:     tokens,
		notifier:   notifier,
		logger:     logger,
		sessionTTL: cfg.SessionTTL,
		resetTTL:   cfg.ResetTokenTTL,
	}, nil
}

// RegisterUser creates a new account and returns its ID.
func (m *SessionManager) RegisterUser(ctx context.Context, username, firstName, lastName, email, password, confirm string) (ulid.ULID, error) {
	if password != confirm {
		return ulid.ULID{}, oops.Code("AUTH_PASSWORD_MISMATCH").Errorf("passwords do not match")
	}

	digest, err := m.hasher.Hash(password)
	if err != nil {
		return ulid.ULID{}, err
	}

	user, err := NewUser(username, firstName, lastName, email, digest)
	if err != nil {
		return ulid.ULID{}, err
	}

	err = m.store.InTx(ctx, func(tx StoreTx) error {
		return tx.InsertUser(ctx, user)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return ulid.ULID{}, oops.Code("AUTH_DUPLICATE_ACCOUNT").
				With("username", username).
				Errorf("username or email already taken")
		}
		return ulid.ULID{}, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}

	observability.RecordRegistration()
	m.logger.Info("user registered", "username", username, "user_id", user.ID.String())
	return user.ID, nil
}

// LoginUser authenticates by username or email and establishes a session.
// Unknown accounts and wrong passwords produce the same error with the same
// timing, so the caller cannot enumerate usernames.
func (m *SessionManager) LoginUser(ctx context.Context, identifier, password, ipAddress string) (*Session, error) {
	var session *Session

	err := m.store.InTx(ctx, func(tx StoreTx) error {
		user, lookupErr := tx.FindUserByUsernameOrEmail(ctx, identifier)

		// Always run one digest verification, against the dummy digest
		// when the account does not exist, to keep response time even.
		targetDigest := dummyPasswordDigest
		userExists := false
		switch {
		case lookupErr == nil:
			targetDigest = user.PasswordDigest
			userExists = true
		case errors.Is(lookupErr, ErrNotFound):
			// fall through with the dummy digest
		default:
			return oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "find user").
				Wrap(lookupErr)
		}

		valid, verifyErr := m.hasher.Verify(password, targetDigest)
		if verifyErr != nil && userExists {
			return oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "verify password").
				Wrap(verifyErr)
		}
		if !userExists || !valid {
			observability.RecordLogin("denied")
			return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
		}

		// Recompute a legacy digest with the configured scheme. Login
		// succeeds regardless of whether the upgrade sticks.
		if m.hasher.NeedsUpgrade(user.PasswordDigest) {
			if newDigest, hashErr := m.hasher.Hash(password); hashErr == nil {
				if upErr := tx.UpdatePasswordDigest(ctx, user.ID, newDigest); upErr != nil {
					m.logger.Warn("password digest upgrade failed", "username", user.Username, "error", upErr)
				}
			}
		}

		tracked, trackErr := m.trackSession(ctx, tx, user, ipAddress)
		if trackErr != nil {
			return trackErr
		}
		session = tracked
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.RecordLogin("success")
	m.logger.Info("login successful", "identifier", identifier, "session_id", session.ID.String())
	return session, nil
}

// trackSession moves the account into the open-session state. An unexpired
// open session blocks the login; an expired one is closed and replaced with
// a fresh session carrying the caller's IP address.
func (m *SessionManager) trackSession(ctx context.Context, tx StoreTx, user *User, ipAddress string) (*Session, error) {
	now := time.Now()

	open, err := tx.FindOpenSession(ctx, user.ID)
	switch {
	case err == nil:
		if !open.IsExpiredAt(now) {
			observability.RecordLogin("conflict")
			return nil, oops.Code("SESSION_CONFLICT").
				With("username", user.Username).
				Errorf("an active session already exists")
		}
		m.logger.Info("closing expired session on login", "username", user.Username)
		if closeErr := tx.CloseSession(ctx, open.Token, now); closeErr != nil {
			return nil, oops.Code("SESSION_TRACK_FAILED").
				With("operation", "close expired session").
				Wrap(closeErr)
		}
	case errors.Is(err, ErrNotFound):
		// no open session, proceed to create one
	default:
		return nil, oops.Code("SESSION_TRACK_FAILED").
			With("operation", "find open session").
			Wrap(err)
	}

	token, err := m.tokens.Generate(DefaultTokenBytes)
	if err != nil {
		return nil, oops.Code("SESSION_TRACK_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(user.ID, token, ipAddress, now.Add(m.sessionTTL))
	if err != nil {
		return nil, oops.Code("SESSION_TRACK_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := tx.InsertSession(ctx, session); err != nil {
		return nil, oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session").
			Wrap(err)
	}

	return session, nil
}

// LogoutUser closes the user's open session. A repeat call reports
// SESSION_NONE_ACTIVE, as does logout for an unknown username.
func (m *SessionManager) LogoutUser(ctx context.Context, username string) error {
	err := m.store.InTx(ctx, func(tx StoreTx) error {
		user, lookupErr := tx.FindUserByUsernameOrEmail(ctx, username)
		if lookupErr != nil {
			if errors.Is(lookupErr, ErrNotFound) {
				return oops.Code("SESSION_NONE_ACTIVE").
					With("username", username).
					Errorf("no active session")
			}
			return oops.Code("AUTH_LOGOUT_FAILED").
				With("operation", "find user").
				Wrap(lookupErr)
		}

		open, sessErr := tx.FindOpenSession(ctx, user.ID)
		if sessErr != nil {
			if errors.Is(sessErr, ErrNotFound) {
				return oops.Code("SESSION_NONE_ACTIVE").
					With("username", username).
					Errorf("no active session")
			}
			return oops.Code("AUTH_LOGOUT_FAILED").
				With("operation", "find open session").
				Wrap(sessErr)
		}

		if closeErr := tx.CloseSession(ctx, open.Token, time.Now()); closeErr != nil {
			return oops.Code("AUTH_LOGOUT_FAILED").
				With("operation", "close session").
				Wrap(closeErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("logout successful", "username", username)
	return nil
}

// DeleteUser removes an account. Sessions and reset tokens cascade with it.
// Irreversible.
func (m *SessionManager) DeleteUser(ctx context.Context, username string) error {
	err := m.store.InTx(ctx, func(tx StoreTx) error {
		user, lookupErr := tx.FindUserByUsernameOrEmail(ctx, username)
		if lookupErr != nil {
			if errors.Is(lookupErr, ErrNotFound) {
				return oops.Code("AUTH_USER_NOT_FOUND").
					With("username", username).
					Errorf("user not found")
			}
			return oops.Code("AUTH_DELETE_FAILED").
				With("operation", "find user").
				Wrap(lookupErr)
		}

		if delErr := tx.DeleteUser(ctx, user.ID); delErr != nil {
			return oops.Code("AUTH_DELETE_FAILED").
				With("operation", "delete user").
				Wrap(delErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("user deleted", "username", username)
	return nil
}

// ForgotPassword issues a reset token for the account with the given email,
// marks the account as requiring a reset, and notifies the user after the
// transaction commits. A notification failure is logged, never rolled back.
func (m *SessionManager) ForgotPassword(ctx context.Context, email string) error {
	token, err := m.tokens.Generate(DefaultTokenBytes)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	err = m.store.InTx(ctx, func(tx StoreTx) error {
		user, lookupErr := tx.FindUserByEmail(ctx, email)
		if lookupErr != nil {
			if errors.Is(lookupErr, ErrNotFound) {
				return oops.Code("AUTH_USER_NOT_FOUND").
					With("email", email).
					Errorf("user not found")
			}
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "find user by email").
				Wrap(lookupErr)
		}

		reset, newErr := NewPasswordResetToken(user.ID, token, time.Now().Add(m.resetTTL))
		if newErr != nil {
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "create reset token").
				Wrap(newErr)
		}

		if insErr := tx.InsertResetToken(ctx, reset); insErr != nil {
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "insert reset token").
				Wrap(insErr)
		}

		if markErr := tx.MarkPasswordResetRequired(ctx, user.ID, true); markErr != nil {
			return oops.Code("RESET_REQUEST_FAILED").
				With("operation", "mark reset required").
				Wrap(markErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// The token row is committed; delivery is best effort from here.
	if sendErr := m.notifier.Send(ctx, email, token); sendErr != nil {
		errutil.LogError(m.logger, "reset notification delivery failed", sendErr)
	}

	observability.RecordReset("requested")
	m.logger.Info("password reset requested", "email", email)
	return nil
}

// CompletePasswordReset redeems a reset token and replaces the account
// password. The token must belong to the account, must not be expired, and
// is consumed in the same transaction so it can never be redeemed twice.
func (m *SessionManager) CompletePasswordReset(ctx context.Context, email, token, newPassword, confirm string) error {
	if newPassword == "" || confirm == "" {
		return oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password fields cannot be empty")
	}
	if newPassword != confirm {
		return oops.Code("AUTH_PASSWORD_MISMATCH").Errorf("passwords do not match")
	}

	digest, err := m.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = m.store.InTx(ctx, func(tx StoreTx) error {
		user, lookupErr := tx.FindUserByEmail(ctx, email)
		if lookupErr != nil {
			if errors.Is(lookupErr, ErrNotFound) {
				return oops.Code("AUTH_USER_NOT_FOUND").
					With("email", email).
					Errorf("user not found")
			}
			return oops.Code("RESET_COMPLETE_FAILED").
				With("operation", "find user by email").
				Wrap(lookupErr)
		}

		reset, tokErr := tx.FindResetToken(ctx, token)
		if tokErr != nil {
			if errors.Is(tokErr, ErrNotFound) {
				return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token not found")
			}
			return oops.Code("RESET_COMPLETE_FAILED").
				With("operation", "find reset token").
				Wrap(tokErr)
		}
		if reset.UserID.Compare(user.ID) != 0 {
			return oops.Code("RESET_TOKEN_INVALID").Errorf("reset token not found")
		}
		if reset.IsExpired() {
			return oops.Code("RESET_TOKEN_EXPIRED").Errorf("reset token has expired")
		}

		if updErr := tx.UpdatePasswordAndClearResetFlag(ctx, user.ID, digest); updErr != nil {
			return oops.Code("RESET_COMPLETE_FAILED").
				With("operation", "update password").
				Wrap(updErr)
		}

		// Consume every outstanding token for the account inside the same
		// transaction; redeeming and re-redeeming can never both commit.
		if _, delErr := tx.DeleteResetTokens(ctx, user.ID); delErr != nil {
			return oops.Code("RESET_COMPLETE_FAILED").
				With("operation", "consume reset tokens").
				Wrap(delErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	observability.RecordReset("completed")
	m.logger.Info("password reset completed", "email", email)
	return nil
}
