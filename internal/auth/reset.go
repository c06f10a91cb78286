// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ResetTokenTTL is the fixed lifetime of a password-reset token.
const ResetTokenTTL = time.Hour

// PasswordResetToken represents one forgot-password request. Tokens are
// deleted when redeemed, so a token can never be used twice.
type PasswordResetToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewPasswordResetToken creates a validated PasswordResetToken with a fresh ID.
func NewPasswordResetToken(userID ulid.ULID, token string, expiresAt time.Time) (*PasswordResetToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("RESET_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Code("RESET_INVALID_TOKEN").Errorf("reset token cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &PasswordResetToken{
		ID:        ulid.Make(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// IsExpired returns true if the token has passed its expiry time.
func (r *PasswordResetToken) IsExpired() bool {
	return r.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the token would be expired at the given time.
func (r *PasswordResetToken) IsExpiredAt(t time.Time) bool {
	return t.After(r.ExpiresAt)
}
