// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTTL is the fixed lifetime of a login session.
const SessionTTL = 3 * time.Hour

// Session represents one active or historical login. Sessions are closed by
// setting EndedAt, never deleted; the row is retained as history.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Token     string
	ExpiresAt time.Time
	IPAddress string
	CreatedAt time.Time
	EndedAt   *time.Time
}

// NewSession creates a validated Session with a fresh ID.
// IPAddress is optional and may be empty.
func NewSession(userID ulid.ULID, token, ipAddress string, expiresAt time.Time) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("session token cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("SESSION_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &Session{
		ID:        ulid.Make(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		IPAddress: ipAddress,
		CreatedAt: time.Now(),
	}, nil
}

// IsOpen returns true if the session has not been closed.
func (s *Session) IsOpen() bool {
	return s.EndedAt == nil
}

// IsExpired returns true if the session has passed its expiry time.
func (s *Session) IsExpired() bool {
	return s.IsExpiredAt(time.Now())
}

// IsExpiredAt returns true if the session would be expired at the given
// time. Useful for testing with deterministic time values.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}
