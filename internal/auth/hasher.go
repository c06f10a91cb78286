// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password digest computation and verification.
type PasswordHasher interface {
	// Hash produces a digest of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the stored digest.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on
	// a malformed digest.
	Verify(password, digest string) (bool, error)

	// NeedsUpgrade returns true if the digest uses a weaker scheme and
	// should be recomputed on the next successful login.
	NeedsUpgrade(digest string) bool
}

// ConstantTimeEqual compares two strings without leaking the position of
// the first differing byte. Strings of unequal length compare unequal
// immediately; length is not secret here since all digests are fixed-size.
func ConstantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// SHA256Hasher implements PasswordHasher as a deterministic, salt-free
// SHA-256 hex digest. It exists for stores migrated from the legacy scheme;
// new deployments should use Argon2idHasher, which upgrades these digests
// in place on login.
type SHA256Hasher struct{}

// NewSHA256Hasher creates a new SHA256Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// Hash returns the lowercase hex SHA-256 digest of the password.
func (h *SHA256Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return sha256HexDigest(password), nil
}

// Verify recomputes the digest and compares it in constant time.
func (h *SHA256Hasher) Verify(password, digest string) (bool, error) {
	if digest == "" {
		return false, oops.Code("AUTH_INVALID_DIGEST").Errorf("stored digest cannot be empty")
	}
	return ConstantTimeEqual(sha256HexDigest(password), digest), nil
}

// NeedsUpgrade always returns false: this hasher cannot produce anything
// stronger than what is already stored.
func (h *SHA256Hasher) NeedsUpgrade(string) bool {
	return false
}

// sha256HexDigest computes the 64-character hex SHA-256 digest of s.
func sha256HexDigest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Compile-time interface check.
var _ PasswordHasher = (*SHA256Hasher)(nil)
