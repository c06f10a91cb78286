// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Iterations = 1
	argon2MemoryKiB  = 64 * 1024 // 64 MB
	argon2Threads    = 4
	argon2SaltBytes  = 16
	argon2KeyBytes   = 32
)

// Argon2idHasher implements PasswordHasher using salted argon2id digests in
// PHC string format. Legacy salt-free SHA-256 hex digests still verify, so
// existing accounts keep working until their digest is upgraded on login.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Hash produces an argon2id digest of the password with a fresh random salt.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, argon2Iterations, argon2MemoryKiB, argon2Threads, argon2KeyBytes)

	// PHC string format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2MemoryKiB,
		argon2Iterations,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return encoded, nil
}

// Verify checks if the password matches the digest. PHC-format digests are
// verified with argon2id; anything else is treated as a legacy SHA-256 hex
// digest and compared in constant time.
func (h *Argon2idHasher) Verify(password, digest string) (bool, error) {
	if digest == "" {
		return false, oops.Code("AUTH_INVALID_DIGEST").Errorf("stored digest cannot be empty")
	}

	if !strings.HasPrefix(digest, "$") {
		return ConstantTimeEqual(sha256HexDigest(password), digest), nil
	}

	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_DIGEST").Errorf("malformed digest")
	}
	if parts[1] != "argon2id" {
		return false, oops.Code("AUTH_INVALID_DIGEST").Errorf("unsupported digest algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_DIGEST").Wrap(err)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_DIGEST").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_DIGEST").Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_DIGEST").Wrap(err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_DIGEST").Wrap(err)
	}
	if len(want) == 0 || len(want) > 1<<30 {
		return false, oops.Code("AUTH_INVALID_DIGEST").Errorf("invalid digest key length: %d", len(want))
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsUpgrade returns true for any digest that is not already argon2id.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	return !strings.HasPrefix(digest, "$argon2id$")
}

// Compile-time interface check.
var _ PasswordHasher = (*Argon2idHasher)(nil)
