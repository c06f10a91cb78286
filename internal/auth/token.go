// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/samber/oops"
)

// DefaultTokenBytes is the entropy drawn for session and reset tokens.
// 32 bytes encode to 43 URL-safe characters.
const DefaultTokenBytes = 32

// TokenGenerator produces opaque, unguessable tokens.
type TokenGenerator interface {
	// Generate draws byteLength bytes of fresh entropy and encodes them
	// into the URL-safe alphabet [A-Za-z0-9_-] without padding.
	Generate(byteLength int) (string, error)
}

// RandomTokenGenerator implements TokenGenerator on crypto/rand.
type RandomTokenGenerator struct{}

// NewRandomTokenGenerator creates a new RandomTokenGenerator.
func NewRandomTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{}
}

// Generate returns a fresh URL-safe token of ceil(byteLength*8/6) characters.
// A non-positive byteLength falls back to DefaultTokenBytes.
func (g *RandomTokenGenerator) Generate(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultTokenBytes
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", byteLength).
			Wrap(err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Compile-time interface check.
var _ TokenGenerator = (*RandomTokenGenerator)(nil)
