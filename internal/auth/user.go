// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User is the root identity record. Sessions and reset tokens are owned by
// exactly one User and are removed when the User is deleted.
type User struct {
	ID                    ulid.ULID
	Username              string
	FirstName             string
	LastName              string
	Email                 string
	PasswordDigest        string
	PasswordResetRequired bool
}

// NewUser creates a validated User with a fresh ID. The digest must already
// be computed; this constructor never sees a plaintext password.
func NewUser(username, firstName, lastName, email, passwordDigest string) (*User, error) {
	if username == "" {
		return nil, oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if email == "" {
		return nil, oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if passwordDigest == "" {
		return nil, oops.Code("AUTH_INVALID_DIGEST").Errorf("password digest cannot be empty")
	}

	return &User{
		ID:             ulid.Make(),
		Username:       username,
		FirstName:      firstName,
		LastName:       lastName,
		Email:          email,
		PasswordDigest: passwordDigest,
	}, nil
}
