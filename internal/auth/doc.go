// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth implements the credential and session lifecycle engine.
//
// # Domain Types
//
// Domain types (User, Session, PasswordResetToken) should be created using
// their respective constructors:
//   - NewUser - creates a User with a validated identity and password digest
//   - NewSession - creates a Session with a validated owner, token, and expiry
//   - NewPasswordResetToken - creates a PasswordResetToken with a validated owner and expiry
//
// Direct struct initialization bypasses validation and may create invalid
// state. Store implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// SessionManager coordinates registration, login, logout, account deletion,
// and the password-reset flow. Every operation runs inside a single store
// transaction. SessionMonitor is the background sweeper that closes expired
// sessions; it owns its own transactions, one per polling interval.
//
// The persistent store is reached through the CredentialStore interface;
// see the postgres subpackage for the PostgreSQL implementation and the
// authtest subpackage for an in-memory fake.
package auth
