// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package authtest provides an in-memory credential store for tests.
package authtest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// Store is an in-memory auth.CredentialStore. InTx snapshots all state
// before running fn and restores the snapshot when fn fails, giving the
// same all-or-nothing semantics as a real transaction.
type Store struct {
	mu sync.Mutex

	users    map[string]*auth.User               // by user ID
	sessions map[string]*auth.Session            // by session ID
	resets   map[string]*auth.PasswordResetToken // by token value

	// BeginErr makes InTx fail before fn runs.
	BeginErr error
	// PingErr makes Ping fail.
	PingErr error

	opErrs map[string]error
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*auth.User),
		sessions: make(map[string]*auth.Session),
		resets:   make(map[string]*auth.PasswordResetToken),
		opErrs:   make(map[string]error),
	}
}

// FailOn makes the named StoreTx method return err on every call.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opErrs[method] = err
}

// SeedUser adds a user directly, outside any transaction.
func (s *Store) SeedUser(u *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID.String()] = cloneUser(u)
}

// SeedSession adds a session directly, outside any transaction.
func (s *Store) SeedSession(sess *auth.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID.String()] = cloneSession(sess)
}

// SeedResetToken adds a reset token directly, outside any transaction.
func (s *Store) SeedResetToken(rt *auth.PasswordResetToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets[rt.Token] = cloneReset(rt)
}

// User returns a copy of the stored user, or nil.
func (s *Store) User(id ulid.ULID) *auth.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id.String()]; ok {
		return cloneUser(u)
	}
	return nil
}

// OpenSession returns a copy of the user's open session, or nil.
func (s *Store) OpenSession(userID ulid.ULID) *auth.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.UserID.Compare(userID) == 0 && sess.EndedAt == nil {
			return cloneSession(sess)
		}
	}
	return nil
}

// SessionCount returns the total number of stored sessions, closed ones
// included.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ResetTokenCount returns the number of stored reset tokens.
func (s *Store) ResetTokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resets)
}

// InTx implements auth.CredentialStore.
func (s *Store) InTx(_ context.Context, fn func(tx auth.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.BeginErr != nil {
		return s.BeginErr
	}

	snapUsers := cloneUserMap(s.users)
	snapSessions := cloneSessionMap(s.sessions)
	snapResets := cloneResetMap(s.resets)

	restore := func() {
		s.users = snapUsers
		s.sessions = snapSessions
		s.resets = snapResets
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err := fn(&memTx{s: s}); err != nil {
		restore()
		return err
	}
	return nil
}

// Ping implements auth.CredentialStore.
func (s *Store) Ping(_ context.Context) error {
	return s.PingErr
}

// memTx operates on the Store's live maps; InTx holds the lock and
// restores a snapshot on failure.
type memTx struct {
	s *Store
}

func (t *memTx) fail(method string) error {
	return t.s.opErrs[method]
}

func (t *memTx) FindUserByUsernameOrEmail(_ context.Context, key string) (*auth.User, error) {
	if err := t.fail("FindUserByUsernameOrEmail"); err != nil {
		return nil, err
	}
	for _, u := range t.s.users {
		if strings.EqualFold(u.Username, key) || strings.EqualFold(u.Email, key) {
			return cloneUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (t *memTx) FindUserByEmail(_ context.Context, email string) (*auth.User, error) {
	if err := t.fail("FindUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range t.s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (t *memTx) InsertUser(_ context.Context, user *auth.User) error {
	if err := t.fail("InsertUser"); err != nil {
		return err
	}
	for _, u := range t.s.users {
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return auth.ErrDuplicate
		}
	}
	t.s.users[user.ID.String()] = cloneUser(user)
	return nil
}

func (t *memTx) DeleteUser(_ context.Context, userID ulid.ULID) error {
	if err := t.fail("DeleteUser"); err != nil {
		return err
	}
	id := userID.String()
	if _, ok := t.s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(t.s.users, id)
	for sid, sess := range t.s.sessions {
		if sess.UserID.Compare(userID) == 0 {
			delete(t.s.sessions, sid)
		}
	}
	for tok, rt := range t.s.resets {
		if rt.UserID.Compare(userID) == 0 {
			delete(t.s.resets, tok)
		}
	}
	return nil
}

func (t *memTx) FindOpenSession(_ context.Context, userID ulid.ULID) (*auth.Session, error) {
	if err := t.fail("FindOpenSession"); err != nil {
		return nil, err
	}
	for _, sess := range t.s.sessions {
		if sess.UserID.Compare(userID) == 0 && sess.EndedAt == nil {
			return cloneSession(sess), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (t *memTx) InsertSession(_ context.Context, session *auth.Session) error {
	if err := t.fail("InsertSession"); err != nil {
		return err
	}
	t.s.sessions[session.ID.String()] = cloneSession(session)
	return nil
}

func (t *memTx) CloseSession(_ context.Context, token string, now time.Time) error {
	if err := t.fail("CloseSession"); err != nil {
		return err
	}
	for _, sess := range t.s.sessions {
		if sess.Token == token && sess.EndedAt == nil {
			ended := now
			sess.EndedAt = &ended
			return nil
		}
	}
	return auth.ErrNotFound
}

func (t *memTx) FindExpiredOpenSessions(_ context.Context, now time.Time) ([]auth.ExpiredSession, error) {
	if err := t.fail("FindExpiredOpenSessions"); err != nil {
		return nil, err
	}
	var expired []auth.ExpiredSession
	for _, sess := range t.s.sessions {
		if sess.EndedAt != nil || !sess.ExpiresAt.Before(now) {
			continue
		}
		username := ""
		if u, ok := t.s.users[sess.UserID.String()]; ok {
			username = u.Username
		}
		expired = append(expired, auth.ExpiredSession{
			Token:    sess.Token,
			Username: username,
		})
	}
	return expired, nil
}

func (t *memTx) InsertResetToken(_ context.Context, token *auth.PasswordResetToken) error {
	if err := t.fail("InsertResetToken"); err != nil {
		return err
	}
	t.s.resets[token.Token] = cloneReset(token)
	return nil
}

func (t *memTx) FindResetToken(_ context.Context, token string) (*auth.PasswordResetToken, error) {
	if err := t.fail("FindResetToken"); err != nil {
		return nil, err
	}
	if rt, ok := t.s.resets[token]; ok {
		return cloneReset(rt), nil
	}
	return nil, auth.ErrNotFound
}

func (t *memTx) DeleteResetTokens(_ context.Context, userID ulid.ULID) (int64, error) {
	if err := t.fail("DeleteResetTokens"); err != nil {
		return 0, err
	}
	var n int64
	for tok, rt := range t.s.resets {
		if rt.UserID.Compare(userID) == 0 {
			delete(t.s.resets, tok)
			n++
		}
	}
	return n, nil
}

func (t *memTx) MarkPasswordResetRequired(_ context.Context, userID ulid.ULID, required bool) error {
	if err := t.fail("MarkPasswordResetRequired"); err != nil {
		return err
	}
	u, ok := t.s.users[userID.String()]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordResetRequired = required
	return nil
}

func (t *memTx) UpdatePasswordDigest(_ context.Context, userID ulid.ULID, digest string) error {
	if err := t.fail("UpdatePasswordDigest"); err != nil {
		return err
	}
	u, ok := t.s.users[userID.String()]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordDigest = digest
	return nil
}

func (t *memTx) UpdatePasswordAndClearResetFlag(_ context.Context, userID ulid.ULID, digest string) error {
	if err := t.fail("UpdatePasswordAndClearResetFlag"); err != nil {
		return err
	}
	u, ok := t.s.users[userID.String()]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordDigest = digest
	u.PasswordResetRequired = false
	return nil
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	return &c
}

func cloneSession(s *auth.Session) *auth.Session {
	c := *s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	return &c
}

func cloneReset(r *auth.PasswordResetToken) *auth.PasswordResetToken {
	c := *r
	return &c
}

func cloneUserMap(m map[string]*auth.User) map[string]*auth.User {
	out := make(map[string]*auth.User, len(m))
	for k, v := range m {
		out[k] = cloneUser(v)
	}
	return out
}

func cloneSessionMap(m map[string]*auth.Session) map[string]*auth.Session {
	out := make(map[string]*auth.Session, len(m))
	for k, v := range m {
		out[k] = cloneSession(v)
	}
	return out
}

func cloneResetMap(m map[string]*auth.PasswordResetToken) map[string]*auth.PasswordResetToken {
	out := make(map[string]*auth.PasswordResetToken, len(m))
	for k, v := range m {
		out[k] = cloneReset(v)
	}
	return out
}

var _ auth.CredentialStore = (*Store)(nil)
var _ auth.StoreTx = (*memTx)(nil)
