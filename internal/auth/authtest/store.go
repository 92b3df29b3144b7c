// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

// Package authtest provides an in-memory auth.Store for tests.
//
// The store enforces the same uniqueness rules as the PostgreSQL
// implementation (usernames, emails, provider identities, one account per
// provider per user) and returns the same sentinel errors, so service and
// resolver tests exercise real conflict paths without a database.
package authtest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/idlink/idlink/internal/auth"
)

// Store is an in-memory implementation of auth.Store.
type Store struct {
	mu sync.Mutex

	users     map[ulid.ULID]*auth.User
	usernames map[string]ulid.ULID
	emails    map[string]ulid.ULID

	accounts       map[ulid.ULID]*auth.SocialAccount
	byProviderID   map[string]ulid.ULID
	byUserProvider map[string]ulid.ULID

	tokens  map[string]*auth.EmailVerificationToken
	revoked map[string]*auth.RevokedToken
}

// NewStore creates a new empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:          make(map[ulid.ULID]*auth.User),
		usernames:      make(map[string]ulid.ULID),
		emails:         make(map[string]ulid.ULID),
		accounts:       make(map[ulid.ULID]*auth.SocialAccount),
		byProviderID:   make(map[string]ulid.ULID),
		byUserProvider: make(map[string]ulid.ULID),
		tokens:         make(map[string]*auth.EmailVerificationToken),
		revoked:        make(map[string]*auth.RevokedToken),
	}
}

// Users returns the user repository.
func (s *Store) Users() auth.UserRepository { return &userRepo{s: s} }

// SocialAccounts returns the social account repository.
func (s *Store) SocialAccounts() auth.SocialAccountRepository { return &socialRepo{s: s} }

// VerificationTokens returns the verification token repository.
func (s *Store) VerificationTokens() auth.VerificationTokenRepository {
	return &verificationRepo{s: s}
}

// RevokedTokens returns the revoked token repository.
func (s *Store) RevokedTokens() auth.RevokedTokenRepository { return &revokedRepo{s: s} }

// InTx runs fn against the same store. Writes apply immediately and are not
// rolled back on error; uniqueness checks still serialize concurrent writers
// the way the database constraints do, which is what callers retry on.
func (s *Store) InTx(_ context.Context, fn func(auth.Store) error) error {
	return fn(s)
}

func emailKey(email string) string { return strings.ToLower(email) }

func providerIDKey(provider auth.Provider, providerUserID string) string {
	return string(provider) + "\x00" + providerUserID
}

func userProviderKey(userID ulid.ULID, provider auth.Provider) string {
	return userID.String() + "\x00" + string(provider)
}

func copyUser(u *auth.User) *auth.User {
	c := *u
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		c.PasswordHash = &h
	}
	return &c
}

func copyAccount(a *auth.SocialAccount) *auth.SocialAccount {
	c := *a
	if a.ProfileSnapshot != nil {
		c.ProfileSnapshot = make(map[string]any, len(a.ProfileSnapshot))
		for k, v := range a.ProfileSnapshot {
			c.ProfileSnapshot[k] = v
		}
	}
	return &c
}

func copyToken(t *auth.EmailVerificationToken) *auth.EmailVerificationToken {
	c := *t
	return &c
}

type userRepo struct {
	s *Store
}

func (r *userRepo) Create(_ context.Context, user *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, taken := r.s.usernames[user.Username]; taken {
		return auth.ErrConflict
	}
	if _, taken := r.s.emails[emailKey(user.Email)]; taken {
		return auth.ErrConflict
	}

	r.s.users[user.ID] = copyUser(user)
	r.s.usernames[user.Username] = user.ID
	r.s.emails[emailKey(user.Email)] = user.ID
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(user), nil
}

func (r *userRepo) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.usernames[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(r.s.users[id]), nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.emails[emailKey(email)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyUser(r.s.users[id]), nil
}

func (r *userRepo) Update(_ context.Context, user *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.users[user.ID]
	if !ok {
		return auth.ErrNotFound
	}
	if id, taken := r.s.usernames[user.Username]; taken && id != user.ID {
		return auth.ErrConflict
	}
	if id, taken := r.s.emails[emailKey(user.Email)]; taken && id != user.ID {
		return auth.ErrConflict
	}

	delete(r.s.usernames, existing.Username)
	delete(r.s.emails, emailKey(existing.Email))
	r.s.users[user.ID] = copyUser(user)
	r.s.usernames[user.Username] = user.ID
	r.s.emails[emailKey(user.Email)] = user.ID
	return nil
}

func (r *userRepo) SetEmailVerified(_ context.Context, id ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.EmailVerified = true
	user.UpdatedAt = time.Now()
	return nil
}

type socialRepo struct {
	s *Store
}

func (r *socialRepo) Create(_ context.Context, account *auth.SocialAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	idKey := providerIDKey(account.Provider, account.ProviderUserID)
	if _, taken := r.s.byProviderID[idKey]; taken {
		return auth.ErrConflict
	}
	upKey := userProviderKey(account.UserID, account.Provider)
	if _, taken := r.s.byUserProvider[upKey]; taken {
		return auth.ErrConflict
	}

	r.s.accounts[account.ID] = copyAccount(account)
	r.s.byProviderID[idKey] = account.ID
	r.s.byUserProvider[upKey] = account.ID
	return nil
}

func (r *socialRepo) GetByProviderID(_ context.Context, provider auth.Provider, providerUserID string) (*auth.SocialAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byProviderID[providerIDKey(provider, providerUserID)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyAccount(r.s.accounts[id]), nil
}

func (r *socialRepo) ListByUser(_ context.Context, userID ulid.ULID) ([]*auth.SocialAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var accounts []*auth.SocialAccount
	for _, account := range r.s.accounts {
		if account.UserID == userID {
			accounts = append(accounts, copyAccount(account))
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].Provider < accounts[j].Provider
	})
	return accounts, nil
}

func (r *socialRepo) UpdateSnapshot(_ context.Context, id ulid.ULID, snapshot map[string]any) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	account, ok := r.s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	account.ProfileSnapshot = make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		account.ProfileSnapshot[k] = v
	}
	account.UpdatedAt = time.Now()
	return nil
}

type verificationRepo struct {
	s *Store
}

func (r *verificationRepo) Create(_ context.Context, token *auth.EmailVerificationToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.tokens[token.TokenHash] = copyToken(token)
	return nil
}

func (r *verificationRepo) GetByTokenHash(_ context.Context, tokenHash string) (*auth.EmailVerificationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.tokens[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return copyToken(token), nil
}

func (r *verificationRepo) Consume(_ context.Context, tokenHash string) (*auth.EmailVerificationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	token, ok := r.s.tokens[tokenHash]
	if !ok || token.IsUsed {
		return nil, auth.ErrNotFound
	}
	token.IsUsed = true
	return copyToken(token), nil
}

type revokedRepo struct {
	s *Store
}

func (r *revokedRepo) Revoke(_ context.Context, token *auth.RevokedToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.revoked[token.JTI]; exists {
		return nil
	}
	c := *token
	r.s.revoked[token.JTI] = &c
	return nil
}

func (r *revokedRepo) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, exists := r.s.revoked[jti]
	return exists, nil
}

func (r *revokedRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var deleted int64
	for jti, token := range r.s.revoked {
		if token.ExpiresAt.Before(now) {
			delete(r.s.revoked, jti)
			deleted++
		}
	}
	return deleted, nil
}

// Compile-time interface check.
var _ auth.Store = (*Store)(nil)
