// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

// Package postgres implements the auth repositories and store on
// PostgreSQL.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/store"
)

// Store bundles the PostgreSQL repositories over one DB handle and
// implements auth.Store. InTx hands fn a Store bound to a transaction;
// nested calls become savepoints.
type Store struct {
	db            store.DB
	users         *UserRepository
	social        *SocialAccountRepository
	verifications *VerificationTokenRepository
	revocations   *RevokedTokenRepository
}

// NewStore creates a Store over a pool or transaction.
func NewStore(db store.DB) *Store {
	return &Store{
		db:            db,
		users:         NewUserRepository(db),
		social:        NewSocialAccountRepository(db),
		verifications: NewVerificationTokenRepository(db),
		revocations:   NewRevokedTokenRepository(db),
	}
}

// Users returns the user repository.
func (s *Store) Users() auth.UserRepository { return s.users }

// SocialAccounts returns the social account repository.
func (s *Store) SocialAccounts() auth.SocialAccountRepository { return s.social }

// VerificationTokens returns the verification token repository.
func (s *Store) VerificationTokens() auth.VerificationTokenRepository { return s.verifications }

// RevokedTokens returns the refresh token denylist repository.
func (s *Store) RevokedTokens() auth.RevokedTokenRepository { return s.revocations }

// InTx runs fn against a transaction-bound Store, committing on nil return
// and rolling back on error or panic.
func (s *Store) InTx(ctx context.Context, fn func(auth.Store) error) error {
	return store.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(NewStore(tx))
	})
}

// Compile-time interface check.
var _ auth.Store = (*Store)(nil)
