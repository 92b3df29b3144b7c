// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import "context"

// Store bundles the auth repositories with scoped transactions. InTx runs
// fn against a Store whose repositories share one transaction, committing
// on nil return and rolling back on error or panic. Implementations may
// run nested InTx calls as savepoints.
type Store interface {
	Users() UserRepository
	SocialAccounts() SocialAccountRepository
	VerificationTokens() VerificationTokenRepository
	RevokedTokens() RevokedTokenRepository
	InTx(ctx context.Context, fn func(Store) error) error
}
