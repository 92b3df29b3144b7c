// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import (
	"context"
	"time"
)

// RevokedToken denylists one refresh token by its jti claim. Access and
// refresh tokens stay stateless signed JWTs; a row here blocks the refresh
// token until its natural expiry, after which the row is prunable.
type RevokedToken struct {
	JTI       string
	UserID    string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// RevokedTokenRepository manages the refresh token denylist.
type RevokedTokenRepository interface {
	// Revoke records a refresh token's jti. Revoking an already-revoked
	// jti is a no-op.
	Revoke(ctx context.Context, token *RevokedToken) error

	// IsRevoked reports whether a jti has been revoked.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// DeleteExpired removes denylist rows whose tokens expired before now.
	// Returns the number of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
