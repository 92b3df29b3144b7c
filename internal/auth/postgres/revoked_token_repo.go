// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/store"
)

// RevokedTokenRepository implements auth.RevokedTokenRepository using
// PostgreSQL.
type RevokedTokenRepository struct {
	db store.DB
}

// NewRevokedTokenRepository creates a new RevokedTokenRepository.
func NewRevokedTokenRepository(db store.DB) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db}
}

// Revoke records a refresh token ID on the denylist. Revoking an already
// revoked ID is a no-op.
func (r *RevokedTokenRepository) Revoke(ctx context.Context, token *auth.RevokedToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO revoked_tokens (jti, user_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`,
		token.JTI,
		token.UserID,
		token.ExpiresAt,
		token.RevokedAt,
	)
	if err != nil {
		return oops.Code("REVOKED_TOKEN_CREATE_FAILED").
			With("operation", "insert revoked token").
			With("jti", token.JTI).
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether a refresh token ID is on the denylist.
func (r *RevokedTokenRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)
	`, jti)

	var revoked bool
	if err := row.Scan(&revoked); err != nil {
		return false, oops.Code("REVOKED_TOKEN_CHECK_FAILED").
			With("operation", "check revoked token").
			With("jti", jti).
			Wrap(err)
	}
	return revoked, nil
}

// DeleteExpired removes denylist entries whose tokens have expired on their
// own and no longer need tracking. Returns the number of rows removed.
func (r *RevokedTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.Exec(ctx, `
		DELETE FROM revoked_tokens WHERE expires_at < $1
	`, now)
	if err != nil {
		return 0, oops.Code("REVOKED_TOKEN_CLEANUP_FAILED").
			With("operation", "delete expired revoked tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// Compile-time interface check.
var _ auth.RevokedTokenRepository = (*RevokedTokenRepository)(nil)
