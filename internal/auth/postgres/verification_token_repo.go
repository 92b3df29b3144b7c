// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/store"
)

// VerificationTokenRepository implements auth.VerificationTokenRepository
// using PostgreSQL.
type VerificationTokenRepository struct {
	db store.DB
}

// NewVerificationTokenRepository creates a new VerificationTokenRepository.
func NewVerificationTokenRepository(db store.DB) *VerificationTokenRepository {
	return &VerificationTokenRepository{db: db}
}

// Create stores a new email verification token.
func (r *VerificationTokenRepository) Create(ctx context.Context, token *auth.EmailVerificationToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO email_verification_tokens (
			id, user_id, token_hash, is_used, created_at
		) VALUES ($1, $2, $3, $4, $5)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.IsUsed,
		token.CreatedAt,
	)
	if err != nil {
		return oops.Code("VERIFICATION_TOKEN_CREATE_FAILED").
			With("operation", "insert verification token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a verification token by its hash.
func (r *VerificationTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.EmailVerificationToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, is_used, created_at
		FROM email_verification_tokens
		WHERE token_hash = $1
	`, tokenHash)

	token, err := r.scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFICATION_TOKEN_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_TOKEN_GET_FAILED").
			With("operation", "get verification token by hash").
			Wrap(err)
	}
	return token, nil
}

// Consume marks an unused token as used and returns it. The conditional
// update is the serialization point: of any number of concurrent consumers
// exactly one sees the row, the rest get auth.ErrNotFound.
func (r *VerificationTokenRepository) Consume(ctx context.Context, tokenHash string) (*auth.EmailVerificationToken, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE email_verification_tokens SET is_used = TRUE
		WHERE token_hash = $1 AND is_used = FALSE
		RETURNING id, user_id, token_hash, is_used, created_at
	`, tokenHash)

	token, err := r.scanToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("VERIFICATION_TOKEN_NOT_FOUND").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_TOKEN_CONSUME_FAILED").
			With("operation", "consume verification token").
			Wrap(err)
	}
	return token, nil
}

// scanToken scans a single row into an EmailVerificationToken.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *VerificationTokenRepository) scanToken(row pgx.Row) (*auth.EmailVerificationToken, error) {
	var (
		idStr     string
		userIDStr string
		tokenHash string
		isUsed    bool
		createdAt time.Time
	)

	err := row.Scan(&idStr, &userIDStr, &tokenHash, &isUsed, &createdAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("VERIFICATION_TOKEN_SCAN_FAILED").
			With("operation", "scan verification token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("VERIFICATION_TOKEN_INVALID_ID").
			With("operation", "parse verification token id").
			With("id", idStr).
			Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("VERIFICATION_TOKEN_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	return &auth.EmailVerificationToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		IsUsed:    isUsed,
		CreatedAt: createdAt,
	}, nil
}

// Compile-time interface check.
var _ auth.VerificationTokenRepository = (*VerificationTokenRepository)(nil)
