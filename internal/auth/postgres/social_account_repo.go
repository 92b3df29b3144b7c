// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/store"
)

// SocialAccountRepository implements auth.SocialAccountRepository using
// PostgreSQL. Profile snapshots are stored as JSONB.
type SocialAccountRepository struct {
	db store.DB
}

// NewSocialAccountRepository creates a new SocialAccountRepository.
func NewSocialAccountRepository(db store.DB) *SocialAccountRepository {
	return &SocialAccountRepository{db: db}
}

// Create stores a new social account. Unique violations on
// (provider, provider_user_id) or (user_id, provider) map to
// auth.ErrConflict.
func (r *SocialAccountRepository) Create(ctx context.Context, account *auth.SocialAccount) error {
	snapshotJSON, err := marshalSnapshot(account.ProfileSnapshot)
	if err != nil {
		return oops.Code("SOCIAL_ACCOUNT_CREATE_FAILED").
			With("operation", "marshal profile snapshot").
			Wrap(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO social_accounts (
			id, user_id, provider, provider_user_id, profile_snapshot,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		account.ID.String(),
		account.UserID.String(),
		account.Provider.String(),
		account.ProviderUserID,
		snapshotJSON,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return oops.Code("SOCIAL_ACCOUNT_CONFLICT").
				With("provider", account.Provider.String()).
				With("provider_user_id", account.ProviderUserID).
				Wrap(auth.ErrConflict)
		}
		return oops.Code("SOCIAL_ACCOUNT_CREATE_FAILED").
			With("operation", "insert social account").
			With("provider", account.Provider.String()).
			Wrap(err)
	}
	return nil
}

// GetByProviderID retrieves the account for an external identity.
func (r *SocialAccountRepository) GetByProviderID(ctx context.Context, provider auth.Provider, providerUserID string) (*auth.SocialAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, provider, provider_user_id, profile_snapshot,
		       created_at, updated_at
		FROM social_accounts
		WHERE provider = $1 AND provider_user_id = $2
	`, provider.String(), providerUserID)

	account, err := r.scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SOCIAL_ACCOUNT_NOT_FOUND").
			With("provider", provider.String()).
			With("provider_user_id", providerUserID).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SOCIAL_ACCOUNT_GET_FAILED").
			With("operation", "get social account by provider id").
			With("provider", provider.String()).
			Wrap(err)
	}
	return account, nil
}

// ListByUser retrieves all social accounts linked to a user, ordered by
// provider name.
func (r *SocialAccountRepository) ListByUser(ctx context.Context, userID ulid.ULID) ([]*auth.SocialAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, provider, provider_user_id, profile_snapshot,
		       created_at, updated_at
		FROM social_accounts
		WHERE user_id = $1
		ORDER BY provider
	`, userID.String())
	if err != nil {
		return nil, oops.Code("SOCIAL_ACCOUNT_LIST_FAILED").
			With("operation", "list social accounts").
			With("user_id", userID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var accounts []*auth.SocialAccount
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, oops.Code("SOCIAL_ACCOUNT_LIST_FAILED").
				With("operation", "scan social account row").
				Wrap(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("SOCIAL_ACCOUNT_LIST_FAILED").
			With("operation", "iterate social accounts").
			Wrap(err)
	}

	return accounts, nil
}

// UpdateSnapshot refreshes the stored profile snapshot.
func (r *SocialAccountRepository) UpdateSnapshot(ctx context.Context, id ulid.ULID, snapshot map[string]any) error {
	snapshotJSON, err := marshalSnapshot(snapshot)
	if err != nil {
		return oops.Code("SOCIAL_ACCOUNT_SNAPSHOT_FAILED").
			With("operation", "marshal profile snapshot").
			Wrap(err)
	}

	result, err := r.db.Exec(ctx, `
		UPDATE social_accounts SET profile_snapshot = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), snapshotJSON, time.Now())
	if err != nil {
		return oops.Code("SOCIAL_ACCOUNT_SNAPSHOT_FAILED").
			With("operation", "update profile snapshot").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SOCIAL_ACCOUNT_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// marshalSnapshot encodes a profile snapshot, normalizing nil to an empty
// JSON object.
func marshalSnapshot(snapshot map[string]any) ([]byte, error) {
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	return json.Marshal(snapshot)
}

// scanAccount scans a single row into a SocialAccount.
// Callers are responsible for handling pgx.ErrNoRows.
func (r *SocialAccountRepository) scanAccount(row pgx.Row) (*auth.SocialAccount, error) {
	var (
		idStr          string
		userIDStr      string
		provider       string
		providerUserID string
		snapshotJSON   []byte
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&idStr,
		&userIDStr,
		&provider,
		&providerUserID,
		&snapshotJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SOCIAL_ACCOUNT_SCAN_FAILED").
			With("operation", "scan social account").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SOCIAL_ACCOUNT_INVALID_ID").
			With("operation", "parse social account id").
			With("id", idStr).
			Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SOCIAL_ACCOUNT_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	var snapshot map[string]any
	if len(snapshotJSON) > 0 {
		if err := json.Unmarshal(snapshotJSON, &snapshot); err != nil {
			return nil, oops.Code("SOCIAL_ACCOUNT_INVALID_SNAPSHOT").
				With("operation", "unmarshal profile snapshot").
				Wrap(err)
		}
	}

	return &auth.SocialAccount{
		ID:              id,
		UserID:          userID,
		Provider:        auth.Provider(provider),
		ProviderUserID:  providerUserID,
		ProfileSnapshot: snapshot,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.SocialAccountRepository = (*SocialAccountRepository)(nil)
