// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/auth/postgres"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *postgres.Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock, postgres.NewStore(mock)
}

func TestStore_Repositories(t *testing.T) {
	_, s := newMockStore(t)

	assert.NotNil(t, s.Users())
	assert.NotNil(t, s.SocialAccounts())
	assert.NotNil(t, s.VerificationTokens())
	assert.NotNil(t, s.RevokedTokens())
}

func TestStore_InTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO revoked_tokens`).
			WithArgs("jti-1", "user-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := s.InTx(ctx, func(tx auth.Store) error {
			return tx.RevokedTokens().Revoke(ctx, &auth.RevokedToken{
				JTI:       "jti-1",
				UserID:    "user-1",
				ExpiresAt: time.Now().Add(time.Hour),
				RevokedAt: time.Now(),
			})
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("rolls back on error", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		wantErr := errors.New("boom")
		err := s.InTx(ctx, func(auth.Store) error {
			return wantErr
		})
		require.ErrorIs(t, err, wantErr)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("returns begin failure", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectBegin().WillReturnError(errors.New("begin failed"))

		err := s.InTx(ctx, func(auth.Store) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "begin failed")
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("returns commit failure", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("commit failed"))

		err := s.InTx(ctx, func(auth.Store) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commit failed")
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("rolls back and rethrows panic", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectRollback()

		assert.Panics(t, func() {
			_ = s.InTx(ctx, func(auth.Store) error {
				panic("kaboom")
			})
		})
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
}

func TestUserRepository_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("unique violation maps to ErrConflict", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

		hash := "h"
		err := s.Users().Create(ctx, &auth.User{
			ID:           ulid.Make(),
			Username:     "taken",
			Email:        "taken@example.com",
			PasswordHash: &hash,
		})
		assert.ErrorIs(t, err, auth.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("other database errors are not conflicts", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectExec(`INSERT INTO users`).
			WillReturnError(errors.New("connection refused"))

		err := s.Users().Create(ctx, &auth.User{
			ID:       ulid.Make(),
			Username: "someone",
			Email:    "someone@example.com",
		})
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrConflict)
		assert.Contains(t, err.Error(), "connection refused")
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("missing row maps to ErrNotFound", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectQuery(`SELECT id, username, email, password_hash, email_verified`).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		user, err := s.Users().GetByUsername(ctx, "ghost")
		assert.Nil(t, user)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("corrupt stored ID fails scan", func(t *testing.T) {
		mock, s := newMockStore(t)

		now := time.Now()
		rows := pgxmock.NewRows([]string{
			"id", "username", "email", "password_hash", "email_verified",
			"created_at", "updated_at",
		}).AddRow("not-a-ulid", "someone", "someone@example.com", nil, false, now, now)
		mock.ExpectQuery(`SELECT id, username, email, password_hash, email_verified`).
			WithArgs("someone").
			WillReturnRows(rows)

		user, err := s.Users().GetByUsername(ctx, "someone")
		assert.Nil(t, user)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
}

func TestSocialAccountRepository_Scan(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes profile snapshot", func(t *testing.T) {
		mock, s := newMockStore(t)

		id := ulid.Make()
		userID := ulid.Make()
		now := time.Now()
		rows := pgxmock.NewRows([]string{
			"id", "user_id", "provider", "provider_user_id", "profile_snapshot",
			"created_at", "updated_at",
		}).AddRow(id.String(), userID.String(), "google", "uid-1",
			[]byte(`{"email":"a@example.com","name":"A"}`), now, now)
		mock.ExpectQuery(`SELECT id, user_id, provider, provider_user_id`).
			WithArgs("google", "uid-1").
			WillReturnRows(rows)

		account, err := s.SocialAccounts().GetByProviderID(ctx, auth.ProviderGoogle, "uid-1")
		require.NoError(t, err)
		assert.Equal(t, id, account.ID)
		assert.Equal(t, userID, account.UserID)
		assert.Equal(t, "a@example.com", account.ProfileSnapshot["email"])
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("rejects malformed snapshot", func(t *testing.T) {
		mock, s := newMockStore(t)

		now := time.Now()
		rows := pgxmock.NewRows([]string{
			"id", "user_id", "provider", "provider_user_id", "profile_snapshot",
			"created_at", "updated_at",
		}).AddRow(ulid.Make().String(), ulid.Make().String(), "google", "uid-2",
			[]byte(`{not json`), now, now)
		mock.ExpectQuery(`SELECT id, user_id, provider, provider_user_id`).
			WithArgs("google", "uid-2").
			WillReturnRows(rows)

		account, err := s.SocialAccounts().GetByProviderID(ctx, auth.ProviderGoogle, "uid-2")
		assert.Nil(t, account)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
}

func TestVerificationTokenRepository_ConsumeMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("used or missing token maps to ErrNotFound", func(t *testing.T) {
		mock, s := newMockStore(t)

		mock.ExpectQuery(`UPDATE email_verification_tokens SET is_used = TRUE`).
			WithArgs("stale-hash").
			WillReturnError(pgx.ErrNoRows)

		token, err := s.VerificationTokens().Consume(ctx, "stale-hash")
		assert.Nil(t, token)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("returns consumed token", func(t *testing.T) {
		mock, s := newMockStore(t)

		id := ulid.Make()
		userID := ulid.Make()
		rows := pgxmock.NewRows([]string{"id", "user_id", "token_hash", "is_used", "created_at"}).
			AddRow(id.String(), userID.String(), "fresh-hash", true, time.Now())
		mock.ExpectQuery(`UPDATE email_verification_tokens SET is_used = TRUE`).
			WithArgs("fresh-hash").
			WillReturnRows(rows)

		token, err := s.VerificationTokens().Consume(ctx, "fresh-hash")
		require.NoError(t, err)
		assert.Equal(t, id, token.ID)
		assert.Equal(t, userID, token.UserID)
		assert.True(t, token.IsUsed)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
}

func TestRevokedTokenRepository_IsRevokedQuery(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		revoked bool
	}{
		{name: "revoked jti", revoked: true},
		{name: "unknown jti", revoked: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, s := newMockStore(t)

			rows := pgxmock.NewRows([]string{"exists"}).AddRow(tt.revoked)
			mock.ExpectQuery(`SELECT EXISTS`).
				WithArgs("some-jti").
				WillReturnRows(rows)

			revoked, err := s.RevokedTokens().IsRevoked(ctx, "some-jti")
			require.NoError(t, err)
			assert.Equal(t, tt.revoked, revoked)
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}
