// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// VerificationTokenBytes is the verification token size: 32 bytes = 64 hex
// chars.
const VerificationTokenBytes = 32

// EmailVerificationToken is a single-use token proving control of an email
// address. Only the SHA256 hash of the token is persisted; the plaintext is
// returned to the caller exactly once at creation.
type EmailVerificationToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	IsUsed    bool
	CreatedAt time.Time
}

// GenerateVerificationToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext token goes
// into the verification email; the hash is stored in the database.
func GenerateVerificationToken() (token, hash string, err error) {
	tokenBytes := make([]byte, VerificationTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code("VERIFY_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashVerificationToken(token)

	return token, hash, nil
}

// HashVerificationToken computes the SHA256 hash of a token for storage and
// lookup.
func HashVerificationToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyVerificationToken checks if the plaintext token matches the stored
// hash. Uses constant-time comparison to prevent timing attacks.
func VerifyVerificationToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashVerificationToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// VerificationTokenRepository manages verification token persistence.
type VerificationTokenRepository interface {
	// Create stores a new verification token.
	Create(ctx context.Context, token *EmailVerificationToken) error

	// GetByTokenHash retrieves a token by its hash regardless of use
	// state.
	GetByTokenHash(ctx context.Context, tokenHash string) (*EmailVerificationToken, error)

	// Consume atomically marks the unused token with the given hash as
	// used and returns it. Returns ErrNotFound if no unused token has the
	// hash; under concurrent consumption exactly one caller succeeds.
	Consume(ctx context.Context, tokenHash string) (*EmailVerificationToken, error)
}

// VerificationTokenStore issues and consumes single-use email verification
// tokens.
type VerificationTokenStore struct {
	store Store
}

// NewVerificationTokenStore creates a VerificationTokenStore.
func NewVerificationTokenStore(store Store) *VerificationTokenStore {
	return &VerificationTokenStore{store: store}
}

// Create generates a token for the user, persists its hash unused, and
// returns the plaintext token.
func (s *VerificationTokenStore) Create(ctx context.Context, userID ulid.ULID) (string, error) {
	token, hash, err := GenerateVerificationToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	record := &EmailVerificationToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: hash,
		CreatedAt: now,
	}
	if err := s.store.VerificationTokens().Create(ctx, record); err != nil {
		return "", oops.Code("VERIFY_TOKEN_CREATE_FAILED").
			With("user_id", userID.String()).
			Wrap(err)
	}

	return token, nil
}

// Consume marks the token used and flips the owning user's email to
// verified, atomically. A missing, malformed, or already-used token fails
// with ErrInvalidToken. Exactly one of N concurrent consumers of the same
// token succeeds.
func (s *VerificationTokenStore) Consume(ctx context.Context, token string) (ulid.ULID, error) {
	if token == "" {
		return ulid.ULID{}, oops.Code("AUTH_INVALID_TOKEN").
			Wrapf(ErrInvalidToken, "verification token cannot be empty")
	}

	tokenHash := HashVerificationToken(token)

	var userID ulid.ULID
	err := s.store.InTx(ctx, func(tx Store) error {
		record, err := tx.VerificationTokens().Consume(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return oops.Code("AUTH_INVALID_TOKEN").Wrap(ErrInvalidToken)
			}
			return oops.Code("VERIFY_TOKEN_CONSUME_FAILED").Wrap(err)
		}
		if err := tx.Users().SetEmailVerified(ctx, record.UserID); err != nil {
			return oops.Code("VERIFY_TOKEN_CONSUME_FAILED").
				With("user_id", record.UserID.String()).
				Wrap(err)
		}
		userID = record.UserID
		return nil
	})
	if err != nil {
		return ulid.ULID{}, err
	}

	return userID, nil
}
