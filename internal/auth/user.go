// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Username validation constraints for registration.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 8

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// User represents a local account. PasswordHash is nil for accounts created
// through social login that never set a password.
type User struct {
	ID            ulid.ULID
	Username      string
	Email         string
	PasswordHash  *string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewUser creates a User with a fresh ID. Username and email must be
// non-empty; the email is lowercased. Shape validation (ValidateUsername,
// ValidateEmail, ValidatePassword) is the registration path's concern:
// usernames derived from provider profiles follow the derivation rules
// instead.
func NewUser(username, email string, emailVerified bool) (*User, error) {
	if username == "" {
		return nil, oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "username").
			Wrap(ErrValidation)
	}
	if email == "" {
		return nil, oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "email").
			Wrap(ErrValidation)
	}
	now := time.Now()
	return &User{
		ID:            ulid.Make(),
		Username:      username,
		Email:         NormalizeEmail(email),
		EmailVerified: emailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// HasPassword reports whether the user can authenticate with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// NormalizeEmail lowercases and trims an email address for storage and
// lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername validates a registration username.
// Requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "username").
			Wrapf(ErrValidation, "username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "username").
			With("min", MinUsernameLength).
			Wrapf(ErrValidation, "username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "username").
			With("max", MaxUsernameLength).
			Wrapf(ErrValidation, "username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "username").
			Wrapf(ErrValidation, "username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmail validates a registration email address.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "email").
			Wrapf(ErrValidation, "email cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "email").
			Wrapf(ErrValidation, "invalid email address")
	}
	return nil
}

// ValidatePassword validates a registration password.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "password").
			With("min", MinPasswordLength).
			Wrapf(ErrValidation, "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrConflict if the username or
	// email is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by username (case-sensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates an existing user.
	Update(ctx context.Context, user *User) error

	// SetEmailVerified marks the user's email as verified.
	SetEmailVerified(ctx context.Context, id ulid.ULID) error
}
