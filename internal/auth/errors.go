// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import "errors"

// Sentinel errors for the auth domain. Services wrap these with oops codes
// and context; callers branch with errors.Is.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials is returned for failed logins and bad session
	// tokens. The message never reveals which part was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for absent, used, or malformed
	// verification tokens and for revoked refresh tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConflict is returned when a uniqueness constraint is violated.
	// Write paths that race on constraints retry on it.
	ErrConflict = errors.New("conflict")

	// ErrUnsupportedProvider is returned for provider names outside the
	// configured registry.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrProviderExchange is returned when a provider token endpoint
	// rejects a code exchange.
	ErrProviderExchange = errors.New("provider code exchange failed")

	// ErrProviderFetch is returned when fetching the user profile from a
	// provider fails.
	ErrProviderFetch = errors.New("provider profile fetch failed")

	// ErrProviderTimeout is returned when a provider call exceeds its
	// deadline.
	ErrProviderTimeout = errors.New("provider deadline exceeded")
)
