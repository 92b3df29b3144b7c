// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
)

// IdentityResolver maps a provider identity onto a local user: reuse the
// linked user, link by email, or create a fresh user, in that order.
type IdentityResolver struct {
	store Store
}

// NewIdentityResolver creates an IdentityResolver.
func NewIdentityResolver(store Store) *IdentityResolver {
	return &IdentityResolver{store: store}
}

// Resolve determines the local user for a provider identity. The second
// return reports whether a user was created.
//
// The existing-link lookup takes precedence over everything else, even a
// changed provider email. The link-by-email and create paths run inside one
// transaction; when a concurrent resolution wins on a uniqueness
// constraint, the resulting ErrConflict propagates so the caller can retry
// the whole resolution, which then lands on the fast path.
func (r *IdentityResolver) Resolve(ctx context.Context, provider Provider, providerUserID string, profile ProviderProfile) (*User, bool, error) {
	if providerUserID == "" {
		return nil, false, oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "provider_user_id").
			Wrap(ErrValidation)
	}

	account, err := r.store.SocialAccounts().GetByProviderID(ctx, provider, providerUserID)
	if err == nil {
		if len(profile.Raw) > 0 {
			// Snapshot refresh must not fail the login.
			_ = r.store.SocialAccounts().UpdateSnapshot(ctx, account.ID, profile.Raw) //nolint:errcheck // Best effort
		}
		user, err := r.store.Users().GetByID(ctx, account.UserID)
		if err != nil {
			return nil, false, oops.Code("IDENTITY_RESOLVE_FAILED").
				With("provider", provider.String()).
				With("operation", "load linked user").
				Wrap(err)
		}
		return user, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, oops.Code("IDENTITY_RESOLVE_FAILED").
			With("provider", provider.String()).
			With("operation", "lookup social account").
			Wrap(err)
	}

	var (
		user  *User
		isNew bool
	)
	err = r.store.InTx(ctx, func(tx Store) error {
		if profile.Email != "" {
			existing, err := tx.Users().GetByEmail(ctx, profile.Email)
			if err == nil {
				account, err := NewSocialAccount(existing.ID, provider, providerUserID, profile.Raw)
				if err != nil {
					return err
				}
				if err := tx.SocialAccounts().Create(ctx, account); err != nil {
					return err
				}
				user, isNew = existing, false
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return oops.Code("IDENTITY_RESOLVE_FAILED").
					With("operation", "lookup user by email").
					Wrap(err)
			}
		}

		username, err := r.availableUsername(ctx, tx, UsernameBase(provider, providerUserID, profile))
		if err != nil {
			return err
		}

		email := profile.Email
		if email == "" {
			email = fmt.Sprintf("%s_%s@example.com", provider, providerUserID)
		}

		created, err := NewUser(username, email, profile.Email != "")
		if err != nil {
			return err
		}
		if err := tx.Users().Create(ctx, created); err != nil {
			return err
		}

		account, err := NewSocialAccount(created.ID, provider, providerUserID, profile.Raw)
		if err != nil {
			return err
		}
		if err := tx.SocialAccounts().Create(ctx, account); err != nil {
			return err
		}

		user, isNew = created, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return user, isNew, nil
}

// availableUsername finds the first free username: base, base2, base3, ...
func (r *IdentityResolver) availableUsername(ctx context.Context, tx Store, base string) (string, error) {
	candidate := base
	for suffix := 2; ; suffix++ {
		_, err := tx.Users().GetByUsername(ctx, candidate)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return candidate, nil
			}
			return "", oops.Code("IDENTITY_RESOLVE_FAILED").
				With("operation", "check username").
				Wrap(err)
		}
		candidate = base + strconv.Itoa(suffix)
	}
}

// UsernameBase derives the username base for a provider identity: the
// profile name, else the email, else "{provider}_{providerUserID}", cut at
// the first '@', spaces stripped, lowercased. An empty result falls back to
// "user_" plus the first six characters of the provider user ID.
func UsernameBase(provider Provider, providerUserID string, profile ProviderProfile) string {
	source := profile.Name
	if source == "" {
		source = profile.Email
	}
	if source == "" {
		source = fmt.Sprintf("%s_%s", provider, providerUserID)
	}

	base, _, _ := strings.Cut(source, "@")
	base = strings.ToLower(strings.ReplaceAll(base, " ", ""))
	if base == "" {
		base = "user_" + truncate(providerUserID, 6)
	}
	return base
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
