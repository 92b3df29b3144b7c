// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Provider identifies an external OAuth2/OIDC identity provider.
type Provider string

// Supported providers. The set is closed: adapters are registered once at
// startup and looked up by name, never dispatched dynamically.
const (
	ProviderGoogle   Provider = "google"
	ProviderGitHub   Provider = "github"
	ProviderFacebook Provider = "facebook"
	ProviderLinkedIn Provider = "linkedin"
)

// Providers lists all supported providers in a stable order.
var Providers = []Provider{ProviderGoogle, ProviderGitHub, ProviderFacebook, ProviderLinkedIn}

// ParseProvider validates a provider name from an untrusted source.
func ParseProvider(name string) (Provider, error) {
	p := Provider(name)
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", oops.Code("PROVIDER_UNSUPPORTED").
		With("provider", name).
		Wrap(ErrUnsupportedProvider)
}

func (p Provider) String() string { return string(p) }

// SocialAccount links a local user to one external provider identity.
// At most one SocialAccount exists per (provider, provider user id) pair,
// and at most one per (user, provider) pair.
type SocialAccount struct {
	ID              ulid.ULID
	UserID          ulid.ULID
	Provider        Provider
	ProviderUserID  string
	ProfileSnapshot map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewSocialAccount creates a SocialAccount linking a provider identity to a
// local user.
func NewSocialAccount(userID ulid.ULID, provider Provider, providerUserID string, snapshot map[string]any) (*SocialAccount, error) {
	if providerUserID == "" {
		return nil, oops.Code("AUTH_VALIDATION_FAILED").
			With("field", "provider_user_id").
			Wrap(ErrValidation)
	}
	if _, err := ParseProvider(string(provider)); err != nil {
		return nil, err
	}
	now := time.Now()
	return &SocialAccount{
		ID:              ulid.Make(),
		UserID:          userID,
		Provider:        provider,
		ProviderUserID:  providerUserID,
		ProfileSnapshot: snapshot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// SocialAccountRepository manages social account persistence.
type SocialAccountRepository interface {
	// Create stores a new social account. Returns ErrConflict if the
	// (provider, provider user id) pair is already linked.
	Create(ctx context.Context, account *SocialAccount) error

	// GetByProviderID retrieves the account for an external identity.
	GetByProviderID(ctx context.Context, provider Provider, providerUserID string) (*SocialAccount, error)

	// ListByUser retrieves all social accounts linked to a user, ordered
	// by provider name.
	ListByUser(ctx context.Context, userID ulid.ULID) ([]*SocialAccount, error)

	// UpdateSnapshot refreshes the stored profile snapshot.
	UpdateSnapshot(ctx context.Context, id ulid.ULID, snapshot map[string]any) error
}

// ProviderToken carries provider credentials into a profile fetch. Social
// login accepts either a bearer access token or, for Google, a signed ID
// token; a code exchange produces one or both.
type ProviderToken struct {
	AccessToken string
	IDToken     string
}

// ProviderProfile is the normalized profile a provider adapter returns.
// Raw holds the provider's response as delivered, persisted as the social
// account's profile snapshot.
type ProviderProfile struct {
	Email     string
	Name      string
	AvatarURL string
	Raw       map[string]any
}

// ProviderAdapter normalizes one provider's code-exchange and profile-fetch
// calls. Implementations are pure network clients with no store access.
type ProviderAdapter interface {
	// Provider returns the provider this adapter serves.
	Provider() Provider

	// ExchangeCode trades an authorization code for provider tokens.
	// codeVerifier is forwarded when non-empty (PKCE). Returns
	// ErrProviderExchange on upstream rejection and ErrProviderTimeout on
	// deadline expiry.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*ProviderToken, error)

	// FetchUser resolves the provider token to a stable provider user ID
	// and a normalized profile. Returns ErrProviderFetch on upstream
	// failure and ErrProviderTimeout on deadline expiry.
	FetchUser(ctx context.Context, tok *ProviderToken) (string, ProviderProfile, error)
}

// ProviderRegistry is the closed provider name to adapter mapping, built
// once at startup.
type ProviderRegistry map[Provider]ProviderAdapter

// Adapter returns the adapter for a provider, or ErrUnsupportedProvider if
// the provider is not registered.
func (r ProviderRegistry) Adapter(p Provider) (ProviderAdapter, error) {
	adapter, ok := r[p]
	if !ok {
		return nil, oops.Code("PROVIDER_UNSUPPORTED").
			With("provider", p.String()).
			Wrap(ErrUnsupportedProvider)
	}
	return adapter, nil
}
