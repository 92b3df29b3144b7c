// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package provider

import "github.com/idlink/idlink/internal/auth"

// RegistryConfig carries the OAuth client settings for every provider.
type RegistryConfig struct {
	Google   Config
	GitHub   Config
	Facebook Config
	LinkedIn Config
}

// NewRegistry builds the closed provider registry. All four providers are
// always registered: token-only flows need no client credentials, and a
// code exchange against an unconfigured provider fails upstream with the
// provider's own error.
func NewRegistry(cfg RegistryConfig) auth.ProviderRegistry {
	return auth.ProviderRegistry{
		auth.ProviderGoogle:   NewGoogle(cfg.Google),
		auth.ProviderGitHub:   NewGitHub(cfg.GitHub),
		auth.ProviderFacebook: NewFacebook(cfg.Facebook),
		auth.ProviderLinkedIn: NewLinkedIn(cfg.LinkedIn),
	}
}
