// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

// Package provider implements the external identity provider adapters.
//
// Each adapter normalizes one provider's OAuth2/OIDC code-exchange and
// profile-fetch calls into the auth.ProviderAdapter contract: a stable
// provider user ID plus a profile whose Raw map becomes the stored
// snapshot. Adapters are pure network clients; identity resolution and
// persistence live in internal/auth.
//
// Endpoint URLs default to the providers' public ones and can be
// overridden per adapter, which is how the tests point them at local
// servers.
package provider
