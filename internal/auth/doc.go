// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

// Package auth provides the identity-linking and session-issuance core.
//
// # Domain Types
//
// Domain types (User, SocialAccount, EmailVerificationToken, RevokedToken)
// should be created using their respective constructors:
//   - NewUser - creates a User with validated username and email
//   - NewSocialAccount - creates a SocialAccount linking a provider identity
//   - GenerateVerificationToken - creates a single-use verification token
//     and the hash that gets persisted
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - register, login, social auth, refresh, logout
//   - IdentityResolver - maps provider identities to local users
//   - VerificationTokenStore - issues and consumes verification tokens
//   - JWTIssuer - mints and verifies access/refresh token pairs
//
// Services are created with New* constructors that validate dependencies.
package auth
