// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultProviderTimeout bounds each provider network call.
const DefaultProviderTimeout = 10 * time.Second

// resolveRetries caps retries after losing a uniqueness race; the re-lookup
// lands on the fast path, so one retry normally suffices.
const resolveRetries = 3

// dummyPasswordHash is used when a user doesn't exist or has no password so
// verification work is done either way and response timing stays constant.
// This is NOT a real credential - it's a fake hash that will never match any
// password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// EmailSender delivers transactional email. Failures are logged and never
// fail the surrounding flow.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ServiceDeps are the collaborators a Service requires.
type ServiceDeps struct {
	Store     Store
	Hasher    PasswordHasher
	Issuer    SessionIssuer
	Providers ProviderRegistry
	Mail      EmailSender
	Logger    *slog.Logger
}

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	// VerificationBaseURL prefixes the verify link in registration email,
	// e.g. "https://app.example.com".
	VerificationBaseURL string

	// ProviderTimeout bounds each provider network call. Zero means
	// DefaultProviderTimeout.
	ProviderTimeout time.Duration
}

// Service orchestrates the auth flows: register, verify-email, login,
// social auth, refresh, logout, me.
type Service struct {
	store     Store
	hasher    PasswordHasher
	issuer    SessionIssuer
	providers ProviderRegistry
	resolver  *IdentityResolver
	tokens    *VerificationTokenStore
	mail      EmailSender

	verificationBaseURL string
	providerTimeout     time.Duration
	logger              *slog.Logger
	tracer              trace.Tracer
}

// NewService creates a Service, validating required dependencies.
func NewService(deps ServiceDeps, cfg ServiceConfig) (*Service, error) {
	if deps.Store == nil {
		return nil, oops.Code("SERVICE_DEPS_INVALID").Errorf("store is required")
	}
	if deps.Hasher == nil {
		return nil, oops.Code("SERVICE_DEPS_INVALID").Errorf("hasher is required")
	}
	if deps.Issuer == nil {
		return nil, oops.Code("SERVICE_DEPS_INVALID").Errorf("issuer is required")
	}
	if deps.Mail == nil {
		return nil, oops.Code("SERVICE_DEPS_INVALID").Errorf("mail sender is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	timeout := cfg.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	return &Service{
		store:               deps.Store,
		hasher:              deps.Hasher,
		issuer:              deps.Issuer,
		providers:           deps.Providers,
		resolver:            NewIdentityResolver(deps.Store),
		tokens:              NewVerificationTokenStore(deps.Store),
		mail:                deps.Mail,
		verificationBaseURL: cfg.VerificationBaseURL,
		providerTimeout:     timeout,
		logger:              deps.Logger,
		tracer:              otel.Tracer("idlink/auth"),
	}, nil
}

// Register creates an unverified local account and its verification token.
// Returns the user and the plaintext token. The verification email is sent
// best-effort after the transaction commits.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, string, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, "", err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, "", err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, "", err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	var (
		user  *User
		token string
	)
	err = s.store.InTx(ctx, func(tx Store) error {
		if _, err := tx.Users().GetByUsername(ctx, username); err == nil {
			return oops.Code("AUTH_VALIDATION_FAILED").
				With("field", "username").
				Wrapf(ErrValidation, "username already taken")
		} else if !errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "check username").
				Wrap(err)
		}
		if _, err := tx.Users().GetByEmail(ctx, email); err == nil {
			return oops.Code("AUTH_VALIDATION_FAILED").
				With("field", "email").
				Wrapf(ErrValidation, "email already registered")
		} else if !errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "check email").
				Wrap(err)
		}

		created, err := NewUser(username, email, false)
		if err != nil {
			return err
		}
		created.PasswordHash = &hash
		if err := tx.Users().Create(ctx, created); err != nil {
			if errors.Is(err, ErrConflict) {
				// Lost the race after the pre-checks; surface as the same
				// validation failure a non-concurrent duplicate gets.
				return oops.Code("AUTH_VALIDATION_FAILED").
					Wrapf(ErrValidation, "username or email already taken")
			}
			return oops.Code("AUTH_REGISTER_FAILED").
				With("operation", "create user").
				Wrap(err)
		}

		verification, err := NewVerificationTokenStore(tx).Create(ctx, created.ID)
		if err != nil {
			return err
		}

		user, token = created, verification
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	s.sendVerificationEmail(ctx, user, token)

	return user, token, nil
}

// sendVerificationEmail delivers the verification email. Failures are
// logged, never returned: registration already committed.
func (s *Service) sendVerificationEmail(ctx context.Context, user *User, token string) {
	verifyURL := fmt.Sprintf("%s/auth/verify-email?token=%s", s.verificationBaseURL, token)
	body := fmt.Sprintf("Click to verify: %s\nToken: %s", verifyURL, token)
	if err := s.mail.Send(ctx, user.Email, "Verify your email", body); err != nil {
		s.logger.WarnContext(ctx, "verification email delivery failed",
			"user_id", user.ID.String(),
			"error", err)
	}
}

// VerifyEmail consumes a verification token, marking the owning user's
// email verified. A missing or already-used token fails with
// ErrInvalidToken.
func (s *Service) VerifyEmail(ctx context.Context, token string) (ulid.ULID, error) {
	return s.tokens.Consume(ctx, token)
}

// Login authenticates an email/password pair and issues a session.
// Uses constant-time operations so a wrong password and an unknown email
// are indistinguishable in both timing and result.
func (s *Service) Login(ctx context.Context, email, password string) (*User, TokenPair, error) {
	user, lookupErr := s.store.Users().GetByEmail(ctx, email)

	// Determine which hash to verify against (real or dummy for timing
	// attack prevention).
	targetHash := dummyPasswordHash
	userUsable := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, TokenPair{}, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else if user.HasPassword() {
		targetHash = *user.PasswordHash
		userUsable = true
	}

	// Always verify (constant-time) before branching on existence.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userUsable {
			return nil, TokenPair{}, invalidCredentials()
		}
		return nil, TokenPair{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}
	if !userUsable || !valid {
		return nil, TokenPair{}, invalidCredentials()
	}

	// Upgrade legacy hashes opportunistically; login succeeds regardless.
	if s.hasher.NeedsUpgrade(*user.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			user.PasswordHash = &newHash
			_ = s.store.Users().Update(ctx, user) //nolint:errcheck // Best effort
		}
	}

	pair, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, TokenPair{}, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session").
			Wrap(err)
	}

	return user, pair, nil
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").
		Wrapf(ErrInvalidCredentials, "invalid credentials")
}

// SocialAuthInput carries the client-supplied provider proof: a code to
// exchange, or a ready access/ID token.
type SocialAuthInput struct {
	AccessToken  string
	IDToken      string
	Code         string
	CodeVerifier string
}

// SocialAuth authenticates against an external provider and issues a
// session for the resolved local user. The third return reports whether a
// user was created.
func (s *Service) SocialAuth(ctx context.Context, providerName string, input SocialAuthInput) (*User, TokenPair, bool, error) {
	prov, err := ParseProvider(providerName)
	if err != nil {
		return nil, TokenPair{}, false, err
	}
	adapter, err := s.providers.Adapter(prov)
	if err != nil {
		return nil, TokenPair{}, false, err
	}

	tok := &ProviderToken{AccessToken: input.AccessToken, IDToken: input.IDToken}
	if tok.AccessToken == "" && tok.IDToken == "" && input.Code == "" {
		return nil, TokenPair{}, false, oops.Code("AUTH_VALIDATION_FAILED").
			Wrapf(ErrValidation, "one of code, access_token, or id_token is required")
	}

	if input.Code != "" && tok.AccessToken == "" && tok.IDToken == "" {
		exchanged, err := withProviderTimeout(ctx, s.providerTimeout, func(pctx context.Context) (*ProviderToken, error) {
			pctx, span := s.tracer.Start(pctx, "ProviderAdapter.ExchangeCode",
				trace.WithAttributes(attribute.String("provider", prov.String())))
			defer span.End()
			exchanged, err := adapter.ExchangeCode(pctx, input.Code, input.CodeVerifier)
			if err != nil {
				span.RecordError(err)
			}
			return exchanged, err
		})
		if err != nil {
			return nil, TokenPair{}, false, err
		}
		tok = exchanged
	}

	type fetched struct {
		id      string
		profile ProviderProfile
	}
	result, err := withProviderTimeout(ctx, s.providerTimeout, func(pctx context.Context) (fetched, error) {
		pctx, span := s.tracer.Start(pctx, "ProviderAdapter.FetchUser",
			trace.WithAttributes(attribute.String("provider", prov.String())))
		defer span.End()
		id, profile, err := adapter.FetchUser(pctx, tok)
		if err != nil {
			span.RecordError(err)
		}
		return fetched{id: id, profile: profile}, err
	})
	if err != nil {
		return nil, TokenPair{}, false, err
	}

	var (
		user  *User
		isNew bool
	)
	backoff := retry.WithMaxRetries(resolveRetries, retry.NewConstant(25*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resolved, created, err := s.resolver.Resolve(ctx, prov, result.id, result.profile)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		user, isNew = resolved, created
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, TokenPair{}, false, oops.Code("AUTH_CONFLICT").
				With("provider", prov.String()).
				Wrap(err)
		}
		return nil, TokenPair{}, false, err
	}

	pair, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, TokenPair{}, false, oops.Code("AUTH_SOCIAL_FAILED").
			With("operation", "issue session").
			Wrap(err)
	}

	return user, pair, isNew, nil
}

// withProviderTimeout runs a provider call under a bounded deadline.
func withProviderTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(pctx)
}

// RefreshSession validates a refresh token, checks the denylist, and mints
// a fresh access token for the same user.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	revoked, err := s.store.RevokedTokens().IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", oops.Code("AUTH_REFRESH_FAILED").
			With("operation", "check denylist").
			Wrap(err)
	}
	if revoked {
		return "", oops.Code("AUTH_INVALID_TOKEN").
			With("reason", "revoked").
			Wrap(ErrInvalidToken)
	}

	access, err := s.issuer.RefreshAccess(claims)
	if err != nil {
		return "", err
	}
	return access, nil
}

// Logout revokes the presented refresh token's jti. It is idempotent and
// never fails the request: an absent, malformed, or already-revoked token
// still logs the client out (the handler clears the cookie either way).
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil || claims.ID == "" {
		return
	}

	revocation := &RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
		RevokedAt: time.Now(),
	}
	if err := s.store.RevokedTokens().Revoke(ctx, revocation); err != nil {
		s.logger.WarnContext(ctx, "refresh token revocation failed",
			"jti", claims.ID,
			"error", err)
	}
}

// Me loads a user and the provider names of their linked social accounts.
func (s *Service) Me(ctx context.Context, userID ulid.ULID) (*User, []Provider, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code("AUTH_INVALID_CREDENTIALS").
				Wrap(ErrInvalidCredentials)
		}
		return nil, nil, oops.Code("AUTH_ME_FAILED").
			With("operation", "get user").
			Wrap(err)
	}

	accounts, err := s.store.SocialAccounts().ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, oops.Code("AUTH_ME_FAILED").
			With("operation", "list social accounts").
			Wrap(err)
	}

	providers := make([]Provider, 0, len(accounts))
	for _, account := range accounts {
		providers = append(providers, account.Provider)
	}

	return user, providers, nil
}
