// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Token use claim values distinguishing the two token kinds.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// Default token lifetimes, overridable via configuration.
const (
	DefaultAccessTokenTTL  = 60 * time.Minute
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour
)

// TokenPair bundles a short-lived access token and a longer-lived refresh
// token.
type TokenPair struct {
	Access  string
	Refresh string
}

// SessionClaims are the JWT claims carried by both token kinds. Subject is
// the user ID; refresh tokens additionally carry a unique jti for
// revocation.
type SessionClaims struct {
	jwt.RegisteredClaims
	TokenUse string `json:"token_use"`
}

// SessionIssuer mints and verifies session credential pairs. Tokens are
// stateless: verification is signature and claims checking only, with
// revocation handled by the caller against the denylist.
type SessionIssuer interface {
	// Issue mints an access/refresh pair for a user.
	Issue(userID ulid.ULID) (TokenPair, error)

	// VerifyAccess validates an access token and returns the user ID.
	// Fails with ErrInvalidCredentials on any defect.
	VerifyAccess(token string) (ulid.ULID, error)

	// VerifyRefresh validates a refresh token and returns its claims.
	// Fails with ErrInvalidCredentials on any defect.
	VerifyRefresh(token string) (*SessionClaims, error)

	// RefreshAccess mints a fresh access token for verified refresh
	// claims.
	RefreshAccess(claims *SessionClaims) (string, error)
}

// JWTIssuer implements SessionIssuer with HMAC-SHA256 signed JWTs.
type JWTIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

var _ SessionIssuer = (*JWTIssuer)(nil)

// NewJWTIssuer creates a JWTIssuer. Non-positive TTLs fall back to the
// defaults.
func NewJWTIssuer(secret []byte, accessTTL, refreshTTL time.Duration) (*JWTIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("SESSION_SECRET_EMPTY").Errorf("signing secret cannot be empty")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &JWTIssuer{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// RefreshTTL returns the refresh token lifetime, which also bounds the
// refresh cookie's Max-Age.
func (i *JWTIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// Issue mints an access/refresh pair for a user. The refresh token carries
// a fresh ULID jti.
func (i *JWTIssuer) Issue(userID ulid.ULID) (TokenPair, error) {
	now := time.Now()

	access, err := i.sign(SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
		TokenUse: TokenUseAccess,
	})
	if err != nil {
		return TokenPair{}, oops.Code("SESSION_ISSUE_FAILED").
			With("token_use", TokenUseAccess).
			Wrap(err)
	}

	refresh, err := i.sign(SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        ulid.Make().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
		TokenUse: TokenUseRefresh,
	})
	if err != nil {
		return TokenPair{}, oops.Code("SESSION_ISSUE_FAILED").
			With("token_use", TokenUseRefresh).
			Wrap(err)
	}

	return TokenPair{Access: access, Refresh: refresh}, nil
}

// VerifyAccess validates an access token and returns the user ID.
func (i *JWTIssuer) VerifyAccess(token string) (ulid.ULID, error) {
	claims, err := i.verify(token, TokenUseAccess)
	if err != nil {
		return ulid.ULID{}, err
	}
	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("AUTH_INVALID_CREDENTIALS").
			Wrapf(ErrInvalidCredentials, "malformed subject claim")
	}
	return userID, nil
}

// VerifyRefresh validates a refresh token and returns its claims.
func (i *JWTIssuer) VerifyRefresh(token string) (*SessionClaims, error) {
	return i.verify(token, TokenUseRefresh)
}

// RefreshAccess mints a fresh access token bound to the refresh claims'
// subject.
func (i *JWTIssuer) RefreshAccess(claims *SessionClaims) (string, error) {
	if claims == nil || claims.Subject == "" {
		return "", oops.Code("AUTH_INVALID_CREDENTIALS").
			Wrapf(ErrInvalidCredentials, "missing refresh claims")
	}
	now := time.Now()
	access, err := i.sign(SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
		TokenUse: TokenUseAccess,
	})
	if err != nil {
		return "", oops.Code("SESSION_ISSUE_FAILED").
			With("token_use", TokenUseAccess).
			Wrap(err)
	}
	return access, nil
}

// VerifyAndRefresh validates a refresh token and mints a fresh access token
// for the same user in one step, for callers that do not consult the
// denylist.
func (i *JWTIssuer) VerifyAndRefresh(token string) (string, error) {
	claims, err := i.VerifyRefresh(token)
	if err != nil {
		return "", err
	}
	return i.RefreshAccess(claims)
}

func (i *JWTIssuer) sign(claims SessionClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// verify parses and validates a token, requiring the given token_use.
// All defects (bad signature, expiry, wrong type, malformed) collapse into
// ErrInvalidCredentials so responses cannot be used to probe token state.
func (i *JWTIssuer) verify(token, wantUse string) (*SessionClaims, error) {
	if token == "" {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			Wrapf(ErrInvalidCredentials, "missing token")
	}

	var claims SessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	if claims.TokenUse != wantUse {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			With("token_use", claims.TokenUse).
			Wrapf(ErrInvalidCredentials, "wrong token type")
	}
	if claims.Subject == "" {
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").
			Wrapf(ErrInvalidCredentials, "missing subject claim")
	}

	return &claims, nil
}

// mapJWTError normalizes golang-jwt parse errors into the credential
// taxonomy without leaking which check failed to clients.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", "expired").
			Wrap(ErrInvalidCredentials)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", "signature").
			Wrap(ErrInvalidCredentials)
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", "not_yet_valid").
			Wrap(ErrInvalidCredentials)
	default:
		return oops.Code("AUTH_INVALID_CREDENTIALS").
			With("reason", "malformed").
			Wrap(ErrInvalidCredentials)
	}
}
