// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package provider

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/idlink/idlink/internal/auth"
)

const (
	defaultGoogleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	defaultGoogleCertsURL    = "https://www.googleapis.com/oauth2/v3/certs"

	// googleCertsTTL bounds how long a fetched signing-key set is trusted.
	// Google rotates keys on the order of days; an unknown kid forces a
	// refresh regardless.
	googleCertsTTL = time.Hour
)

// Google authenticates Google identities. A presented OIDC ID token is
// verified locally against Google's published signing keys; otherwise the
// profile comes from the userinfo endpoint.
type Google struct {
	cfg    Config
	oauth  *oauth2.Config
	client *http.Client
	certs  *certCache
}

var _ auth.ProviderAdapter = (*Google)(nil)

// NewGoogle creates a Google adapter.
func NewGoogle(cfg Config) *Google {
	client := cfg.httpClient()

	endpoint := oauth2.Endpoint{
		TokenURL:  endpoints.Google.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	certsURL := cfg.CertsURL
	if certsURL == "" {
		certsURL = defaultGoogleCertsURL
	}

	return &Google{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
		},
		client: client,
		certs:  newCertCache(certsURL, client, googleCertsTTL),
	}
}

// Provider returns auth.ProviderGoogle.
func (g *Google) Provider() auth.Provider { return auth.ProviderGoogle }

// ExchangeCode trades the authorization code for Google tokens, forwarding
// codeVerifier (PKCE) when non-empty. The response carries an ID token
// alongside the access token when the openid scope was granted.
func (g *Google) ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.ProviderToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}
	tok, err := g.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, exchangeErr(auth.ProviderGoogle, err)
	}

	out := &auth.ProviderToken{AccessToken: tok.AccessToken}
	if id, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = id
	}
	return out, nil
}

// FetchUser resolves the token to Google's stable subject and profile. An
// ID token is preferred: it is verified locally with no extra network call.
func (g *Google) FetchUser(ctx context.Context, tok *auth.ProviderToken) (string, auth.ProviderProfile, error) {
	switch {
	case tok == nil:
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGoogle, errors.New("access token or ID token required"))
	case tok.IDToken != "":
		return g.fetchFromIDToken(ctx, tok.IDToken)
	case tok.AccessToken != "":
		return g.fetchFromUserInfo(ctx, tok.AccessToken)
	default:
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGoogle, errors.New("access token or ID token required"))
	}
}

func (g *Google) fetchFromUserInfo(ctx context.Context, accessToken string) (string, auth.ProviderProfile, error) {
	userInfoURL := g.cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultGoogleUserInfoURL
	}

	var info struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, g.client, userInfoURL, accessToken, "", &info); err != nil {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGoogle, err)
	}
	if info.Sub == "" {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGoogle, errors.New("userinfo response missing sub"))
	}
	return info.Sub, googleProfile(info.Email, info.Name, info.Picture), nil
}

// fetchFromIDToken verifies the ID token's signature, audience, and expiry
// and reads the profile straight from its claims. The issuer may be either
// of Google's two published forms.
func (g *Google) fetchFromIDToken(ctx context.Context, idToken string) (string, auth.ProviderProfile, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(g.cfg.ClientID),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(idToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return g.certs.key(ctx, kid)
	})
	if err != nil {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGoogle, err)
	}

	iss, _ := claims["iss"].(string)
	if iss != "https://accounts.google.com" && iss != "accounts.google.com" {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGoogle, fmt.Errorf("unexpected issuer %q", iss))
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGoogle, errors.New("ID token missing sub"))
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	return sub, googleProfile(email, name, picture), nil
}

func googleProfile(email, name, picture string) auth.ProviderProfile {
	return auth.ProviderProfile{
		Email:     email,
		Name:      name,
		AvatarURL: picture,
		Raw: map[string]any{
			"email":   email,
			"name":    name,
			"picture": picture,
		},
	}
}

// certCache holds Google's RSA signing keys, keyed by kid, refreshed at
// most once per TTL unless an unknown kid forces it.
type certCache struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu      sync.Mutex
	keys    map[string]*rsa.PublicKey
	fetched time.Time
}

func newCertCache(url string, client *http.Client, ttl time.Duration) *certCache {
	return &certCache{url: url, client: client, ttl: ttl}
}

func (c *certCache) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, ok := c.keys[kid]; ok && time.Since(c.fetched) < c.ttl {
		return key, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	key, ok := c.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no signing key for kid %q", kid)
	}
	return key, nil
}

func (c *certCache) refreshLocked(ctx context.Context) error {
	var doc struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := getJSON(ctx, c.client, c.url, "", "", &doc); err != nil {
		return err
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAKey(k.N, k.E)
		if err != nil {
			return fmt.Errorf("parse signing key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("signing key document has no RSA keys")
	}

	c.keys = keys
	c.fetched = time.Now()
	return nil
}

func parseRSAKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(new(big.Int).SetBytes(eb).Int64()),
	}, nil
}
