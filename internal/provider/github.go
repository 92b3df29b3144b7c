// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package provider

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/idlink/idlink/internal/auth"
)

const (
	defaultGitHubUserURL   = "https://api.github.com/user"
	defaultGitHubEmailsURL = "https://api.github.com/user/emails"

	githubAccept = "application/vnd.github+json"
)

// GitHub authenticates GitHub identities via the REST API.
type GitHub struct {
	cfg    Config
	oauth  *oauth2.Config
	client *http.Client
}

var _ auth.ProviderAdapter = (*GitHub)(nil)

// NewGitHub creates a GitHub adapter.
func NewGitHub(cfg Config) *GitHub {
	endpoint := oauth2.Endpoint{
		TokenURL:  endpoints.GitHub.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &GitHub{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
		},
		client: cfg.httpClient(),
	}
}

// Provider returns auth.ProviderGitHub.
func (g *GitHub) Provider() auth.Provider { return auth.ProviderGitHub }

// ExchangeCode trades the authorization code for an access token. GitHub's
// token endpoint takes no PKCE verifier; codeVerifier is ignored.
func (g *GitHub) ExchangeCode(ctx context.Context, code, _ string) (*auth.ProviderToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)

	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, exchangeErr(auth.ProviderGitHub, err)
	}
	return &auth.ProviderToken{AccessToken: tok.AccessToken}, nil
}

// FetchUser loads the profile from the user endpoint. When the profile
// email is hidden, the emails endpoint supplies the primary address, else
// the first listed, else none. The display name falls back to the login.
func (g *GitHub) FetchUser(ctx context.Context, tok *auth.ProviderToken) (string, auth.ProviderProfile, error) {
	if tok == nil || tok.AccessToken == "" {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGitHub, errors.New("access token required"))
	}

	userURL := g.cfg.UserInfoURL
	if userURL == "" {
		userURL = defaultGitHubUserURL
	}

	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, g.client, userURL, tok.AccessToken, githubAccept, &user); err != nil {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGitHub, err)
	}
	if user.ID == 0 {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderGitHub, errors.New("profile response missing id"))
	}

	email := user.Email
	if email == "" {
		email = g.primaryEmail(ctx, tok.AccessToken)
	}
	name := user.Name
	if name == "" {
		name = user.Login
	}

	profile := auth.ProviderProfile{
		Email:     email,
		Name:      name,
		AvatarURL: user.AvatarURL,
		Raw: map[string]any{
			"email":      email,
			"name":       name,
			"avatar_url": user.AvatarURL,
		},
	}
	return strconv.FormatInt(user.ID, 10), profile, nil
}

// primaryEmail resolves the visible address for users who keep their
// profile email private. Failures degrade to no email rather than failing
// the login.
func (g *GitHub) primaryEmail(ctx context.Context, accessToken string) string {
	emailsURL := g.cfg.EmailsURL
	if emailsURL == "" {
		emailsURL = defaultGitHubEmailsURL
	}

	var emails []struct {
		Email   string `json:"email"`
		Primary bool   `json:"primary"`
	}
	if err := getJSON(ctx, g.client, emailsURL, accessToken, "", &emails); err != nil {
		return ""
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}
