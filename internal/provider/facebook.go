// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/idlink/idlink/internal/auth"
)

const (
	defaultFacebookTokenURL = "https://graph.facebook.com/v17.0/oauth/access_token"
	defaultFacebookMeURL    = "https://graph.facebook.com/me"

	facebookProfileFields = "id,name,email"
)

// Facebook authenticates Facebook identities via the Graph API.
type Facebook struct {
	cfg    Config
	client *http.Client
}

var _ auth.ProviderAdapter = (*Facebook)(nil)

// NewFacebook creates a Facebook adapter.
func NewFacebook(cfg Config) *Facebook {
	return &Facebook{cfg: cfg, client: cfg.httpClient()}
}

// Provider returns auth.ProviderFacebook.
func (f *Facebook) Provider() auth.Provider { return auth.ProviderFacebook }

// ExchangeCode trades the authorization code for an access token. The
// Graph API token endpoint takes its parameters as a GET query string and
// no PKCE verifier.
func (f *Facebook) ExchangeCode(ctx context.Context, code, _ string) (*auth.ProviderToken, error) {
	tokenURL := f.cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultFacebookTokenURL
	}

	q := url.Values{
		"client_id":     {f.cfg.ClientID},
		"client_secret": {f.cfg.ClientSecret},
		"code":          {code},
		"redirect_uri":  {f.cfg.RedirectURL},
	}

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := getJSON(ctx, f.client, tokenURL+"?"+q.Encode(), "", "", &resp); err != nil {
		return nil, exchangeErr(auth.ProviderFacebook, err)
	}
	if resp.AccessToken == "" {
		return nil, exchangeErr(auth.ProviderFacebook, errors.New("token response missing access_token"))
	}
	return &auth.ProviderToken{AccessToken: resp.AccessToken}, nil
}

// FetchUser loads id, name, and email from the Graph me endpoint.
func (f *Facebook) FetchUser(ctx context.Context, tok *auth.ProviderToken) (string, auth.ProviderProfile, error) {
	if tok == nil || tok.AccessToken == "" {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderFacebook, errors.New("access token required"))
	}

	meURL := f.cfg.UserInfoURL
	if meURL == "" {
		meURL = defaultFacebookMeURL
	}
	q := url.Values{"fields": {facebookProfileFields}}

	var me struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, f.client, meURL+"?"+q.Encode(), tok.AccessToken, "", &me); err != nil {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderFacebook, err)
	}
	if me.ID == "" {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderFacebook, errors.New("profile response missing id"))
	}

	profile := auth.ProviderProfile{
		Email: me.Email,
		Name:  me.Name,
		Raw: map[string]any{
			"email": me.Email,
			"name":  me.Name,
		},
	}
	return me.ID, profile, nil
}
