// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/idlink/idlink/internal/auth"
)

const (
	defaultLinkedInProfileURL = "https://api.linkedin.com/v2/me"
	defaultLinkedInEmailURL   = "https://api.linkedin.com/v2/emailAddress?q=members&projection=(elements*(handle~))"
)

// LinkedIn authenticates LinkedIn identities via the v2 REST API.
type LinkedIn struct {
	cfg    Config
	oauth  *oauth2.Config
	client *http.Client
}

var _ auth.ProviderAdapter = (*LinkedIn)(nil)

// NewLinkedIn creates a LinkedIn adapter.
func NewLinkedIn(cfg Config) *LinkedIn {
	endpoint := oauth2.Endpoint{
		TokenURL:  endpoints.LinkedIn.TokenURL,
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &LinkedIn{
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

// Provider returns auth.ProviderLinkedIn.
func (l *LinkedIn) Provider() auth.Provider { return auth.ProviderLinkedIn }

// ExchangeCode trades the authorization code for an access token,
// forwarding codeVerifier (PKCE) when non-empty.
func (l *LinkedIn) ExchangeCode(ctx context.Context, code, codeVerifier string) (*auth.ProviderToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, l.client)

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	}
	tok, err := l.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, exchangeErr(auth.ProviderLinkedIn, err)
	}
	return &auth.ProviderToken{AccessToken: tok.AccessToken}, nil
}

// FetchUser loads the localized name from the profile endpoint and the
// address from the separate email endpoint. A missing email degrades to
// none rather than failing the login.
func (l *LinkedIn) FetchUser(ctx context.Context, tok *auth.ProviderToken) (string, auth.ProviderProfile, error) {
	if tok == nil || tok.AccessToken == "" {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderLinkedIn, errors.New("access token required"))
	}

	profileURL := l.cfg.UserInfoURL
	if profileURL == "" {
		profileURL = defaultLinkedInProfileURL
	}

	var prof struct {
		ID                 string `json:"id"`
		LocalizedFirstName string `json:"localizedFirstName"`
		LocalizedLastName  string `json:"localizedLastName"`
	}
	if err := getJSON(ctx, l.client, profileURL, tok.AccessToken, "", &prof); err != nil {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderLinkedIn, err)
	}
	if prof.ID == "" {
		return "", auth.ProviderProfile{}, fetchErr(auth.ProviderLinkedIn, errors.New("profile response missing id"))
	}

	name := strings.TrimSpace(prof.LocalizedFirstName + " " + prof.LocalizedLastName)
	email := l.memberEmail(ctx, tok.AccessToken)

	profile := auth.ProviderProfile{
		Email: email,
		Name:  name,
		Raw: map[string]any{
			"email": email,
			"name":  name,
		},
	}
	return prof.ID, profile, nil
}

// memberEmail reads the member's address from the projected email
// endpoint. Failures degrade to no email.
func (l *LinkedIn) memberEmail(ctx context.Context, accessToken string) string {
	emailURL := l.cfg.EmailsURL
	if emailURL == "" {
		emailURL = defaultLinkedInEmailURL
	}

	var doc struct {
		Elements []struct {
			Handle struct {
				EmailAddress string `json:"emailAddress"`
			} `json:"handle~"`
		} `json:"elements"`
	}
	if err := getJSON(ctx, l.client, emailURL, accessToken, "", &doc); err != nil {
		return ""
	}
	if len(doc.Elements) == 0 {
		return ""
	}
	return doc.Elements[0].Handle.EmailAddress
}
