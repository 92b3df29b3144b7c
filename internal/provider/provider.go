// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/samber/oops"
	"golang.org/x/oauth2"

	"github.com/idlink/idlink/internal/auth"
)

// DefaultHTTPTimeout bounds each provider HTTP call when no custom client
// is configured. Callers usually apply a tighter per-request deadline on
// top of this.
const DefaultHTTPTimeout = 30 * time.Second

// Config carries one provider's OAuth client settings. The endpoint fields
// override the provider's public URLs; zero values use the real ones. They
// exist for tests and API version pinning, not for routine configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	TokenURL    string
	UserInfoURL string
	EmailsURL   string
	CertsURL    string

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// statusError is a non-2xx upstream response.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// getJSON performs a GET and decodes the JSON response body into out.
// bearer and accept set the Authorization and Accept headers when non-empty.
func getJSON(ctx context.Context, client *http.Client, rawURL, bearer, accept string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck // Body is diagnostic only
		return &statusError{status: resp.StatusCode, body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// providerErr maps an upstream failure to the domain sentinel for op,
// folding a deadline expiry into ErrProviderTimeout.
func providerErr(p auth.Provider, code string, sentinel error, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return oops.Code("PROVIDER_TIMEOUT").
			With("provider", p.String()).
			Wrapf(auth.ErrProviderTimeout, "%s timed out", op)
	}

	builder := oops.Code(code).With("provider", p.String())
	var serr *statusError
	if errors.As(err, &serr) {
		builder = builder.With("status", serr.status)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		builder = builder.With("status", rerr.Response.StatusCode)
	}
	return builder.Wrapf(sentinel, "%s failed: %v", op, err)
}

func exchangeErr(p auth.Provider, err error) error {
	return providerErr(p, "PROVIDER_EXCHANGE_FAILED", auth.ErrProviderExchange, "code exchange", err)
}

func fetchErr(p auth.Provider, err error) error {
	return providerErr(p, "PROVIDER_FETCH_FAILED", auth.ErrProviderFetch, "profile fetch", err)
}
