// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

//go:build integration

package api_test

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/idlink/idlink/internal/auth"
)

var _ = Describe("Auth API", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx, env.pool)
	})

	It("registers, verifies, and logs in a user end to end", func() {
		resp, body := postJSON("/auth/register", map[string]string{
			"username": "walter",
			"email":    "walter@example.com",
			"password": "a strong password",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		Expect(body["message"]).To(Equal("Registered. Please verify email."))
		token, _ := body["verification_token"].(string)
		Expect(token).NotTo(BeEmpty())

		resp, body = getJSON("/auth/verify-email?token="+token, "")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["message"]).To(Equal("Email verified"))

		// The token is single use.
		resp, body = getJSON("/auth/verify-email?token="+token, "")
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(body["detail"]).To(Equal("Invalid token"))

		resp, body = postJSON("/auth/login", map[string]string{
			"email":    "walter@example.com",
			"password": "a strong password",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		access, _ := body["access"].(string)
		Expect(access).NotTo(BeEmpty())

		cookie := refreshCookie(resp)
		Expect(cookie.Value).To(Equal(body["refresh"]))
		Expect(cookie.Path).To(Equal("/auth"))
		Expect(cookie.HttpOnly).To(BeTrue())

		resp, body = getJSON("/auth/me", access)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["username"]).To(Equal("walter"))
		Expect(body["email_verified"]).To(BeTrue())
		Expect(body["providers"]).To(BeEmpty())
	})

	It("refreshes a session and invalidates it on logout", func() {
		_, body := postJSON("/auth/register", map[string]string{
			"username": "rosalind",
			"email":    "rosalind@example.com",
			"password": "a strong password",
		})
		Expect(body["verification_token"]).NotTo(BeEmpty())

		resp, _ := postJSON("/auth/login", map[string]string{
			"email":    "rosalind@example.com",
			"password": "a strong password",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		cookie := refreshCookie(resp)

		resp, body = postJSON("/auth/token/refresh", nil, cookie)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		access, _ := body["access"].(string)
		Expect(access).NotTo(BeEmpty())

		resp, _ = getJSON("/auth/me", access)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		resp, body = postJSON("/auth/logout", nil, cookie)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["detail"]).To(Equal("Logged out"))
		cleared := refreshCookie(resp)
		Expect(cleared.Value).To(BeEmpty())
		Expect(cleared.MaxAge).To(BeNumerically("<", 0))

		// The denylist blocks the old cookie from now on.
		resp, body = postJSON("/auth/token/refresh", nil, cookie)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(body["detail"]).To(Equal("Invalid refresh token"))
	})

	It("logs a social user in over HTTP", func() {
		env.Google.addIdentity("tok-marie", "google-marie", auth.ProviderProfile{
			Email: "marie@example.com",
			Name:  "Marie Curie",
			Raw:   map[string]any{"sub": "google-marie"},
		})

		resp, body := postJSON("/auth/social/google", map[string]string{
			"access_token": "tok-marie",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		user, _ := body["user"].(map[string]any)
		Expect(user["username"]).To(Equal("mariecurie"))
		Expect(user["email_verified"]).To(BeTrue())
		firstID := user["id"]

		cookie := refreshCookie(resp)
		Expect(cookie.Value).NotTo(BeEmpty())

		// A second login resolves to the same account.
		resp, body = postJSON("/auth/social/google", map[string]string{
			"access_token": "tok-marie",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		user, _ = body["user"].(map[string]any)
		Expect(user["id"]).To(Equal(firstID))

		access, _ := body["access"].(string)
		resp, body = getJSON("/auth/me", access)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["providers"]).To(Equal([]any{"google"}))
	})

	It("rejects a provider outside the registry", func() {
		resp, body := postJSON("/auth/social/myspace", map[string]string{
			"access_token": "tok",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(body["detail"]).To(Equal("Unsupported provider"))
	})

	It("answers preflight requests for an allowed origin", func() {
		req, err := http.NewRequest(http.MethodOptions, env.BaseURL+"/auth/login", nil)
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Origin", "https://app.idlink.test")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)

		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("https://app.idlink.test"))
		Expect(resp.Header.Get("Access-Control-Allow-Credentials")).To(Equal("true"))
	})
})
