// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

//go:build integration

package auth_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/idlink/idlink/internal/auth"
)

var _ = Describe("Social authentication", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx, env.pool)
	})

	Describe("first login", func() {
		It("creates a verified user linked to the provider identity", func() {
			env.Google.addIdentity("tok-ada", "google-ada", auth.ProviderProfile{
				Email: "ada@example.com",
				Name:  "Ada Lovelace",
				Raw:   map[string]any{"sub": "google-ada"},
			})

			user, pair, created, err := env.Service.SocialAuth(ctx, "google",
				auth.SocialAuthInput{AccessToken: "tok-ada"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(user.Username).To(Equal("adalovelace"))
			Expect(user.Email).To(Equal("ada@example.com"))
			Expect(user.EmailVerified).To(BeTrue())
			Expect(user.PasswordHash).To(BeNil())

			subject, err := env.Issuer.VerifyAccess(pair.Access)
			Expect(err).NotTo(HaveOccurred())
			Expect(subject).To(Equal(user.ID))

			account, err := env.Store.SocialAccounts().GetByProviderID(ctx, auth.ProviderGoogle, "google-ada")
			Expect(err).NotTo(HaveOccurred())
			Expect(account.UserID).To(Equal(user.ID))
			Expect(account.ProfileSnapshot).To(HaveKeyWithValue("sub", "google-ada"))
		})

		It("synthesizes an unverified email when the provider supplies none", func() {
			env.GitHub.addIdentity("tok-octo", "gh-77", auth.ProviderProfile{
				Name: "Octo Cat",
				Raw:  map[string]any{"login": "octocat"},
			})

			user, _, created, err := env.Service.SocialAuth(ctx, "github",
				auth.SocialAuthInput{AccessToken: "tok-octo"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(user.Email).To(Equal("github_gh-77@example.com"))
			Expect(user.EmailVerified).To(BeFalse())
		})

		It("suffixes the username when the derived one is taken", func() {
			_, _, err := env.Service.Register(ctx, "adalovelace", "taken@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())

			env.Google.addIdentity("tok-ada2", "google-ada2", auth.ProviderProfile{
				Email: "ada.l@example.com",
				Name:  "Ada Lovelace",
			})

			user, _, _, err := env.Service.SocialAuth(ctx, "google",
				auth.SocialAuthInput{AccessToken: "tok-ada2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Username).To(Equal("adalovelace2"))
		})

		It("exchanges an authorization code when no token is supplied", func() {
			env.Google.addCode("code-42", &auth.ProviderToken{AccessToken: "tok-from-code"})
			env.Google.addIdentity("tok-from-code", "google-42", auth.ProviderProfile{
				Email: "codeflow@example.com",
				Name:  "Code Flow",
			})

			user, _, created, err := env.Service.SocialAuth(ctx, "google",
				auth.SocialAuthInput{Code: "code-42", CodeVerifier: "verifier"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())
			Expect(user.Email).To(Equal("codeflow@example.com"))
		})

		It("passes provider rejections through", func() {
			_, _, _, err := env.Service.SocialAuth(ctx, "google",
				auth.SocialAuthInput{AccessToken: "tok-unknown"})
			Expect(err).To(MatchError(auth.ErrProviderFetch))

			Expect(countRows(ctx, env.pool, "users")).To(BeZero())
		})
	})

	Describe("repeat login", func() {
		It("resolves to the same user and refreshes the snapshot", func() {
			env.Google.addIdentity("tok-rep", "google-rep", auth.ProviderProfile{
				Email: "rep@example.com",
				Name:  "Repeat",
				Raw:   map[string]any{"picture": "v1.png"},
			})
			first, _, created, err := env.Service.SocialAuth(ctx, "google",
				auth.SocialAuthInput{AccessToken: "tok-rep"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeTrue())

			env.Google.addIdentity("tok-rep", "google-rep", auth.ProviderProfile{
				Email: "rep@example.com",
				Name:  "Repeat",
				Raw:   map[string]any{"picture": "v2.png"},
			})
			second, _, created, err := env.Service.SocialAuth(ctx, "google",
				auth.SocialAuthInput{AccessToken: "tok-rep"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(second.ID).To(Equal(first.ID))

			Expect(countRows(ctx, env.pool, "users")).To(Equal(1))

			account, err := env.Store.SocialAccounts().GetByProviderID(ctx, auth.ProviderGoogle, "google-rep")
			Expect(err).NotTo(HaveOccurred())
			Expect(account.ProfileSnapshot).To(HaveKeyWithValue("picture", "v2.png"))
		})
	})

	Describe("linking to a local account", func() {
		It("attaches the provider identity to the user with the same email", func() {
			local, _, err := env.Service.Register(ctx, "hedy", "hedy@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())

			env.Google.addIdentity("tok-hedy", "google-hedy", auth.ProviderProfile{
				Email: "hedy@example.com",
				Name:  "Hedy Lamarr",
			})
			linked, _, created, err := env.Service.SocialAuth(ctx, "google",
				auth.SocialAuthInput{AccessToken: "tok-hedy"})
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(linked.ID).To(Equal(local.ID))

			Expect(countRows(ctx, env.pool, "users")).To(Equal(1))

			_, providers, err := env.Service.Me(ctx, local.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(providers).To(Equal([]auth.Provider{auth.ProviderGoogle}))

			// The password credential survives the link.
			_, _, err = env.Service.Login(ctx, "hedy@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())
		})

		It("collects every linked provider in Me", func() {
			env.Google.addIdentity("tok-multi-g", "google-multi", auth.ProviderProfile{
				Email: "multi@example.com",
				Name:  "Multi Homed",
			})
			env.GitHub.addIdentity("tok-multi-h", "gh-multi", auth.ProviderProfile{
				Email: "multi@example.com",
				Name:  "Multi Homed",
			})

			user, _, _, err := env.Service.SocialAuth(ctx, "google",
				auth.SocialAuthInput{AccessToken: "tok-multi-g"})
			Expect(err).NotTo(HaveOccurred())
			_, _, _, err = env.Service.SocialAuth(ctx, "github",
				auth.SocialAuthInput{AccessToken: "tok-multi-h"})
			Expect(err).NotTo(HaveOccurred())

			_, providers, err := env.Service.Me(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(providers).To(ConsistOf(auth.ProviderGitHub, auth.ProviderGoogle))
		})
	})

	Describe("concurrent first logins", func() {
		It("resolves every caller to a single user", func() {
			env.Google.addIdentity("tok-race", "google-race", auth.ProviderProfile{
				Email: "race@example.com",
				Name:  "Race Condition",
			})

			const callers = 5
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				userIDs = make(map[string]int)
				creates int
			)
			for range callers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					user, _, created, err := env.Service.SocialAuth(ctx, "google",
						auth.SocialAuthInput{AccessToken: "tok-race"})
					Expect(err).NotTo(HaveOccurred())
					mu.Lock()
					userIDs[user.ID.String()]++
					if created {
						creates++
					}
					mu.Unlock()
				}()
			}
			wg.Wait()

			Expect(userIDs).To(HaveLen(1))
			Expect(creates).To(Equal(1))
			Expect(countRows(ctx, env.pool, "users")).To(Equal(1))
			Expect(countRows(ctx, env.pool, "social_accounts")).To(Equal(1))
		})
	})
})
