// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

//go:build integration

package auth_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/idlink/idlink/internal/auth"
)

var _ = Describe("Registration and login", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx, env.pool)
	})

	Describe("Register", func() {
		It("persists an unverified user with a hashed password", func() {
			user, token, err := env.Service.Register(ctx, "alice", "alice@example.com", "correct horse battery")
			Expect(err).NotTo(HaveOccurred())
			Expect(token).NotTo(BeEmpty())
			Expect(user.EmailVerified).To(BeFalse())

			stored, err := env.Store.Users().GetByEmail(ctx, "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.ID).To(Equal(user.ID))
			Expect(stored.Username).To(Equal("alice"))
			Expect(stored.PasswordHash).NotTo(BeNil())
			Expect(*stored.PasswordHash).NotTo(ContainSubstring("correct horse battery"))

			Expect(countRows(ctx, env.pool, "email_verification_tokens")).To(Equal(1))
		})

		It("lowercases the stored email", func() {
			_, _, err := env.Service.Register(ctx, "bob", "Bob@Example.COM", "a strong password")
			Expect(err).NotTo(HaveOccurred())

			stored, err := env.Store.Users().GetByEmail(ctx, "bob@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Email).To(Equal("bob@example.com"))
		})

		It("rejects a duplicate email regardless of case", func() {
			_, _, err := env.Service.Register(ctx, "carol", "carol@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())

			_, _, err = env.Service.Register(ctx, "carol2", "CAROL@example.com", "a strong password")
			Expect(err).To(MatchError(auth.ErrValidation))
			Expect(err.Error()).To(ContainSubstring("email already registered"))

			Expect(countRows(ctx, env.pool, "users")).To(Equal(1))
		})

		It("rejects a taken username", func() {
			_, _, err := env.Service.Register(ctx, "dave", "dave@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())

			_, _, err = env.Service.Register(ctx, "dave", "dave2@example.com", "a strong password")
			Expect(err).To(MatchError(auth.ErrValidation))
			Expect(err.Error()).To(ContainSubstring("username already taken"))
		})
	})

	Describe("VerifyEmail", func() {
		It("marks the email verified and consumes the token", func() {
			user, token, err := env.Service.Register(ctx, "erin", "erin@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())

			verifiedID, err := env.Service.VerifyEmail(ctx, token)
			Expect(err).NotTo(HaveOccurred())
			Expect(verifiedID).To(Equal(user.ID))

			stored, err := env.Store.Users().GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.EmailVerified).To(BeTrue())
		})

		It("rejects a second use of the same token", func() {
			_, token, err := env.Service.Register(ctx, "frank", "frank@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.VerifyEmail(ctx, token)
			Expect(err).NotTo(HaveOccurred())

			_, err = env.Service.VerifyEmail(ctx, token)
			Expect(err).To(MatchError(auth.ErrInvalidToken))
		})

		It("rejects a token that was never issued", func() {
			_, err := env.Service.VerifyEmail(ctx, "never-issued")
			Expect(err).To(MatchError(auth.ErrInvalidToken))
		})
	})

	Describe("Login", func() {
		BeforeEach(func() {
			_, _, err := env.Service.Register(ctx, "grace", "grace@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())
		})

		It("issues a session pair for valid credentials", func() {
			user, pair, err := env.Service.Login(ctx, "grace@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Username).To(Equal("grace"))

			subject, err := env.Issuer.VerifyAccess(pair.Access)
			Expect(err).NotTo(HaveOccurred())
			Expect(subject).To(Equal(user.ID))

			claims, err := env.Issuer.VerifyRefresh(pair.Refresh)
			Expect(err).NotTo(HaveOccurred())
			Expect(claims.Subject).To(Equal(user.ID.String()))
			Expect(claims.ID).NotTo(BeEmpty())
		})

		It("matches the email case-insensitively", func() {
			_, _, err := env.Service.Login(ctx, "GRACE@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a wrong password and an unknown email identically", func() {
			_, _, wrongPass := env.Service.Login(ctx, "grace@example.com", "not the password")
			Expect(wrongPass).To(MatchError(auth.ErrInvalidCredentials))

			_, _, unknown := env.Service.Login(ctx, "nobody@example.com", "a strong password")
			Expect(unknown).To(MatchError(auth.ErrInvalidCredentials))

			Expect(wrongPass.Error()).To(Equal(unknown.Error()))
		})
	})
})
