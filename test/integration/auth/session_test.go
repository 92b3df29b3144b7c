// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

//go:build integration

package auth_test

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/idlink/idlink/internal/auth"
)

var _ = Describe("Session lifecycle", func() {
	var (
		ctx  context.Context
		pair auth.TokenPair
		user *auth.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		resetDatabase(ctx, env.pool)

		var err error
		_, _, err = env.Service.Register(ctx, "sessionuser", "session@example.com", "a strong password")
		Expect(err).NotTo(HaveOccurred())
		user, pair, err = env.Service.Login(ctx, "session@example.com", "a strong password")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("RefreshSession", func() {
		It("mints a fresh access token for the refresh token's user", func() {
			access, err := env.Service.RefreshSession(ctx, pair.Refresh)
			Expect(err).NotTo(HaveOccurred())

			subject, err := env.Issuer.VerifyAccess(access)
			Expect(err).NotTo(HaveOccurred())
			Expect(subject).To(Equal(user.ID))
		})

		It("rejects a malformed token", func() {
			_, err := env.Service.RefreshSession(ctx, "not-a-jwt")
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))
		})

		It("rejects an access token presented as a refresh token", func() {
			_, err := env.Service.RefreshSession(ctx, pair.Access)
			Expect(err).To(MatchError(auth.ErrInvalidCredentials))
		})
	})

	Describe("Logout", func() {
		It("denylists the refresh token's jti", func() {
			claims, err := env.Issuer.VerifyRefresh(pair.Refresh)
			Expect(err).NotTo(HaveOccurred())

			env.Service.Logout(ctx, pair.Refresh)

			revoked, err := env.Store.RevokedTokens().IsRevoked(ctx, claims.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(revoked).To(BeTrue())

			_, err = env.Service.RefreshSession(ctx, pair.Refresh)
			Expect(err).To(MatchError(auth.ErrInvalidToken))
		})

		It("is idempotent", func() {
			env.Service.Logout(ctx, pair.Refresh)
			env.Service.Logout(ctx, pair.Refresh)

			Expect(countRows(ctx, env.pool, "revoked_tokens")).To(Equal(1))
		})

		It("leaves other sessions of the same user intact", func() {
			_, other, err := env.Service.Login(ctx, "session@example.com", "a strong password")
			Expect(err).NotTo(HaveOccurred())

			env.Service.Logout(ctx, pair.Refresh)

			_, err = env.Service.RefreshSession(ctx, other.Refresh)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("denylist sweeping", func() {
		It("prunes only rows whose tokens have expired", func() {
			expired := &auth.RevokedToken{
				JTI:       ulid.Make().String(),
				UserID:    user.ID.String(),
				ExpiresAt: time.Now().Add(-time.Hour),
				RevokedAt: time.Now().Add(-2 * time.Hour),
			}
			Expect(env.Store.RevokedTokens().Revoke(ctx, expired)).To(Succeed())

			env.Service.Logout(ctx, pair.Refresh)
			Expect(countRows(ctx, env.pool, "revoked_tokens")).To(Equal(2))

			deleted, err := auth.NewRevocationSweeper(env.Store).SweepOnce(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(Equal(int64(1)))

			// The live revocation still blocks its jti.
			_, err = env.Service.RefreshSession(ctx, pair.Refresh)
			Expect(err).To(MatchError(auth.ErrInvalidToken))

			gone, err := env.Store.RevokedTokens().IsRevoked(ctx, expired.JTI)
			Expect(err).NotTo(HaveOccurred())
			Expect(gone).To(BeFalse())
		})
	})
})
