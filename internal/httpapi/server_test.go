// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package httpapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/auth/authtest"
	"github.com/idlink/idlink/internal/httpapi"
)

// minimalDeps builds the bare service and issuer constructor-validation
// cases need.
func minimalDeps(t *testing.T) (*auth.Service, *auth.JWTIssuer) {
	t.Helper()
	issuer, err := auth.NewJWTIssuer([]byte("api-test-secret"), time.Minute, time.Hour)
	require.NoError(t, err)
	svc, err := auth.NewService(auth.ServiceDeps{
		Store:  authtest.NewStore(),
		Hasher: auth.NewArgon2idHasher(),
		Issuer: issuer,
		Mail:   noopMail{},
	}, auth.ServiceConfig{})
	require.NoError(t, err)
	return svc, issuer
}

func TestNewServer(t *testing.T) {
	svc, issuer := minimalDeps(t)

	t.Run("requires an auth service", func(t *testing.T) {
		_, err := httpapi.NewServer(httpapi.Config{}, httpapi.Deps{Issuer: issuer})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auth service is required")
	})

	t.Run("requires a session issuer", func(t *testing.T) {
		_, err := httpapi.NewServer(httpapi.Config{}, httpapi.Deps{Auth: svc})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session issuer is required")
	})

	t.Run("rejects a malformed origin pattern", func(t *testing.T) {
		_, err := httpapi.NewServer(httpapi.Config{
			CORSOrigins: []string{"https://[invalid"},
		}, httpapi.Deps{Auth: svc, Issuer: issuer})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid cors origin pattern")
	})
}

func TestServerLifecycle(t *testing.T) {
	t.Run("serves requests between start and stop", func(t *testing.T) {
		f := newAPIFixture(t)

		errCh, err := f.srv.Start()
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = f.srv.Stop(ctx)
		})

		addr := f.srv.Addr()
		require.NotEmpty(t, addr)

		resp, err := http.Get("http://" + addr + "/auth/verify-email?token=bogus")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, f.srv.Stop(ctx))

		select {
		case serveErr := <-errCh:
			assert.NoError(t, serveErr)
		case <-time.After(time.Second):
			t.Fatal("serve goroutine did not exit")
		}
	})

	t.Run("rejects a second start", func(t *testing.T) {
		f := newAPIFixture(t)

		_, err := f.srv.Start()
		require.NoError(t, err)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = f.srv.Stop(ctx)
		})

		_, err = f.srv.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already running")
	})

	t.Run("fails on an unusable listen address", func(t *testing.T) {
		svc, issuer := minimalDeps(t)
		srv, err := httpapi.NewServer(httpapi.Config{Addr: "127.0.0.1:-1"}, httpapi.Deps{
			Auth:   svc,
			Issuer: issuer,
		})
		require.NoError(t, err)

		_, err = srv.Start()
		require.Error(t, err)
	})

	t.Run("stop before start is a no-op", func(t *testing.T) {
		f := newAPIFixture(t)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, f.srv.Stop(ctx))
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		f := newAPIFixture(t)

		_, err := f.srv.Start()
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, f.srv.Stop(ctx))
		assert.NoError(t, f.srv.Stop(ctx))
	})
}
