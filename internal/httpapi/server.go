// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

// Package httpapi serves the public authentication HTTP API.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/observability"
)

// Config tunes the API server and the refresh cookie it issues.
type Config struct {
	// Addr is the listen address in "host:port" format.
	Addr string

	// CORSOrigins lists allowed origins as glob patterns. An empty list
	// allows no cross-origin callers.
	CORSOrigins []string

	// CookieName and CookiePath shape the refresh cookie.
	CookieName string
	CookiePath string

	// SecureCookies marks the refresh cookie Secure. Off in development so
	// plain-http localhost flows keep working.
	SecureCookies bool

	// RefreshTTL bounds the refresh cookie's Max-Age. Zero means the
	// default refresh token lifetime.
	RefreshTTL time.Duration
}

// Deps are the collaborators the API server requires.
type Deps struct {
	Auth   *auth.Service
	Issuer auth.SessionIssuer

	// Metrics is optional; nil disables counter recording.
	Metrics *observability.Metrics

	Logger *slog.Logger
}

// Server is the public HTTP API server.
type Server struct {
	cfg     Config
	service *auth.Service
	issuer  auth.SessionIssuer
	metrics *observability.Metrics
	logger  *slog.Logger

	handler    http.Handler
	corsGlobs  []glob.Glob
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates an API server. The CORS origin patterns are compiled
// eagerly so a malformed pattern fails construction, not the first
// cross-origin request.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, oops.Code("API_DEPS_INVALID").Errorf("auth service is required")
	}
	if deps.Issuer == nil {
		return nil, oops.Code("API_DEPS_INVALID").Errorf("session issuer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "refresh_token"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/auth"
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = auth.DefaultRefreshTokenTTL
	}

	globs := make([]glob.Glob, 0, len(cfg.CORSOrigins))
	for _, origin := range cfg.CORSOrigins {
		g, err := glob.Compile(origin)
		if err != nil {
			return nil, oops.Code("API_CONFIG_INVALID").
				With("origin", origin).
				Wrapf(err, "invalid cors origin pattern")
		}
		globs = append(globs, g)
	}

	s := &Server{
		cfg:       cfg,
		service:   deps.Auth,
		issuer:    deps.Issuer,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		corsGlobs: globs,
	}
	s.handler = s.routes()

	return s, nil
}

// Handler returns the root HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving the API. It returns an error channel that receives
// any error from the HTTP server after startup; the channel is closed on
// graceful stop. Callers should monitor it to detect server failures.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	// Buffered so the serve goroutine never blocks on a slow reader.
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server, waiting for in-flight
// requests up to the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state on failure so Stop can be retried.
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on, or the empty
// string when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
