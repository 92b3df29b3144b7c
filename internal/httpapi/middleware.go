// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

type userIDKey struct{}

// userIDFrom returns the authenticated user ID stored by
// requireAccessToken.
func userIDFrom(ctx context.Context) (ulid.ULID, bool) {
	id, ok := ctx.Value(userIDKey{}).(ulid.ULID)
	return id, ok
}

// requireAccessToken authenticates the bearer access token and stores the
// user ID in the request context. Both a missing header and a bad token
// answer 401.
func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) {
			writeJSON(w, http.StatusUnauthorized, detailResponse{Detail: "Missing bearer token"})
			return
		}

		userID, err := s.issuer.VerifyAccess(strings.TrimSpace(strings.TrimPrefix(header, prefix)))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, detailResponse{Detail: "Invalid access token"})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// recoverPanics turns a handler panic into a 500 instead of killing the
// connection, logging the value for diagnosis.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.ErrorContext(r.Context(), "api handler panic",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec)
				writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// secureHeaders hardens every response. Token-bearing JSON must never land
// in a shared cache.
func secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// allowCORS admits cross-origin requests whose Origin matches a configured
// glob pattern, answering preflights directly. Allow-Credentials is set
// because the refresh cookie must survive cross-origin XHR.
func (s *Server) allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				h.Set("Access-Control-Max-Age", "300")
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, g := range s.corsGlobs {
		if g.Match(origin) {
			return true
		}
	}
	return false
}
