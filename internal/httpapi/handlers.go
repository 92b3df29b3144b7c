// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/idlink/idlink/internal/auth"
)

// Response payloads. user objects always serialize as
// {id, username, email, email_verified}.
type registerResponse struct {
	Message           string `json:"message"`
	VerificationToken string `json:"verification_token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type errorResponse struct {
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
}

type userPayload struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

type sessionResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    userPayload `json:"user"`
}

type accessResponse struct {
	Access string `json:"access"`
}

type meResponse struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Providers     []string `json:"providers"`
}

// Request payloads.
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type socialRequest struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token"`
	Code         string `json:"code"`
	CodeVerifier string `json:"code_verifier"`
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.recoverPanics)
	r.Use(secureHeaders)
	r.Use(s.allowCORS)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, detailResponse{Detail: "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, detailResponse{Detail: "Method not allowed"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Get("/verify-email", s.handleVerifyEmail)
		r.Post("/login", s.handleLogin)
		r.Post("/social/{provider}", s.handleSocial)
		r.Post("/logout", s.handleLogout)
		r.Post("/token/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAccessToken)
			r.Get("/me", s.handleMe)
		})
	})

	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		s.countRegistration("bad_request")
		return
	}

	_, token, err := s.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.countRegistration(outcomeLabel(err))
		switch {
		case errors.Is(err, auth.ErrValidation):
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: errText(err, auth.ErrValidation)})
		default:
			s.internalError(w, r, err)
		}
		return
	}

	s.countRegistration("ok")
	writeJSON(w, http.StatusCreated, registerResponse{
		Message:           "Registered. Please verify email.",
		VerificationToken: token,
	})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	if _, err := s.service.VerifyEmail(r.Context(), token); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "Invalid token"})
			return
		}
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Email verified"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		s.countLogin("bad_request")
		return
	}

	user, pair, err := s.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.countLogin(outcomeLabel(err))
		// Wrong password and unknown email share one body on purpose.
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "Invalid credentials"})
			return
		}
		s.internalError(w, r, err)
		return
	}

	s.countLogin("ok")
	s.setRefreshCookie(w, pair.Refresh)
	writeJSON(w, http.StatusOK, sessionResponse{
		Access:  pair.Access,
		Refresh: pair.Refresh,
		User:    toUserPayload(user),
	})
}

func (s *Server) handleSocial(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	var req socialRequest
	if !decodeJSON(w, r, &req) {
		s.countSocialLogin(providerName, "bad_request")
		return
	}

	user, pair, _, err := s.service.SocialAuth(r.Context(), providerName, auth.SocialAuthInput{
		AccessToken:  req.AccessToken,
		IDToken:      req.IDToken,
		Code:         req.Code,
		CodeVerifier: req.CodeVerifier,
	})
	if err != nil {
		s.countSocialLogin(providerName, outcomeLabel(err))
		s.writeSocialError(w, r, err)
		return
	}

	s.countSocialLogin(providerName, "ok")
	s.setRefreshCookie(w, pair.Refresh)
	writeJSON(w, http.StatusOK, sessionResponse{
		Access:  pair.Access,
		Refresh: pair.Refresh,
		User:    toUserPayload(user),
	})
}

// writeSocialError maps a social-auth failure to its response. Timeouts
// replace the exchange/fetch sentinel, so they get their own body.
func (s *Server) writeSocialError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnsupportedProvider):
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "Unsupported provider"})
	case errors.Is(err, auth.ErrValidation):
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: errText(err, auth.ErrValidation)})
	case errors.Is(err, auth.ErrProviderTimeout):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Detail: "Provider request timed out",
			Error:  errText(err, auth.ErrProviderTimeout),
		})
	case errors.Is(err, auth.ErrProviderExchange):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Detail: "Code exchange failed",
			Error:  errText(err, auth.ErrProviderExchange),
		})
	case errors.Is(err, auth.ErrProviderFetch):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Detail: "Failed to fetch user from provider",
			Error:  errText(err, auth.ErrProviderFetch),
		})
	case errors.Is(err, auth.ErrConflict):
		writeJSON(w, http.StatusConflict, detailResponse{Detail: "Account linking conflict"})
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	// Logout never fails: absent or bad cookies still log the client out.
	if cookie, err := r.Cookie(s.cfg.CookieName); err == nil {
		s.service.Logout(r.Context(), cookie.Value)
	}

	s.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, detailResponse{Detail: "Logged out"})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		s.countRefresh("missing_token")
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "No refresh token"})
		return
	}

	access, err := s.service.RefreshSession(r.Context(), cookie.Value)
	if err != nil {
		s.countRefresh(outcomeLabel(err))
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInvalidToken) {
			writeJSON(w, http.StatusUnauthorized, detailResponse{Detail: "Invalid refresh token"})
			return
		}
		s.internalError(w, r, err)
		return
	}

	s.countRefresh("ok")
	writeJSON(w, http.StatusOK, accessResponse{Access: access})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, detailResponse{Detail: "Invalid access token"})
		return
	}

	user, providers, err := s.service.Me(r.Context(), userID)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, detailResponse{Detail: "Invalid access token"})
			return
		}
		s.internalError(w, r, err)
		return
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.String())
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:            user.ID.String(),
		Username:      user.Username,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Providers:     names,
	})
}

func toUserPayload(u *auth.User) userPayload {
	return userPayload{
		ID:            u.ID.String(),
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
	}
}

// internalError answers 500 without leaking the cause; the full oops
// context goes to the log instead.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.ErrorContext(r.Context(), "api request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err)
	writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Internal server error"})
}

// setRefreshCookie stores the refresh token where only /auth requests send
// it back. HttpOnly keeps scripts away; SameSite=Lax still covers
// top-level navigation.
func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     s.cfg.CookiePath,
		MaxAge:   int(s.cfg.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     s.cfg.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// decodeJSON reads a JSON request body into v. On failure it writes the
// 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, detailResponse{Detail: "Invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

// errText strips the trailing sentinel from an error chain, leaving the
// normalized description for the response's error field.
func errText(err, sentinel error) string {
	return strings.TrimSuffix(err.Error(), ": "+sentinel.Error())
}

// outcomeLabel buckets an error for the outcome metric label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, auth.ErrValidation):
		return "validation_failed"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, auth.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, auth.ErrUnsupportedProvider):
		return "unsupported_provider"
	case errors.Is(err, auth.ErrProviderTimeout):
		return "provider_timeout"
	case errors.Is(err, auth.ErrProviderExchange):
		return "exchange_failed"
	case errors.Is(err, auth.ErrProviderFetch):
		return "fetch_failed"
	case errors.Is(err, auth.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func (s *Server) countRegistration(outcome string) {
	if s.metrics != nil {
		s.metrics.RegistrationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) countSocialLogin(providerName, outcome string) {
	if s.metrics == nil {
		return
	}
	// Canonicalize so unparseable names cannot explode label cardinality.
	label := "unknown"
	if p, err := auth.ParseProvider(providerName); err == nil {
		label = p.String()
	}
	s.metrics.SocialLoginsTotal.WithLabelValues(label, outcome).Inc()
}

func (s *Server) countRefresh(outcome string) {
	if s.metrics != nil {
		s.metrics.TokenRefreshesTotal.WithLabelValues(outcome).Inc()
	}
}
