package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-session/auth"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/rs/zerolog/log"
)

const healthCheckTimeout = 2 * time.Second

// LoginHandler runs a session check and follows the provider's login redirect
// when there is no session.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.sync.CheckSession(r.Context())
		if err == nil && session.Authenticated {
			redirectSuccess(w, r, RouteIndex)
			return
		}

		if url := s.redirects.Take(); url != "" {
			redirectSuccess(w, r, url)
			return
		}

		switch {
		case apperrors.Is(err, auth.SessionClosedErr):
			http.Error(w, "Service is shutting down", http.StatusServiceUnavailable)
		case err != nil:
			log.Error().Err(err).Msg("login could not start")
			// the index page renders the failed session
			redirectSuccess(w, r, RouteIndex)
		default:
			redirectSuccess(w, r, RouteIndex)
		}
	}
}

// LogoutHandler ends the session locally and at the provider.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.sync.Logout(r.Context()); err != nil {
			log.Error().Err(err).Msg("provider logout failed")
		}
		if url := s.redirects.Take(); url != "" {
			redirectSuccess(w, r, url)
			return
		}
		redirectSuccess(w, r, RouteIndex)
	}
}

// sessionView is the client-visible Session. Refresh and ID tokens never leave
// the server.
type sessionView struct {
	Status        sessions.Status  `json:"status"`
	Authenticated bool             `json:"authenticated"`
	Loading       bool             `json:"loading"`
	AccessToken   *string          `json:"accessToken"`
	Claims        *sessions.Claims `json:"claims"`
	Error         *string          `json:"error"`
}

// SessionHandler reports the current session as JSON.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.store.GetSession()
		writeJSON(w, http.StatusOK, sessionView{
			Status:        session.Status(),
			Authenticated: session.Authenticated,
			Loading:       session.Loading,
			AccessToken:   session.AccessToken,
			Claims:        session.Claims,
			Error:         session.Error,
		})
	}
}

type healthResponse struct {
	Status     string          `json:"status"`
	Timestamp  string          `json:"timestamp"`
	Service    string          `json:"service"`
	Session    sessions.Status `json:"session"`
	TokenCache string          `json:"tokenCache"`
	Error      string          `json:"error,omitempty"`
}

// HealthHandler reports "ok" (200) unless the session failed or the token cache
// is unreachable, which report "degraded" (503).
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := s.store.GetSession()
		resp := healthResponse{
			Status:     "ok",
			Timestamp:  s.nowFunc().UTC().Format(time.RFC3339),
			Service:    s.config.GetAppName(),
			Session:    session.Status(),
			TokenCache: "not_configured",
		}

		if s.cache != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := s.cache.Ping(ctx); err != nil {
				resp.TokenCache = "disconnected"
				resp.Status = "degraded"
				resp.Error = err.Error()
			} else {
				resp.TokenCache = "connected"
			}
		}
		if session.Status() == sessions.StatusFailed {
			resp.Status = "degraded"
			if session.Error != nil {
				resp.Error = *session.Error
			}
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
