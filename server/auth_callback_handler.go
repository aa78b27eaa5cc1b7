package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-auth-session/auth"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog/log"
)

func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		code := r.FormValue("code")
		errorParam := r.FormValue("error")
		errorDesc := r.FormValue("error_description")

		// Check for authorization errors
		if errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, errorDesc), http.StatusBadRequest)
			return
		}

		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		if err := s.callbacks.HandleCallback(r.Context(), state, code); err != nil {
			switch {
			case apperrors.Is(err, apperrors.ErrInvalidState):
				http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			case apperrors.Is(err, apperrors.ErrInvalidNonce):
				http.Error(w, "Invalid nonce", http.StatusUnauthorized)
			default:
				log.Error().Err(err).Msg("login callback failed")
				http.Error(w, "Login could not be completed", http.StatusBadGateway)
			}
			return
		}

		// The provider session now exists; bring the application session in line.
		if _, err := s.sync.CheckSession(r.Context()); err != nil {
			if apperrors.Is(err, auth.NotAuthenticatedErr) {
				if url := s.redirects.Take(); url != "" {
					redirectSuccess(w, r, url)
					return
				}
			}
			log.Warn().Err(err).Msg("session check after login callback failed")
		}
		redirectSuccess(w, r, RouteIndex)
	}
}
