package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/auth"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/rs/zerolog/log"
)

// CallbackHandler completes an interactive login from the provider's redirect.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, state, code string) error
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	store     *sessions.Store
	sync      *auth.Synchronizer
	callbacks CallbackHandler
	redirects *Redirects
	cache     Pinger
	nowFunc   func() time.Time
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithTokenCache adds the token cache to the health report.
func WithTokenCache(cache Pinger) ServerOption {
	return func(s *Server) {
		s.cache = cache
	}
}

// WithNowTime sets the function used to get the current time
func WithNowTime(nowFunc func() time.Time) ServerOption {
	return func(s *Server) {
		s.nowFunc = nowFunc
	}
}

// New builds the HTTP shell around a session synchronizer. redirects must be the
// Navigator the identity client was built with.
func New(cfg config.Config, store *sessions.Store, synchronizer *auth.Synchronizer, callbacks CallbackHandler, redirects *Redirects, options ...ServerOption) (*Server, error) {
	if cfg == nil || store == nil || synchronizer == nil || callbacks == nil || redirects == nil {
		return nil, errors.New("[Server New] config, store, synchronizer, callback handler and redirects are required")
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		store:     store,
		sync:      synchronizer,
		callbacks: callbacks,
		redirects: redirects,
		nowFunc:   time.Now,
	}
	for _, option := range options {
		option(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

func logRequest(method, path string, status sessions.Status) {
	log.Info().Msgf("[%-19s] %s session=%s", colourMethod(method), path, colourSessionStatus(status))
}

func logError(method, path, error string) {
	log.Error().Msgf("[%-19s] %s %s", colourMethod(method), path, Red+error+ResetColor)
}
