package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRefreshMargin is how long before access token expiry a refresh is attempted.
	DefaultRefreshMargin = 30 * time.Second
	// DefaultRefreshTimeout bounds a background refresh round trip.
	DefaultRefreshTimeout = 10 * time.Second
)

// Synchronizer keeps the application Session in step with an identity client.
// It is the only writer of the Store it is given.
//
// Store listeners run while the synchronizer applies a transition, so they must
// not call back into the Synchronizer synchronously.
type Synchronizer struct {
	client         identity.Client
	store          *sessions.Store
	logger         zerolog.Logger
	refreshMargin  time.Duration
	refreshTimeout time.Duration

	checks singleflight.Group

	mu      sync.Mutex
	release func() // live near-expiry registration, nil when none
	epoch   uint64 // bumped on every arm and disarm; stale callbacks compare against it
	logouts uint64 // bumped on logout and close; in-flight checks compare against it
	closed  bool
}

// SynchronizerOption defines a function type to modify the Synchronizer instance.
type SynchronizerOption func(*Synchronizer)

// WithRefreshMargin sets the expiry warning window used for refresh scheduling.
func WithRefreshMargin(margin time.Duration) SynchronizerOption {
	return func(s *Synchronizer) {
		s.refreshMargin = margin
	}
}

// WithRefreshTimeout bounds each background refresh.
func WithRefreshTimeout(timeout time.Duration) SynchronizerOption {
	return func(s *Synchronizer) {
		s.refreshTimeout = timeout
	}
}

// WithLogger sets the logger (defaults to a no-op logger).
func WithLogger(logger zerolog.Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// NewSynchronizer wires a synchronizer between client and store.
func NewSynchronizer(client identity.Client, store *sessions.Store, options ...SynchronizerOption) (*Synchronizer, error) {
	if client == nil {
		return nil, errors.New("[NewSynchronizer] identity client is required")
	}
	if store == nil {
		return nil, errors.New("[NewSynchronizer] session store is required")
	}

	s := &Synchronizer{
		client:         client,
		store:          store,
		logger:         zerolog.Nop(),
		refreshMargin:  DefaultRefreshMargin,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range options {
		opt(s)
	}

	if s.refreshMargin <= 0 {
		return nil, errors.New("[NewSynchronizer] refresh margin must be positive")
	}
	if s.refreshTimeout <= 0 {
		return nil, errors.New("[NewSynchronizer] refresh timeout must be positive")
	}
	return s, nil
}

// CheckSession asks the identity client whether a session exists and records the
// outcome in the store. Concurrent callers share one in-flight check.
//
// When the provider has no session the interactive login is started and an error
// matching NotAuthenticatedErr is returned. Provider failures are recorded in
// Session.Error and returned as AuthProviderErr; they are not retried.
func (s *Synchronizer) CheckSession(ctx context.Context) (sessions.Session, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return s.store.GetSession(), errors.Wrap(SessionClosedErr, "[Synchronizer.CheckSession]")
	}

	v, err, _ := s.checks.Do("check", func() (any, error) {
		return s.checkSession(ctx)
	})
	session, _ := v.(sessions.Session)
	return session, err
}

func (s *Synchronizer) checkSession(ctx context.Context) (sessions.Session, error) {
	// CheckStarted and the logout snapshot move together under s.mu
	s.mu.Lock()
	logouts := s.logouts
	s.store.CheckStarted()
	s.mu.Unlock()

	authenticated, err := s.client.Init(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("identity provider initialisation failed")
		s.apply(logouts, func() {
			s.disarmLocked()
			s.store.InitFailed(err.Error())
		})
		return s.store.GetSession(), errors.Wrap(apperrors.Join(AuthProviderErr, err), "[Synchronizer.CheckSession] client.Init")
	}

	tokens := s.client.Tokens()
	payload := s.client.ParsedClaims()
	if !authenticated || tokens.AccessToken == "" || tokens.RefreshToken == "" || payload == nil {
		s.logger.Info().Bool("provider_authenticated", authenticated).Msg("no usable session, starting interactive login")
		if !s.apply(logouts, func() {
			s.disarmLocked()
			s.store.Unauthenticated()
		}) {
			return s.store.GetSession(), errors.Wrap(SessionNotActiveErr, "[Synchronizer.CheckSession] logged out during check")
		}
		if err := s.client.Login(ctx); err != nil {
			s.logger.Error().Err(err).Msg("interactive login could not start")
			s.apply(logouts, func() {
				s.store.InitFailed(err.Error())
			})
			return s.store.GetSession(), errors.Wrap(apperrors.Join(AuthProviderErr, err), "[Synchronizer.CheckSession] client.Login")
		}
		return s.store.GetSession(), errors.Wrap(NotAuthenticatedErr, "[Synchronizer.CheckSession]")
	}

	claims := s.withUserInfo(ctx, sessions.ClaimsFromToken(payload))

	var loginErr error
	applied := s.apply(logouts, func() {
		if loginErr = s.store.LoginSucceeded(toSessionTokens(tokens), claims); loginErr != nil {
			return
		}
		s.armLocked()
	})
	if !applied {
		return s.store.GetSession(), errors.Wrap(SessionNotActiveErr, "[Synchronizer.CheckSession] logged out during check")
	}
	if loginErr != nil {
		return s.store.GetSession(), errors.Wrap(loginErr, "[Synchronizer.CheckSession] store.LoginSucceeded")
	}

	s.logger.Info().Str("sub", claims.ID).Str("username", claims.Username).Msg("session authenticated")
	return s.store.GetSession(), nil
}

// Logout clears the session, drops the refresh registration and hands over to the
// identity client's logout, which navigates away.
func (s *Synchronizer) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.logouts++
	s.disarmLocked()
	s.store.LoggedOut()
	s.mu.Unlock()

	if err := s.client.Logout(ctx); err != nil {
		return errors.Wrap(apperrors.Join(AuthProviderErr, err), "[Synchronizer.Logout] client.Logout")
	}
	return nil
}

// Close releases the refresh registration. Callbacks that fire afterwards are
// ignored and the session is no longer written.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	s.disarmLocked()
	s.closed = true
}

// LiveRegistrations reports how many near-expiry registrations are armed (0 or 1).
func (s *Synchronizer) LiveRegistrations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.release == nil {
		return 0
	}
	return 1
}

// apply runs fn under the transition lock unless a logout or close happened since
// the caller captured logouts.
func (s *Synchronizer) apply(logouts uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.logouts != logouts {
		return false
	}
	fn()
	return true
}

// armLocked replaces any live registration with a fresh one. Requires s.mu.
func (s *Synchronizer) armLocked() {
	s.disarmLocked()
	epoch := s.epoch
	s.release = s.client.OnTokenNearExpiry(s.refreshMargin, func() {
		s.onTokenNearExpiry(epoch)
	})
}

// disarmLocked releases the live registration, if any. Requires s.mu.
func (s *Synchronizer) disarmLocked() {
	s.epoch++
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

func (s *Synchronizer) onTokenNearExpiry(epoch uint64) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	// the registration is one-shot; it is spent now
	s.release = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	refreshed, err := s.client.Refresh(ctx, s.refreshMargin)
	if err == nil {
		err = s.applyRefresh(epoch, refreshed)
	}
	if err != nil {
		s.failRefresh(epoch, err)
	}
}

func (s *Synchronizer) applyRefresh(epoch uint64, refreshed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || epoch != s.epoch {
		return nil
	}

	if refreshed {
		tokens := s.client.Tokens()
		claims := s.changedClaims(s.client.ParsedClaims())
		if err := s.store.TokenRefreshed(toSessionTokens(tokens), claims); err != nil {
			return errors.Wrap(err, "[Synchronizer.applyRefresh] store.TokenRefreshed")
		}
		s.logger.Debug().Time("expiry", tokens.Expiry).Bool("claims_changed", claims != nil).Msg("access token refreshed")
	}
	s.armLocked()
	return nil
}

// changedClaims returns the claims derived from payload when they differ from the
// session's current claims, otherwise nil. Attributes the new token omits are
// carried over from the current claims.
func (s *Synchronizer) changedClaims(payload map[string]any) *sessions.Claims {
	if payload == nil {
		return nil
	}
	next := sessions.ClaimsFromToken(payload)
	current := s.store.GetSession().Claims
	if current != nil {
		next = next.FillMissing(*current)
		if next.Equal(*current) {
			return nil
		}
	}
	return &next
}

func (s *Synchronizer) failRefresh(epoch uint64, cause error) {
	s.mu.Lock()
	if s.closed || epoch != s.epoch {
		s.mu.Unlock()
		return
	}
	s.store.RefreshFailed(cause.Error())
	s.mu.Unlock()

	s.logger.Error().Err(apperrors.Join(RefreshFailureErr, cause)).Msg("token refresh failed, forcing logout")

	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()
	if err := s.Logout(ctx); err != nil {
		s.logger.Error().Err(err).Msg("forced logout failed")
	}
}

func (s *Synchronizer) withUserInfo(ctx context.Context, claims sessions.Claims) sessions.Claims {
	info, err := s.client.LoadUserInfo(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("userinfo unavailable, using token claims only")
		return claims
	}
	return claims.FillMissing(sessions.Claims{
		ID:        info.Subject,
		Username:  info.PreferredUsername,
		Email:     info.Email,
		FirstName: info.GivenName,
		LastName:  info.FamilyName,
	})
}

func toSessionTokens(t identity.Tokens) sessions.Tokens {
	return sessions.Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		IDToken:      t.IDToken,
	}
}
