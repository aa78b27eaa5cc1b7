package sessions

import (
	"sort"
	"sync"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/utils"
)

// Listener is notified with a snapshot of the Session after every change.
type Listener func(Session)

// Store holds the single process-wide Session. The synchronizer is its only writer;
// everything else reads through GetSession or Subscribe. Each action replaces the
// whole Session under one lock, so readers never see a partial update.
type Store struct {
	mu        sync.RWMutex
	session   Session
	listeners map[uint64]Listener
	nextID    uint64
}

// NewStore creates a store holding the Default session.
func NewStore() *Store {
	return &Store{
		session:   Default(),
		listeners: make(map[uint64]Listener),
	}
}

// GetSession returns a copy of the current Session.
func (s *Store) GetSession() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// Subscribe registers l and returns a function that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
		})
	}
}

// CheckStarted marks a session check as in flight.
func (s *Store) CheckStarted() {
	s.update(func(cur Session) (Session, error) {
		cur.Loading = true
		cur.Error = nil
		return cur, nil
	})
}

// LoginSucceeded records an authenticated session. Access and refresh tokens are required.
func (s *Store) LoginSucceeded(tokens Tokens, claims Claims) error {
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return apperrors.Wrapf(apperrors.ErrIncompleteCredentials, "[Store.LoginSucceeded]")
	}
	return s.update(func(Session) (Session, error) {
		c := claims.Clone()
		return Session{
			Authenticated: true,
			Loading:       false,
			AccessToken:   utils.Ptr(tokens.AccessToken),
			RefreshToken:  utils.Ptr(tokens.RefreshToken),
			IDToken:       utils.PtrOrNil(tokens.IDToken),
			Claims:        &c,
			Error:         nil,
		}, nil
	})
}

// Unauthenticated records that the provider has no session for this client.
func (s *Store) Unauthenticated() {
	s.update(func(Session) (Session, error) {
		return LoggedOut(), nil
	})
}

// InitFailed records a provider failure during the session check.
func (s *Store) InitFailed(msg string) {
	s.update(func(Session) (Session, error) {
		failed := LoggedOut()
		failed.Error = utils.Ptr(msg)
		return failed, nil
	})
}

// TokenRefreshed replaces all credentials at once. Claims are replaced only when
// non-nil; otherwise the previous claims are kept.
func (s *Store) TokenRefreshed(tokens Tokens, claims *Claims) error {
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return apperrors.Wrapf(apperrors.ErrIncompleteCredentials, "[Store.TokenRefreshed]")
	}
	return s.update(func(cur Session) (Session, error) {
		if !cur.Authenticated {
			return cur, apperrors.Wrapf(apperrors.ErrSessionNotActive, "[Store.TokenRefreshed]")
		}
		cur.AccessToken = utils.Ptr(tokens.AccessToken)
		cur.RefreshToken = utils.Ptr(tokens.RefreshToken)
		cur.IDToken = utils.PtrOrNil(tokens.IDToken)
		if claims != nil {
			c := claims.Clone()
			cur.Claims = &c
		}
		return cur, nil
	})
}

// RefreshFailed drops the credentials and records why. A forced logout follows.
func (s *Store) RefreshFailed(msg string) {
	s.update(func(Session) (Session, error) {
		failed := LoggedOut()
		failed.Error = utils.Ptr(msg)
		return failed, nil
	})
}

// LoggedOut resets the session to the logged out default.
func (s *Store) LoggedOut() {
	s.update(func(Session) (Session, error) {
		return LoggedOut(), nil
	})
}

func (s *Store) update(fn func(Session) (Session, error)) error {
	s.mu.Lock()
	next, err := fn(s.session.Clone())
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.session = next
	snapshot := next.Clone()
	listeners := s.sortedListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot.Clone())
	}
	return nil
}

func (s *Store) sortedListeners() []Listener {
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	return listeners
}
