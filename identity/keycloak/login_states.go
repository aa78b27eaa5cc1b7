package keycloak

import (
	"errors"
	"sync"
	"time"
)

// loginState is what the client remembers between sending the browser to the
// provider and receiving the callback.
type loginState struct {
	CodeVerifier string
	Nonce        string
	CreatedAt    time.Time
}

// loginStates is a thread-safe, TTL-bounded store of pending logins keyed by the
// OAuth state parameter. Entries are single use.
type loginStates struct {
	mu      sync.Mutex
	states  map[string]loginState
	ttl     time.Duration
	nowFunc func() time.Time
}

func newLoginStates(ttl time.Duration, nowFunc func() time.Time) *loginStates {
	return &loginStates{
		states:  make(map[string]loginState),
		ttl:     ttl,
		nowFunc: nowFunc,
	}
}

// put stores a pending login and drops any that have expired
func (r *loginStates) put(state string, s loginState) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.pruneLocked()
	r.states[state] = s
	return nil
}

// take removes and returns the pending login for state. Expired entries are
// reported as missing.
func (r *loginStates) take(state string) (loginState, bool) {
	if state == "" {
		return loginState{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[state]
	if !ok {
		return loginState{}, false
	}
	delete(r.states, state)
	if r.expired(s) {
		return loginState{}, false
	}
	return s, true
}

func (r *loginStates) pruneLocked() {
	for k, s := range r.states {
		if r.expired(s) {
			delete(r.states, k)
		}
	}
}

func (r *loginStates) expired(s loginState) bool {
	return r.nowFunc().Sub(s.CreatedAt) > r.ttl
}
