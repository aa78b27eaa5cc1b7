package sessions

import (
	"slices"

	"github.com/jrsteele09/go-auth-session/internal/utils"
)

// Status is the lifecycle state derived from a Session.
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	StatusFailed          Status = "failed"
)

// Session is the application's view of the current user's authentication.
// Exactly one exists per running client; the Store owns it.
//
// Authenticated implies AccessToken, RefreshToken and Claims are all set.
// While Loading is true, Authenticated may be stale and must not be branched on.
type Session struct {
	Authenticated bool    `json:"authenticated"`
	Loading       bool    `json:"loading"`
	AccessToken   *string `json:"accessToken"`
	RefreshToken  *string `json:"refreshToken"`
	IDToken       *string `json:"idToken"`
	Claims        *Claims `json:"claims"`
	Error         *string `json:"error"`
}

// Tokens is the credential set issued by the identity provider. It is always
// applied to a Session as a unit.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
}

// Default is the Session a client starts with: a check is assumed to be pending.
func Default() Session {
	return Session{Loading: true}
}

// LoggedOut is the Session after an explicit or forced logout.
func LoggedOut() Session {
	return Session{}
}

// Status derives the lifecycle state.
func (s Session) Status() Status {
	switch {
	case s.Loading:
		return StatusInitializing
	case s.Authenticated:
		return StatusAuthenticated
	case s.Error != nil:
		return StatusFailed
	default:
		return StatusUnauthenticated
	}
}

// Tokens returns the credentials held by the session, empty strings where unset.
func (s Session) Tokens() Tokens {
	return Tokens{
		AccessToken:  utils.Value(s.AccessToken),
		RefreshToken: utils.Value(s.RefreshToken),
		IDToken:      utils.Value(s.IDToken),
	}
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (s Session) Clone() Session {
	c := s
	c.AccessToken = clonePtr(s.AccessToken)
	c.RefreshToken = clonePtr(s.RefreshToken)
	c.IDToken = clonePtr(s.IDToken)
	c.Error = clonePtr(s.Error)
	if s.Claims != nil {
		claims := s.Claims.Clone()
		c.Claims = &claims
	}
	return c
}

// Equal reports whether two sessions hold the same values.
func (s Session) Equal(o Session) bool {
	if s.Authenticated != o.Authenticated || s.Loading != o.Loading {
		return false
	}
	if !equalPtr(s.AccessToken, o.AccessToken) || !equalPtr(s.RefreshToken, o.RefreshToken) ||
		!equalPtr(s.IDToken, o.IDToken) || !equalPtr(s.Error, o.Error) {
		return false
	}
	if (s.Claims == nil) != (o.Claims == nil) {
		return false
	}
	return s.Claims == nil || s.Claims.Equal(*o.Claims)
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	return utils.Ptr(*p)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Claims are the identity attributes derived from the access token.
// Absent attributes are empty, never nil.
type Claims struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

func (c Claims) Clone() Claims {
	c.Roles = slices.Clone(c.Roles)
	if c.Roles == nil {
		c.Roles = []string{}
	}
	return c
}

func (c Claims) Equal(o Claims) bool {
	return c.ID == o.ID && c.Username == o.Username && c.Email == o.Email &&
		c.FirstName == o.FirstName && c.LastName == o.LastName && slices.Equal(c.Roles, o.Roles)
}

// HasRole reports whether the realm role is granted.
func (c Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}
