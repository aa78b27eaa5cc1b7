package token

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// ErrNotFound is returned by a Cache when no entry exists for a key.
var ErrNotFound = apperrors.ErrNotFound

// Entry is the credential set an identity client keeps between page loads
// (or process restarts, for a persistent cache).
type Entry struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Expiry       time.Time // access token expiry
	UpdatedAt    time.Time
}

// Valid reports whether the access token is present and not expired at now.
func (e Entry) Valid(now time.Time) bool {
	return e.AccessToken != "" && (e.Expiry.IsZero() || now.Before(e.Expiry))
}

// Cache stores identity-client tokens keyed by client (one entry per client ID).
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Upsert(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}
