// Package identity defines the contract between the session synchronizer and an
// external identity-provider client.
package identity

import (
	"context"
	"time"
)

// Tokens are the credentials the identity client currently holds.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	Expiry       time.Time // access token expiry
}

// UserInfo is the subset of the provider's userinfo response the application uses.
type UserInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
}

// Navigator performs the redirect side effect of an interactive login or logout.
// After it runs the application should assume the user has left the page.
type Navigator func(url string)

// Client is an identity-provider client. Implementations own the provider round
// trips; the caller owns the application session state.
type Client interface {
	// Init establishes whether a provider session exists for this client.
	Init(ctx context.Context) (bool, error)

	// Tokens returns the current credentials; zero when unauthenticated.
	Tokens() Tokens

	// ParsedClaims returns the decoded access token payload, nil when unauthenticated.
	ParsedClaims() map[string]any

	// LoadUserInfo fetches the user's profile from the provider.
	LoadUserInfo(ctx context.Context) (*UserInfo, error)

	// OnTokenNearExpiry registers fn to run once when the access token is within
	// margin of expiring. There is a single slot: registering again replaces the
	// previous callback. release cancels this registration if it has not fired.
	OnTokenNearExpiry(margin time.Duration, fn func()) (release func())

	// Refresh renews the tokens unless the access token stays valid for longer
	// than minValidity. It reports whether new tokens were obtained.
	Refresh(ctx context.Context, minValidity time.Duration) (bool, error)

	// Login starts the interactive login redirect.
	Login(ctx context.Context) error

	// Logout ends the provider session and redirects away from the application.
	Logout(ctx context.Context) error
}
