package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for session synchronization
var (
	// Initialization outcomes
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrAuthProvider     = errors.New("auth provider error")

	// Refresh outcomes
	ErrRefreshFailure = errors.New("token refresh failed")

	// Session state errors
	ErrIncompleteCredentials = errors.New("incomplete credentials")
	ErrSessionNotActive      = errors.New("session not active")
	ErrSessionClosed         = errors.New("session synchronizer closed")

	// Identity client errors
	ErrProviderNotReady = errors.New("identity provider not initialised")
	ErrInvalidState     = errors.New("invalid state parameter")
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrMissingIDToken   = errors.New("no id token in response")
	ErrNoRefreshToken   = errors.New("no refresh token")
	ErrMissingExpiry    = errors.New("access token expiry unknown")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join wraps cause with a taxonomy sentinel so that both match errors.Is
func Join(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
