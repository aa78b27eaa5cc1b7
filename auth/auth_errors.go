package auth

import apperrors "github.com/jrsteele09/go-auth-session/internal/errors"

// Failure kinds reported by the Synchronizer. Match with errors.Is.
var (
	NotAuthenticatedErr = apperrors.ErrNotAuthenticated
	AuthProviderErr     = apperrors.ErrAuthProvider
	RefreshFailureErr   = apperrors.ErrRefreshFailure
	SessionClosedErr    = apperrors.ErrSessionClosed
	SessionNotActiveErr = apperrors.ErrSessionNotActive
)
