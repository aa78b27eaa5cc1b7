package sessions_test

import (
	"testing"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/stretchr/testify/require"
)

var testTokens = sessions.Tokens{AccessToken: "A1", RefreshToken: "R1", IDToken: "I1"}

var testClaims = sessions.Claims{
	ID:        "u1",
	Username:  "jdoe",
	FirstName: "Jane",
	LastName:  "Doe",
	Roles:     []string{"embajador"},
}

func authenticatedStore(t *testing.T) *sessions.Store {
	t.Helper()
	store := sessions.NewStore()
	require.NoError(t, store.LoginSucceeded(testTokens, testClaims))
	return store
}

func TestNewStore_StartsInitializing(t *testing.T) {
	store := sessions.NewStore()
	s := store.GetSession()

	require.True(t, s.Loading)
	require.False(t, s.Authenticated)
	require.Nil(t, s.AccessToken)
	require.Nil(t, s.RefreshToken)
	require.Nil(t, s.IDToken)
	require.Nil(t, s.Claims)
	require.Nil(t, s.Error)
	require.Equal(t, sessions.StatusInitializing, s.Status())
}

func TestStore_LoginSucceeded(t *testing.T) {
	store := authenticatedStore(t)
	s := store.GetSession()

	require.True(t, s.Authenticated)
	require.False(t, s.Loading)
	require.Equal(t, "A1", *s.AccessToken)
	require.Equal(t, "R1", *s.RefreshToken)
	require.Equal(t, "I1", *s.IDToken)
	require.Equal(t, testClaims, *s.Claims)
	require.Nil(t, s.Error)
	require.Equal(t, sessions.StatusAuthenticated, s.Status())
}

func TestStore_LoginSucceededRejectsPartialCredentials(t *testing.T) {
	store := sessions.NewStore()

	err := store.LoginSucceeded(sessions.Tokens{AccessToken: "A1"}, testClaims)
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.ErrIncompleteCredentials))

	s := store.GetSession()
	require.False(t, s.Authenticated)
	require.Nil(t, s.AccessToken)
}

func TestStore_InitFailed(t *testing.T) {
	store := authenticatedStore(t)
	store.InitFailed("fetch failed")
	s := store.GetSession()

	require.False(t, s.Authenticated)
	require.False(t, s.Loading)
	require.Nil(t, s.AccessToken)
	require.Nil(t, s.RefreshToken)
	require.Nil(t, s.Claims)
	require.Equal(t, "fetch failed", *s.Error)
	require.Equal(t, sessions.StatusFailed, s.Status())
}

func TestStore_CheckStartedClearsError(t *testing.T) {
	store := sessions.NewStore()
	store.InitFailed("boom")
	store.CheckStarted()
	s := store.GetSession()

	require.True(t, s.Loading)
	require.Nil(t, s.Error)
}

func TestStore_TokenRefreshed(t *testing.T) {
	t.Run("replaces every token and keeps claims", func(t *testing.T) {
		store := authenticatedStore(t)

		require.NoError(t, store.TokenRefreshed(sessions.Tokens{AccessToken: "A2", RefreshToken: "R2"}, nil))
		s := store.GetSession()

		require.True(t, s.Authenticated)
		require.Equal(t, "A2", *s.AccessToken)
		require.Equal(t, "R2", *s.RefreshToken)
		require.Nil(t, s.IDToken, "the previous id token must not survive a rotation that omits it")
		require.Equal(t, testClaims, *s.Claims)
	})

	t.Run("replaces claims when given", func(t *testing.T) {
		store := authenticatedStore(t)
		updated := testClaims
		updated.Roles = []string{"admin"}

		require.NoError(t, store.TokenRefreshed(sessions.Tokens{AccessToken: "A2", RefreshToken: "R2"}, &updated))
		require.Equal(t, []string{"admin"}, store.GetSession().Claims.Roles)
	})

	t.Run("rejected when not authenticated", func(t *testing.T) {
		store := sessions.NewStore()
		store.LoggedOut()

		err := store.TokenRefreshed(sessions.Tokens{AccessToken: "A2", RefreshToken: "R2"}, nil)
		require.True(t, apperrors.Is(err, apperrors.ErrSessionNotActive))
		require.Nil(t, store.GetSession().AccessToken)
	})
}

func TestStore_RefreshFailedThenLoggedOutMatchesLogout(t *testing.T) {
	forced := authenticatedStore(t)
	forced.RefreshFailed("refresh rejected")
	require.NotNil(t, forced.GetSession().Error)
	forced.LoggedOut()

	explicit := authenticatedStore(t)
	explicit.LoggedOut()

	require.True(t, forced.GetSession().Equal(explicit.GetSession()))
	require.True(t, explicit.GetSession().Equal(sessions.LoggedOut()))
	require.Equal(t, sessions.StatusUnauthenticated, explicit.GetSession().Status())
}

func TestStore_SnapshotsAreIsolated(t *testing.T) {
	store := authenticatedStore(t)

	s := store.GetSession()
	*s.AccessToken = "tampered"
	s.Claims.Roles[0] = "tampered"

	fresh := store.GetSession()
	require.Equal(t, "A1", *fresh.AccessToken)
	require.Equal(t, []string{"embajador"}, fresh.Claims.Roles)
}

func TestStore_Subscribe(t *testing.T) {
	store := sessions.NewStore()

	var order []string
	var seen []sessions.Session
	unsubscribeFirst := store.Subscribe(func(s sessions.Session) {
		order = append(order, "first")
		seen = append(seen, s)
	})
	store.Subscribe(func(sessions.Session) { order = append(order, "second") })

	require.NoError(t, store.LoginSucceeded(testTokens, testClaims))
	require.Equal(t, []string{"first", "second"}, order)
	require.Len(t, seen, 1)
	require.True(t, seen[0].Authenticated)

	unsubscribeFirst()
	unsubscribeFirst()
	store.LoggedOut()
	require.Equal(t, []string{"first", "second", "second"}, order)
	require.Len(t, seen, 1)
}

func TestStore_FailedActionDoesNotNotify(t *testing.T) {
	store := sessions.NewStore()
	calls := 0
	store.Subscribe(func(sessions.Session) { calls++ })

	require.Error(t, store.TokenRefreshed(sessions.Tokens{AccessToken: "A2", RefreshToken: "R2"}, nil))
	require.Zero(t, calls)
}
