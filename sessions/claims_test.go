package sessions_test

import (
	"testing"

	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/stretchr/testify/require"
)

func TestClaimsFromToken(t *testing.T) {
	t.Run("maps keycloak claims", func(t *testing.T) {
		claims := sessions.ClaimsFromToken(map[string]any{
			"sub":                "u1",
			"preferred_username": "jdoe",
			"email":              "jane@example.com",
			"given_name":         "Jane",
			"family_name":        "Doe",
			"realm_access":       map[string]any{"roles": []any{"embajador", 42, "viewer"}},
		})

		require.Equal(t, sessions.Claims{
			ID:        "u1",
			Username:  "jdoe",
			Email:     "jane@example.com",
			FirstName: "Jane",
			LastName:  "Doe",
			Roles:     []string{"embajador", "viewer"},
		}, claims)
		require.True(t, claims.HasRole("viewer"))
	})

	t.Run("absent fields default to empty values", func(t *testing.T) {
		claims := sessions.ClaimsFromToken(map[string]any{"sub": "u1", "email": 7})

		require.Equal(t, "u1", claims.ID)
		require.Equal(t, "", claims.Email)
		require.Equal(t, "", claims.Username)
		require.NotNil(t, claims.Roles)
		require.Empty(t, claims.Roles)
	})

	t.Run("nil payload", func(t *testing.T) {
		claims := sessions.ClaimsFromToken(nil)
		require.NotNil(t, claims.Roles)
		require.Empty(t, claims.ID)
	})
}

func TestClaims_FillMissing(t *testing.T) {
	claims := sessions.Claims{ID: "u1", FirstName: "Jane", Roles: []string{}}
	filled := claims.FillMissing(sessions.Claims{ID: "other", Email: "jane@example.com", FirstName: "Janet", LastName: "Doe"})

	require.Equal(t, "u1", filled.ID)
	require.Equal(t, "Jane", filled.FirstName)
	require.Equal(t, "jane@example.com", filled.Email)
	require.Equal(t, "Doe", filled.LastName)
}
