package config

import (
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// CallbackPath is where the identity provider sends the browser back after login.
const CallbackPath = "/auth/callback"

type IdentityConfig interface {
	GetProviderURL() string
	GetRealm() string
	GetClientID() string
	GetClientSecret() string
	GetScopes() []string
	GetIssuerURL() string
	GetRedirectURL() string
	GetPostLogoutRedirectURL() string
}

// Identity holds the Keycloak connection settings. A public client (no secret) is the
// default, matching a browser-facing application.
type Identity struct {
	ProviderURL  string   `env:"KEYCLOAK_URL,required,notEmpty"`
	Realm        string   `env:"KEYCLOAK_REALM,required,notEmpty"`
	ClientID     string   `env:"KEYCLOAK_CLIENT_ID,required,notEmpty"`
	ClientSecret string   `env:"KEYCLOAK_CLIENT_SECRET"`
	Scopes       []string `env:"KEYCLOAK_SCOPES" envSeparator:"," envDefault:"openid,profile,email"`

	// AppURL mirrors EnvVars.AppURL so redirect URIs can be derived here.
	AppURL string `env:"APP_URL" envDefault:"http://localhost:8080"`
}

var _ IdentityConfig = Identity{}

func (i Identity) GetProviderURL() string {
	return strings.TrimRight(i.ProviderURL, "/")
}

func (i Identity) GetRealm() string {
	return i.Realm
}

func (i Identity) GetClientID() string {
	return i.ClientID
}

func (i Identity) GetClientSecret() string {
	return i.ClientSecret
}

func (i Identity) GetScopes() []string {
	scopes := make([]string, 0, len(i.Scopes))
	for _, s := range i.Scopes {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// GetIssuerURL returns the realm issuer, e.g. "https://auth.example.com/realms/acme".
func (i Identity) GetIssuerURL() string {
	return i.GetProviderURL() + "/realms/" + i.Realm
}

func (i Identity) GetRedirectURL() string {
	return strings.TrimRight(i.AppURL, "/") + CallbackPath
}

func (i Identity) GetPostLogoutRedirectURL() string {
	return strings.TrimRight(i.AppURL, "/") + "/"
}

func (i Identity) validate() error {
	if _, err := parseAbsoluteURL(i.ProviderURL); err != nil {
		return apperrors.Join(apperrors.ErrInvalidConfig, fmt.Errorf("KEYCLOAK_URL: %w", err))
	}
	if strings.ContainsAny(i.Realm, "/?#") {
		return apperrors.Join(apperrors.ErrInvalidConfig, fmt.Errorf("KEYCLOAK_REALM %q contains URL delimiters", i.Realm))
	}
	return nil
}
