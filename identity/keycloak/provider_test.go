package keycloak_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	testRealm    = "test"
	testClientID = "web-app"
	testKeyID    = "test-key"
)

type pendingCode struct {
	nonce     string
	challenge string
}

// fakeProvider is a minimal Keycloak realm: discovery, JWKS, token, userinfo and
// end-session endpoints backed by an in-process RSA key.
type fakeProvider struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu             sync.Mutex
	accessTTL      time.Duration
	codes          map[string]pendingCode
	refreshTokens  map[string]string // refresh token -> subject
	failRefresh    bool
	wrongNonce     bool
	omitIDToken    bool
	opaqueTokens   bool // opaque access tokens, no expires_in
	tokenCalls     int
	refreshCalls   int
	discoveryCalls int
	roles          []string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakeProvider{
		t:             t,
		key:           key,
		accessTTL:     5 * time.Minute,
		codes:         make(map[string]pendingCode),
		refreshTokens: make(map[string]string),
		roles:         []string{"embajador"},
	}

	realm := "/realms/" + testRealm
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+realm+"/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET "+realm+"/protocol/openid-connect/certs", p.jwks)
	mux.HandleFunc("POST "+realm+"/protocol/openid-connect/token", p.token)
	mux.HandleFunc("GET "+realm+"/protocol/openid-connect/userinfo", p.userinfo)

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) URL() string {
	return p.server.URL
}

func (p *fakeProvider) issuer() string {
	return p.server.URL + "/realms/" + testRealm
}

func (p *fakeProvider) endSessionEndpoint() string {
	return p.issuer() + "/protocol/openid-connect/logout"
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakeProvider) counts() (token, refresh, discovery int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls, p.refreshCalls, p.discoveryCalls
}

// Authorize plays the provider's login page: it reads the authorization URL the
// client navigated to and returns a code for it along with the echoed state.
func (p *fakeProvider) Authorize(loginURL string) (code, state string) {
	p.t.Helper()

	u, err := url.Parse(loginURL)
	require.NoError(p.t, err)
	q := u.Query()
	require.Equal(p.t, "S256", q.Get("code_challenge_method"))
	require.Equal(p.t, testClientID, q.Get("client_id"))

	code = uuid.NewString()
	p.mu.Lock()
	p.codes[code] = pendingCode{nonce: q.Get("nonce"), challenge: q.Get("code_challenge")}
	p.mu.Unlock()
	return code, q.Get("state")
}

// IssueRefreshToken registers a refresh token the token endpoint will honour.
func (p *fakeProvider) IssueRefreshToken(subject string) string {
	rt := "refresh-" + uuid.NewString()
	p.mu.Lock()
	p.refreshTokens[rt] = subject
	p.mu.Unlock()
	return rt
}

// AccessToken mints an access token for subject that expires at exp.
func (p *fakeProvider) AccessToken(subject string, exp time.Time) string {
	p.mu.Lock()
	roles := append([]string(nil), p.roles...)
	p.mu.Unlock()
	return p.accessTokenFor(subject, exp, roles)
}

func (p *fakeProvider) accessTokenFor(subject string, exp time.Time, roles []string) string {
	return p.sign(jwtlib.MapClaims{
		"iss":                p.issuer(),
		"sub":                subject,
		"azp":                testClientID,
		"jti":                uuid.NewString(),
		"typ":                "Bearer",
		"exp":                exp.Unix(),
		"iat":                time.Now().Unix(),
		"preferred_username": "jdoe",
		"email":              "jdoe@example.com",
		"given_name":         "Jane",
		"family_name":        "Doe",
		"realm_access":       map[string]any{"roles": roles},
	})
}

func (p *fakeProvider) idToken(subject, nonce string, exp time.Time) string {
	claims := jwtlib.MapClaims{
		"iss": p.issuer(),
		"sub": subject,
		"aud": testClientID,
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	return p.sign(claims)
}

func (p *fakeProvider) sign(claims jwtlib.MapClaims) string {
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(p.key)
	if err != nil {
		panic(fmt.Sprintf("sign token: %v", err))
	}
	return signed
}

func (p *fakeProvider) discovery(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.discoveryCalls++
	p.mu.Unlock()

	base := p.issuer() + "/protocol/openid-connect"
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.issuer(),
		"authorization_endpoint":                base + "/auth",
		"token_endpoint":                        base + "/token",
		"userinfo_endpoint":                     base + "/userinfo",
		"jwks_uri":                              base + "/certs",
		"end_session_endpoint":                  p.endSessionEndpoint(),
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"S256"},
	})
}

func (p *fakeProvider) jwks(w http.ResponseWriter, r *http.Request) {
	pub := p.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKeyID,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenCalls++

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		pending, ok := p.codes[r.PostForm.Get("code")]
		delete(p.codes, r.PostForm.Get("code"))
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != pending.challenge {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "PKCE verification failed"})
			return
		}
		nonce := pending.nonce
		if p.wrongNonce {
			nonce = "not-the-nonce"
		}
		p.writeTokensLocked(w, "user-1", nonce)

	case "refresh_token":
		p.refreshCalls++
		subject, ok := p.refreshTokens[r.PostForm.Get("refresh_token")]
		if !ok || p.failRefresh {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Token is not active"})
			return
		}
		delete(p.refreshTokens, r.PostForm.Get("refresh_token"))
		p.writeTokensLocked(w, subject, "")

	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (p *fakeProvider) writeTokensLocked(w http.ResponseWriter, subject, nonce string) {
	exp := time.Now().Add(p.accessTTL)

	refresh := "refresh-" + uuid.NewString()
	p.refreshTokens[refresh] = subject

	body := map[string]any{
		"token_type":    "Bearer",
		"refresh_token": refresh,
	}
	if p.opaqueTokens {
		body["access_token"] = "opaque-" + uuid.NewString()
	} else {
		body["access_token"] = p.accessTokenFor(subject, exp, p.roles)
		body["expires_in"] = int(p.accessTTL.Seconds())
	}
	if !p.omitIDToken {
		body["id_token"] = p.idToken(subject, nonce, exp)
	}
	writeJSON(w, http.StatusOK, body)
}

func (p *fakeProvider) userinfo(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sub":                "user-1",
		"preferred_username": "jdoe",
		"email":              "jdoe@example.com",
		"email_verified":     true,
		"given_name":         "Jane",
		"family_name":        "Doe",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		panic(fmt.Sprintf("encode response: %v", err))
	}
}
