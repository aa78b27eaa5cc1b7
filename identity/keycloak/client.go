// Package keycloak is an identity.Client for a Keycloak realm (or any OpenID
// Connect provider that publishes discovery metadata).
package keycloak

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/config"
	apperrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/token"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	tracerName = "github.com/jrsteele09/go-auth-session/identity/keycloak"

	// DefaultLoginStateTTL bounds how long a login redirect may take to come back.
	DefaultLoginStateTTL = 10 * time.Minute
)

var _ identity.Client = (*Client)(nil)

// Client talks to the provider on behalf of a single application session.
type Client struct {
	cfg        config.IdentityConfig
	httpClient *http.Client
	cache      token.Cache
	navigate   identity.Navigator
	nowFunc    func() time.Time
	logger     zerolog.Logger
	tracer     trace.Tracer
	states     *loginStates
	stateTTL   time.Duration

	discoveryLock sync.Mutex
	discovered    *discovery

	mu         sync.Mutex
	tokens     identity.Tokens
	claims     map[string]any
	generation uint64 // bumped on logout; refreshes started before it are discarded
	expiry     *expiryTimer
	timerSeq   uint64
}

type discovery struct {
	provider      *oidc.Provider
	oauth2Config  *oauth2.Config
	verifier      *oidc.IDTokenVerifier
	endSessionURL string
}

type expiryTimer struct {
	id    uint64
	timer *time.Timer
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

// WithNavigator sets the redirect side effect for Login and Logout.
func WithNavigator(navigate identity.Navigator) Option {
	return func(c *Client) {
		c.navigate = navigate
	}
}

// WithHTTPClient sets the HTTP client used for every provider round trip.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCache sets where tokens are kept between restarts (defaults to memory).
func WithCache(cache token.Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithNowTime sets the function used to get the current time
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithLoginStateTTL bounds how long a pending login stays redeemable.
func WithLoginStateTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.stateTTL = ttl
	}
}

// New creates a client for the realm described by cfg. No network calls are made
// until the first operation that needs the provider.
func New(cfg config.IdentityConfig, options ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("[keycloak.New] identity config is required")
	}
	if cfg.GetClientID() == "" {
		return nil, apperrors.Join(apperrors.ErrInvalidConfig, errors.New("client id is required"))
	}
	if cfg.GetIssuerURL() == "" {
		return nil, apperrors.Join(apperrors.ErrInvalidConfig, errors.New("issuer url is required"))
	}

	c := &Client{
		cfg:        cfg,
		httpClient: http.DefaultClient,
		cache:      token.NewInMemoryCache(),
		nowFunc:    time.Now,
		logger:     zerolog.Nop(),
		tracer:     otel.Tracer(tracerName),
		stateTTL:   DefaultLoginStateTTL,
	}
	for _, option := range options {
		option(c)
	}
	if c.navigate == nil {
		c.navigate = func(u string) {
			c.logger.Warn().Str("url", u).Msg("no navigator configured, redirect dropped")
		}
	}
	c.states = newLoginStates(c.stateTTL, c.nowFunc)
	return c, nil
}

// Init establishes whether a session exists, from memory first and then from the
// token cache. An expired access token is renewed with its refresh token; when
// that fails the cache entry is dropped and the client reports no session.
func (c *Client) Init(ctx context.Context) (authenticated bool, err error) {
	ctx, span := c.tracer.Start(ctx, "keycloak.Init")
	defer func() { endSpan(span, err) }()

	if _, err := c.discover(ctx); err != nil {
		return false, err
	}

	c.mu.Lock()
	current := c.tokens
	c.mu.Unlock()

	if current.AccessToken == "" && current.RefreshToken == "" {
		entry, err := c.cache.Get(ctx, c.cacheKey())
		if errors.Is(err, token.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read token cache: %w", err)
		}
		current = identity.Tokens{
			AccessToken:  entry.AccessToken,
			RefreshToken: entry.RefreshToken,
			IDToken:      entry.IDToken,
			Expiry:       entry.Expiry,
		}
		span.SetAttributes(attribute.Bool("keycloak.cached", true))
	}

	current, _ = resolveTokens(current)
	valid := !current.Expiry.IsZero() && token.Entry{AccessToken: current.AccessToken, Expiry: current.Expiry}.Valid(c.nowFunc())
	if valid {
		c.mu.Lock()
		c.setTokensLocked(current)
		c.mu.Unlock()
		return true, nil
	}

	if current.RefreshToken == "" {
		c.clear()
		c.dropCache(ctx)
		return false, nil
	}

	c.mu.Lock()
	c.tokens = identity.Tokens{RefreshToken: current.RefreshToken, IDToken: current.IDToken}
	c.claims = nil
	c.mu.Unlock()

	if _, err := c.Refresh(ctx, 0); err != nil {
		c.logger.Info().Err(err).Msg("stored session could not be renewed")
		c.clear()
		c.dropCache(ctx)
		return false, nil
	}
	return true, nil
}

// Tokens returns the current credentials
func (c *Client) Tokens() identity.Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// ParsedClaims returns a copy of the access token payload
func (c *Client) ParsedClaims() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims == nil {
		return nil
	}
	return maps.Clone(c.claims)
}

// LoadUserInfo calls the provider's userinfo endpoint with the current access token.
func (c *Client) LoadUserInfo(ctx context.Context) (info *identity.UserInfo, err error) {
	ctx, span := c.tracer.Start(ctx, "keycloak.LoadUserInfo")
	defer func() { endSpan(span, err) }()

	d, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}

	accessToken := c.Tokens().AccessToken
	if accessToken == "" {
		return nil, apperrors.ErrNotAuthenticated
	}

	userInfo, err := d.provider.UserInfo(c.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return nil, fmt.Errorf("load user info: %w", err)
	}

	info = &identity.UserInfo{}
	if err := userInfo.Claims(info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return info, nil
}

// OnTokenNearExpiry arms a one-shot timer that calls fn when the access token is
// within margin of its expiry. A later registration replaces this one.
func (c *Client) OnTokenNearExpiry(margin time.Duration, fn func()) (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	c.timerSeq++
	id := c.timerSeq

	release = func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.expiry != nil && c.expiry.id == id {
			c.stopTimerLocked()
		}
	}

	if fn == nil {
		return release
	}
	// Refresh and login reject such tokens, so this only happens without a session.
	if c.tokens.Expiry.IsZero() {
		c.logger.Warn().Bool("has_access_token", c.tokens.AccessToken != "").Msg("access token expiry unknown, no refresh scheduled")
		return release
	}

	delay := max(c.tokens.Expiry.Sub(c.nowFunc())-margin, 0)
	c.expiry = &expiryTimer{id: id}
	c.expiry.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.expiry == nil || c.expiry.id != id {
			c.mu.Unlock()
			return
		}
		c.expiry = nil
		c.mu.Unlock()
		fn()
	})
	return release
}

// Refresh renews the tokens with the refresh-token grant unless the access
// token is still valid for longer than minValidity.
func (c *Client) Refresh(ctx context.Context, minValidity time.Duration) (refreshed bool, err error) {
	ctx, span := c.tracer.Start(ctx, "keycloak.Refresh")
	defer func() { endSpan(span, err) }()

	c.mu.Lock()
	current := c.tokens
	generation := c.generation
	c.mu.Unlock()

	if current.RefreshToken == "" {
		return false, apperrors.Join(apperrors.ErrRefreshFailure, apperrors.ErrNoRefreshToken)
	}
	if current.AccessToken != "" && !current.Expiry.IsZero() && current.Expiry.Sub(c.nowFunc()) > minValidity {
		return false, nil
	}

	d, err := c.discover(ctx)
	if err != nil {
		return false, apperrors.Join(apperrors.ErrRefreshFailure, err)
	}

	refreshedToken, err := d.oauth2Config.TokenSource(c.clientContext(ctx), &oauth2.Token{
		RefreshToken: current.RefreshToken,
	}).Token()
	if err != nil {
		return false, apperrors.Join(apperrors.ErrRefreshFailure, err)
	}

	next := tokensFrom(refreshedToken)
	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	if next.IDToken == "" {
		next.IDToken = current.IDToken
	}
	if next, _ = resolveTokens(next); next.Expiry.IsZero() {
		return false, apperrors.Join(apperrors.ErrRefreshFailure, apperrors.ErrMissingExpiry)
	}

	c.mu.Lock()
	if c.generation != generation {
		c.mu.Unlock()
		return false, apperrors.Join(apperrors.ErrRefreshFailure, apperrors.ErrSessionNotActive)
	}
	c.setTokensLocked(next)
	c.mu.Unlock()

	c.saveCache(ctx, next)
	return true, nil
}

// LoginURL prepares a pending login (state, nonce and PKCE verifier) and returns
// the provider's authorization URL for it.
func (c *Client) LoginURL(ctx context.Context) (string, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return "", err
	}

	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	if err := c.states.put(state, loginState{
		CodeVerifier: verifier,
		Nonce:        nonce,
		CreatedAt:    c.nowFunc(),
	}); err != nil {
		return "", err
	}

	return d.oauth2Config.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier)), nil
}

// Login navigates to the provider's login page.
func (c *Client) Login(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, "keycloak.Login")
	defer func() { endSpan(span, err) }()

	loginURL, err := c.LoginURL(ctx)
	if err != nil {
		return err
	}
	c.navigate(loginURL)
	return nil
}

// HandleCallback completes a login: it redeems the pending state, exchanges the
// code with its PKCE verifier, verifies the ID token and its nonce, and stores
// the resulting tokens.
func (c *Client) HandleCallback(ctx context.Context, state, code string) (err error) {
	ctx, span := c.tracer.Start(ctx, "keycloak.HandleCallback")
	defer func() { endSpan(span, err) }()

	pending, ok := c.states.take(state)
	if !ok {
		return apperrors.ErrInvalidState
	}
	if code == "" {
		return errors.New("authorization code is required")
	}

	d, err := c.discover(ctx)
	if err != nil {
		return err
	}

	clientCtx := c.clientContext(ctx)
	oauth2Token, err := d.oauth2Config.Exchange(clientCtx, code, oauth2.VerifierOption(pending.CodeVerifier))
	if err != nil {
		return apperrors.Join(apperrors.ErrAuthProvider, fmt.Errorf("token exchange failed: %w", err))
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return apperrors.ErrMissingIDToken
	}

	idToken, err := d.verifier.Verify(clientCtx, rawIDToken)
	if err != nil {
		return apperrors.Join(apperrors.ErrAuthProvider, fmt.Errorf("id token verification failed: %w", err))
	}
	if idToken.Nonce != pending.Nonce {
		return apperrors.ErrInvalidNonce
	}

	var idClaims map[string]any
	if err := idToken.Claims(&idClaims); err != nil {
		return fmt.Errorf("failed to extract id token claims: %w", err)
	}

	tokens, _ := resolveTokens(tokensFrom(oauth2Token))
	if tokens.Expiry.IsZero() {
		return apperrors.Join(apperrors.ErrAuthProvider, apperrors.ErrMissingExpiry)
	}
	c.mu.Lock()
	c.setTokensLocked(tokens)
	if c.claims == nil {
		c.claims = idClaims
	}
	c.mu.Unlock()

	c.saveCache(ctx, tokens)
	c.logger.Info().Str("sub", idToken.Subject).Msg("login completed")
	return nil
}

// EndSessionURL builds the provider logout URL for idTokenHint.
func (c *Client) EndSessionURL(ctx context.Context, idTokenHint string) (string, error) {
	d, err := c.discover(ctx)
	if err != nil {
		return "", err
	}
	if d.endSessionURL == "" {
		return c.cfg.GetPostLogoutRedirectURL(), nil
	}

	u, err := url.Parse(d.endSessionURL)
	if err != nil {
		return "", fmt.Errorf("parse end_session_endpoint: %w", err)
	}
	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	q.Set("client_id", c.cfg.GetClientID())
	q.Set("post_logout_redirect_uri", c.cfg.GetPostLogoutRedirectURL())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Logout forgets the local tokens and navigates to the provider's end-session page.
func (c *Client) Logout(ctx context.Context) (err error) {
	ctx, span := c.tracer.Start(ctx, "keycloak.Logout")
	defer func() { endSpan(span, err) }()

	idTokenHint := c.clear()
	c.dropCache(ctx)

	logoutURL, err := c.EndSessionURL(ctx, idTokenHint)
	if err != nil {
		return err
	}
	c.navigate(logoutURL)
	return nil
}

// discover resolves provider metadata once; failures are retried on the next call.
func (c *Client) discover(ctx context.Context) (*discovery, error) {
	c.discoveryLock.Lock()
	defer c.discoveryLock.Unlock()

	if c.discovered != nil {
		return c.discovered, nil
	}

	provider, err := oidc.NewProvider(c.clientContext(ctx), c.cfg.GetIssuerURL())
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrProviderNotReady, err)
	}

	var metadata struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return nil, apperrors.Join(apperrors.ErrProviderNotReady, err)
	}

	scopes := c.cfg.GetScopes()
	if !slices.Contains(scopes, oidc.ScopeOpenID) {
		scopes = append([]string{oidc.ScopeOpenID}, scopes...)
	}

	c.discovered = &discovery{
		provider: provider,
		oauth2Config: &oauth2.Config{
			ClientID:     c.cfg.GetClientID(),
			ClientSecret: c.cfg.GetClientSecret(),
			Endpoint:     provider.Endpoint(),
			RedirectURL:  c.cfg.GetRedirectURL(),
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{
			ClientID: c.cfg.GetClientID(),
			Now:      c.nowFunc,
		}),
		endSessionURL: metadata.EndSessionEndpoint,
	}
	return c.discovered, nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, c.httpClient)
}

func (c *Client) cacheKey() string {
	return c.cfg.GetClientID()
}

// setTokensLocked stores tokens along with their decoded payload.
func (c *Client) setTokensLocked(tokens identity.Tokens) {
	c.tokens, c.claims = resolveTokens(tokens)
}

// resolveTokens decodes the access token payload, falling back to the ID token
// for opaque access tokens, and fills a missing expiry from its exp claim.
func resolveTokens(tokens identity.Tokens) (identity.Tokens, map[string]any) {
	claims, err := token.ParseClaims(tokens.AccessToken)
	if err != nil {
		claims, _ = token.ParseClaims(tokens.IDToken)
	}
	if tokens.Expiry.IsZero() {
		tokens.Expiry = token.ExpiryFromClaims(claims)
	}
	return tokens, claims
}

// clear drops the in-memory session and returns the ID token it held.
func (c *Client) clear() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	idToken := c.tokens.IDToken
	c.tokens = identity.Tokens{}
	c.claims = nil
	c.generation++
	c.stopTimerLocked()
	return idToken
}

func (c *Client) stopTimerLocked() {
	if c.expiry == nil {
		return
	}
	if c.expiry.timer != nil {
		c.expiry.timer.Stop()
	}
	c.expiry = nil
}

func (c *Client) saveCache(ctx context.Context, tokens identity.Tokens) {
	err := c.cache.Upsert(ctx, c.cacheKey(), token.Entry{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		IDToken:      tokens.IDToken,
		Expiry:       tokens.Expiry,
		UpdatedAt:    c.nowFunc(),
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to write token cache")
	}
}

func (c *Client) dropCache(ctx context.Context) {
	if err := c.cache.Delete(ctx, c.cacheKey()); err != nil {
		c.logger.Warn().Err(err).Msg("failed to clear token cache")
	}
}

func tokensFrom(t *oauth2.Token) identity.Tokens {
	idToken, _ := t.Extra("id_token").(string)
	return identity.Tokens{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		IDToken:      idToken,
		Expiry:       t.Expiry,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
