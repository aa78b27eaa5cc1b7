package identityfake

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
)

var _ identity.Client = (*FakeClient)(nil)

// RefreshResult scripts the outcome of one Refresh call.
type RefreshResult struct {
	Refreshed bool
	Tokens    identity.Tokens
	Claims    map[string]any // nil keeps the current claims
	Err       error
}

// FakeClient is a scriptable identity client. Near-expiry callbacks never fire on
// their own; tests trigger them with FireNearExpiry.
type FakeClient struct {
	lock sync.Mutex

	InitAuthenticated bool
	InitErr           error
	UserInfo          *identity.UserInfo
	UserInfoErr       error
	LoginErr          error
	LogoutErr         error
	CallbackErr       error

	// Navigator, when set, receives LoginURL on Login and LogoutURL on Logout.
	Navigator identity.Navigator
	LoginURL  string
	LogoutURL string

	tokens         identity.Tokens
	claims         map[string]any
	refreshResults []RefreshResult

	slot          *registration
	registrations int
	initCalls     int
	refreshCalls  int
	loginCalls    int
	logoutCalls   int
	callbackCalls int
	margins       []time.Duration

	// InitHook runs inside Init before it returns, e.g. to block on a channel.
	InitHook func(ctx context.Context)
}

type registration struct {
	fn func()
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// SetSession sets the tokens and claims the client reports.
func (c *FakeClient) SetSession(tokens identity.Tokens, claims map[string]any) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.tokens = tokens
	c.claims = maps.Clone(claims)
}

// QueueRefresh appends scripted Refresh outcomes.
func (c *FakeClient) QueueRefresh(results ...RefreshResult) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.refreshResults = append(c.refreshResults, results...)
}

func (c *FakeClient) Init(ctx context.Context) (bool, error) {
	c.lock.Lock()
	c.initCalls++
	hook := c.InitHook
	c.lock.Unlock()

	if hook != nil {
		hook(ctx)
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if c.InitErr != nil {
		return false, c.InitErr
	}
	return c.InitAuthenticated, nil
}

func (c *FakeClient) Tokens() identity.Tokens {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.tokens
}

func (c *FakeClient) ParsedClaims() map[string]any {
	c.lock.Lock()
	defer c.lock.Unlock()
	return maps.Clone(c.claims)
}

func (c *FakeClient) LoadUserInfo(ctx context.Context) (*identity.UserInfo, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.UserInfoErr != nil {
		return nil, c.UserInfoErr
	}
	if c.UserInfo == nil {
		return &identity.UserInfo{}, nil
	}
	info := *c.UserInfo
	return &info, nil
}

func (c *FakeClient) OnTokenNearExpiry(margin time.Duration, fn func()) func() {
	c.lock.Lock()
	defer c.lock.Unlock()

	reg := &registration{fn: fn}
	c.slot = reg
	c.registrations++
	c.margins = append(c.margins, margin)

	return func() {
		c.lock.Lock()
		defer c.lock.Unlock()
		if c.slot == reg {
			c.slot = nil
		}
	}
}

// FireNearExpiry runs the registered callback, as the real client would when the
// token enters its expiry window. It reports whether a callback was registered.
func (c *FakeClient) FireNearExpiry() bool {
	c.lock.Lock()
	reg := c.slot
	c.slot = nil
	c.lock.Unlock()

	if reg == nil {
		return false
	}
	reg.fn()
	return true
}

func (c *FakeClient) Refresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.refreshCalls++
	if len(c.refreshResults) == 0 {
		return false, nil
	}
	result := c.refreshResults[0]
	c.refreshResults = c.refreshResults[1:]
	if result.Err != nil {
		return false, result.Err
	}
	if result.Refreshed {
		c.tokens = result.Tokens
		if result.Claims != nil {
			c.claims = maps.Clone(result.Claims)
		}
	}
	return result.Refreshed, nil
}

func (c *FakeClient) Login(ctx context.Context) error {
	c.lock.Lock()
	c.loginCalls++
	err, navigate, url := c.LoginErr, c.Navigator, c.LoginURL
	c.lock.Unlock()

	if err == nil && navigate != nil {
		navigate(url)
	}
	return err
}

func (c *FakeClient) Logout(ctx context.Context) error {
	c.lock.Lock()
	c.logoutCalls++
	c.slot = nil
	c.tokens = identity.Tokens{}
	c.claims = nil
	err, navigate, url := c.LogoutErr, c.Navigator, c.LogoutURL
	c.lock.Unlock()

	if err == nil && navigate != nil {
		navigate(url)
	}
	return err
}

// HandleCallback completes a scripted login: unless CallbackErr is set, the next
// Init reports an authenticated provider session.
func (c *FakeClient) HandleCallback(ctx context.Context, state, code string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.callbackCalls++
	if c.CallbackErr != nil {
		return c.CallbackErr
	}
	c.InitAuthenticated = true
	return nil
}

// LiveRegistrations is 1 when a near-expiry callback is armed, else 0.
func (c *FakeClient) LiveRegistrations() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.slot == nil {
		return 0
	}
	return 1
}

// Registrations counts every OnTokenNearExpiry call.
func (c *FakeClient) Registrations() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.registrations
}

func (c *FakeClient) Margins() []time.Duration {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]time.Duration(nil), c.margins...)
}

func (c *FakeClient) InitCalls() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.initCalls
}

func (c *FakeClient) RefreshCalls() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.refreshCalls
}

func (c *FakeClient) LoginCalls() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.loginCalls
}

func (c *FakeClient) LogoutCalls() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.logoutCalls
}

func (c *FakeClient) CallbackCalls() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.callbackCalls
}

// ErrFetchFailed mimics a transport failure reaching the provider.
var ErrFetchFailed = errors.New("fetch failed")
