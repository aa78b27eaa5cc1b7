package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-auth-session/sessions"
	"github.com/jrsteele09/go-auth-session/internal/utils"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the authenticated sessions.Session
const ContextKeySession ContextKey = "session"

// loadingRetryAfter is how long the waiting page asks the browser to wait, in seconds.
const loadingRetryAfter = 1

// pageData is the template model shared by the HTML pages
type pageData struct {
	AppName   string
	Refresh   int
	Claims    sessions.Claims
	Error     string
	LoginURL  string
	LogoutURL string
}

// SessionFromContext returns the session RequireSession admitted the request with.
func SessionFromContext(ctx context.Context) (sessions.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(sessions.Session)
	return session, ok
}

// RequireSession gates HTML routes on the application session. Children only run
// once the session is authenticated; until then the browser sees a waiting page,
// an error page, or is sent to the provider's login.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	loading := mustParseTemplate("loading.html")
	failed := mustParseTemplate("error.html")

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session := s.store.GetSession()

			if session.Status() == sessions.StatusUnauthenticated {
				// errors are reflected in the session; the branch below renders them
				session, _ = s.sync.CheckSession(r.Context())
			}

			switch session.Status() {
			case sessions.StatusAuthenticated:
				ctx := context.WithValue(r.Context(), ContextKeySession, session)
				next(w, r.WithContext(ctx))

			case sessions.StatusInitializing:
				w.Header().Set("Retry-After", strconv.Itoa(loadingRetryAfter))
				renderPage(w, r, http.StatusServiceUnavailable, loading, s.pageData(func(p *pageData) {
					p.Refresh = loadingRetryAfter
				}))

			case sessions.StatusFailed:
				renderPage(w, r, http.StatusInternalServerError, failed, s.pageData(func(p *pageData) {
					p.Error = utils.Value(session.Error)
				}))

			default:
				if url := s.redirects.Take(); url != "" {
					redirectSuccess(w, r, url)
					return
				}
				redirectSuccess(w, r, RouteAuthLogin)
			}
		}
	}
}

func (s *Server) pageData(fns ...func(*pageData)) pageData {
	p := pageData{
		AppName:   s.config.GetAppName(),
		LoginURL:  RouteAuthLogin,
		LogoutURL: RouteAuthLogout,
	}
	for _, fn := range fns {
		fn(&p)
	}
	return p
}
