package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-session/internal/utils"
)

// IndexHandler renders the home page for an authenticated session
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		session, _ := SessionFromContext(r.Context())
		claims := utils.Value(session.Claims)
		renderPage(w, r, http.StatusOK, tmpl, s.pageData(func(p *pageData) {
			p.Claims = claims
		}))
	}
}
