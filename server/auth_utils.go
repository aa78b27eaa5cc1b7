package server

import (
	"net/http"
	"sync"

	"github.com/jrsteele09/go-auth-session/identity"
)

// Redirects is the identity client's Navigator for a server-rendered shell. The
// client records where the browser should go next; the handler that triggered
// the login or logout takes the URL and issues the HTTP redirect.
type Redirects struct {
	mu      sync.Mutex
	pending string
}

func NewRedirects() *Redirects {
	return &Redirects{}
}

// Navigator returns the callback to hand to the identity client.
func (r *Redirects) Navigator() identity.Navigator {
	return r.Navigate
}

// Navigate records url as the pending redirect, replacing any earlier one.
func (r *Redirects) Navigate(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = url
}

// Take returns and clears the pending redirect; empty when there is none.
func (r *Redirects) Take() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	url := r.pending
	r.pending = ""
	return url
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
