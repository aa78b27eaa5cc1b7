package server

import "github.com/jrsteele09/go-auth-session/internal/config"

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex = "/"

	// Auth Routes - Login & Logout
	RouteAuthLogin    = "/auth/login"
	RouteAuthLogout   = "/auth/logout"
	RouteAuthCallback = config.CallbackPath
	RouteAuthSession  = "/auth/session"

	// API Routes
	RouteAPIHealth = "/api/health"
)
