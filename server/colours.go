package server

import (
	"fmt"

	"github.com/jrsteele09/go-auth-session/sessions"
)

// ANSI colours for DEV console output
const (
	Red        = "\033[31m"
	Green      = "\033[32m"
	Yellow     = "\033[33m"
	Blue       = "\033[34m"
	Cyan       = "\033[36m"
	Gray       = "\033[90m"
	ResetColor = "\033[0m"
)

// the shell only routes GET and POST
var methodColors = map[string]string{
	"GET":  Green,
	"POST": Blue,
}

var sessionStatusColors = map[sessions.Status]string{
	sessions.StatusAuthenticated:   Green,
	sessions.StatusInitializing:    Cyan,
	sessions.StatusUnauthenticated: Yellow,
	sessions.StatusFailed:          Red,
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}

// colourSessionStatus renders the session status a request was served under.
func colourSessionStatus(status sessions.Status) string {
	color, ok := sessionStatusColors[status]
	if !ok {
		color = Gray
	}
	return color + string(status) + ResetColor
}
