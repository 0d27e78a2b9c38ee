// Package session orchestrates the user-facing authentication lifecycle:
// login, registration, logout, restoration at startup, and profile updates.
// The manager owns the in-memory view of the current session and the
// observable authentication state machine.
package session

import (
	"github.com/shiftlyhq/shiftly-go/account"
)

// State is the authentication state observed by the rest of the application.
type State int

const (
	// StateUnauthenticated means no session is active.
	StateUnauthenticated State = iota
	// StateAuthenticating is the transient state during login, registration
	// or restoration.
	StateAuthenticating
	// StateAuthenticated means a full session is active and persisted.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Session is the full authenticated state held for the current device user.
// It is either fully present, with all four attributes persisted, or absent.
type Session struct {
	AccessToken  string
	RefreshToken string
	Kind         account.Kind
	Profile      *account.Profile
}
