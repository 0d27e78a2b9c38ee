package session

import "errors"

const (
	genericAuthFailedMsg    = "authentication failed"
	genericProfileFailedMsg = "profile update failed"
)

var (
	// ErrInvalidAccountKind reports an account kind outside the closed set.
	ErrInvalidAccountKind = errors.New("invalid account kind")
	// ErrNotAuthenticated reports an operation that requires an active session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// AuthFailedError reports credentials rejected at login or registration.
// Recoverable: the user may retry with different input.
type AuthFailedError struct {
	Message string
}

func (e *AuthFailedError) Error() string {
	if e.Message == "" {
		return genericAuthFailedMsg
	}
	return e.Message
}

// ProfileUpdateError reports a profile write rejected by the server.
type ProfileUpdateError struct {
	Message string
}

func (e *ProfileUpdateError) Error() string {
	if e.Message == "" {
		return genericProfileFailedMsg
	}
	return e.Message
}

// ValidationError reports a well-formed HTTP response whose body did not
// match the expected shape. Always constructed locally.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "malformed server response: " + e.Message
}
