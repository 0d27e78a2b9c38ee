package transport

import (
	"errors"
	"fmt"
)

// ErrAuthExpired reports that a refresh cycle could not restore a valid
// session. The stored credentials have already been cleared when this is
// returned; the caller is expected to route the user back to sign-in.
var ErrAuthExpired = errors.New("session expired, sign in again")

// APIError is a non-2xx response from the backend, carrying whatever the
// response envelope said about it.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// NetworkError is a transport-level failure: no connectivity, DNS, timeout.
// Never retried by this layer outside the single refresh case.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network failure: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
