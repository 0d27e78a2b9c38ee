// Package credentials defines the secure store capability the access layer
// persists session secrets into. Implementations live in subpackages; the
// interface is injected into both the transport and the session manager so
// tests can substitute an in-memory fake.
package credentials

import "fmt"

// Storage keys. A persisted session is exactly these four entries; they are
// written and cleared together so callers never observe a partial session.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyAccountKind  = "account_kind"
	KeyProfile      = "profile"
)

// SessionKeys lists every key belonging to the persisted session record.
func SessionKeys() []string {
	return []string{KeyAccessToken, KeyRefreshToken, KeyAccountKind, KeyProfile}
}

// Store persists small sensitive strings beyond process lifetime.
//
// Get reports absence instead of failing: a read error and a missing key are
// indistinguishable to callers, which treat either as "no credential".
// Set overwrites and returns a *StorageError when the backing storage is
// unavailable. Delete is idempotent. No operation retries; the caller decides
// whether the parent operation can survive a failure.
type Store interface {
	Get(key string) (value string, ok bool)
	Set(key, value string) error
	Delete(key string) error
}

// StorageError reports that the backing storage refused a write or delete.
// Fatal to the auth operation in progress: a session that cannot be persisted
// must not be reported as established.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credential store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Clear removes every session entry from the store. Used by logout and by the
// transport when a refresh cycle fails terminally.
func Clear(s Store) error {
	var firstErr error
	for _, key := range SessionKeys() {
		if err := s.Delete(key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
