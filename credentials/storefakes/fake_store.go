package fakestore

import (
	"errors"
	"sync"

	"github.com/shiftlyhq/shiftly-go/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store for tests, with optional
// failure injection for the write paths.
type FakeStore struct {
	values map[string]string
	lock   sync.RWMutex

	// FailSets makes every Set return a StorageError.
	FailSets bool
	// FailDeletes makes every Delete return a StorageError.
	FailDeletes bool
}

func NewFakeStore() *FakeStore {
	return &FakeStore{values: make(map[string]string)}
}

func (fs *FakeStore) Get(key string) (string, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	value, ok := fs.values[key]
	return value, ok
}

func (fs *FakeStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.FailSets {
		return &credentials.StorageError{Op: "set", Key: key, Err: errors.New("storage unavailable")}
	}
	fs.values[key] = value
	return nil
}

func (fs *FakeStore) Delete(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.FailDeletes {
		return &credentials.StorageError{Op: "delete", Key: key, Err: errors.New("storage unavailable")}
	}
	delete(fs.values, key)
	return nil
}

// Len reports how many entries the store currently holds.
func (fs *FakeStore) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	return len(fs.values)
}
