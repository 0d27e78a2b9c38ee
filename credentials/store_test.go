package credentials_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftlyhq/shiftly-go/credentials"
	fakestore "github.com/shiftlyhq/shiftly-go/credentials/storefakes"
)

func TestClearRemovesEverySessionKey(t *testing.T) {
	store := fakestore.NewFakeStore()
	for _, key := range credentials.SessionKeys() {
		require.NoError(t, store.Set(key, "value"))
	}

	require.NoError(t, credentials.Clear(store))
	assert.Equal(t, 0, store.Len())
}

func TestClearOnEmptyStoreSucceeds(t *testing.T) {
	store := fakestore.NewFakeStore()
	assert.NoError(t, credentials.Clear(store))
}

func TestClearReportsFirstDeleteFailure(t *testing.T) {
	store := fakestore.NewFakeStore()
	require.NoError(t, store.Set(credentials.KeyAccessToken, "T1"))
	store.FailDeletes = true

	err := credentials.Clear(store)
	require.Error(t, err)

	var storageErr *credentials.StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestStorageErrorWrapsCause(t *testing.T) {
	store := fakestore.NewFakeStore()
	store.FailSets = true

	err := store.Set(credentials.KeyAccessToken, "T1")
	require.Error(t, err)

	var storageErr *credentials.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "set", storageErr.Op)
	assert.Equal(t, credentials.KeyAccessToken, storageErr.Key)
	assert.NotNil(t, storageErr.Unwrap())
}
