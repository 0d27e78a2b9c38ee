package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiftlyhq/shiftly-go/credentials"
	fakestore "github.com/shiftlyhq/shiftly-go/credentials/storefakes"
	"github.com/shiftlyhq/shiftly-go/transport"
)

type fixture struct {
	store  *fakestore.FakeStore
	client *transport.Client
	server *httptest.Server

	refreshCalls atomic.Int64
	authExpired  atomic.Bool
}

// newFixture starts a backend whose non-refresh routes are served by handler
// and whose /refresh route is served by refreshHandler.
func newFixture(t *testing.T, handler http.HandlerFunc, refreshHandler http.HandlerFunc) *fixture {
	t.Helper()

	f := &fixture{store: fakestore.NewFakeStore()}

	mux := http.NewServeMux()
	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if refreshHandler == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		refreshHandler(w, r)
	})
	mux.HandleFunc("/", handler)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	client, err := transport.New(f.server.URL, f.store,
		transport.WithAuthExpiredHook(func() { f.authExpired.Store(true) }),
	)
	require.NoError(t, err)
	f.client = client
	return f
}

func (f *fixture) seedSession(t *testing.T, accessToken, refreshToken string) {
	t.Helper()
	require.NoError(t, f.store.Set(credentials.KeyAccessToken, accessToken))
	require.NoError(t, f.store.Set(credentials.KeyRefreshToken, refreshToken))
	require.NoError(t, f.store.Set(credentials.KeyAccountKind, "job_seeker"))
	require.NoError(t, f.store.Set(credentials.KeyProfile, `{"id":1,"email":"a@b.com"}`))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestDoAttachesStoredBearerToken(t *testing.T) {
	var gotAuth string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true})
	}, nil)
	f.seedSession(t, "T1", "R1")

	env, err := f.client.Get(context.Background(), "/api/seekers/me")
	require.NoError(t, err)
	assert.True(t, env.OK)
	assert.Equal(t, "Bearer T1", gotAuth)
}

func TestDoWithoutSessionSendsNoCredential(t *testing.T) {
	var gotAuth string
	var sawHeader bool
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, sawHeader = r.Header["Authorization"]
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true, Token: "T1"})
	}, nil)

	_, err := f.client.Post(context.Background(), "/api/seekers/mobile/login", map[string]string{"email": "a@b.com"})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.False(t, sawHeader)
}

func TestDoRefreshesOnceAndReplaysWithNewToken(t *testing.T) {
	var bearers []string
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		bearers = append(bearers, r.Header.Get("Authorization"))
		if r.Header.Get("Authorization") != "Bearer T2" {
			writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false})
			return
		}
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true})
	}, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refreshToken"] != "R1" {
			writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false})
			return
		}
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true, Token: "T2"})
	})
	f.seedSession(t, "T1", "R1")

	env, err := f.client.Get(context.Background(), "/api/seekers/me")
	require.NoError(t, err)
	assert.True(t, env.OK)

	require.Equal(t, []string{"Bearer T1", "Bearer T2"}, bearers)
	assert.Equal(t, int64(1), f.refreshCalls.Load())

	stored, ok := f.store.Get(credentials.KeyAccessToken)
	require.True(t, ok)
	assert.Equal(t, "T2", stored)
}

func TestDoPersistsRotatedRefreshToken(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer T2" {
			writeJSON(w, http.StatusOK, transport.Envelope{OK: true})
			return
		}
		writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false})
	}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true, Token: "T2", RefreshToken: "R2"})
	})
	f.seedSession(t, "T1", "R1")

	_, err := f.client.Get(context.Background(), "/api/seekers/me")
	require.NoError(t, err)

	refresh, ok := f.store.Get(credentials.KeyRefreshToken)
	require.True(t, ok)
	assert.Equal(t, "R2", refresh)
}

func TestDoFailedRefreshClearsSessionAndReportsAuthExpired(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false})
	}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false, Error: "refresh token expired"})
	})
	f.seedSession(t, "T1", "R1")

	_, err := f.client.Get(context.Background(), "/api/seekers/me")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrAuthExpired)

	for _, key := range credentials.SessionKeys() {
		_, ok := f.store.Get(key)
		assert.False(t, ok, "key %q should be cleared", key)
	}
	assert.True(t, f.authExpired.Load())
	assert.Equal(t, int64(1), f.refreshCalls.Load())
}

func TestDoUncredentialed401DoesNotRefresh(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false, Error: "bad credentials"})
	}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true, Token: "T2"})
	})

	_, err := f.client.Post(context.Background(), "/api/seekers/mobile/login", nil)
	require.Error(t, err)

	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "bad credentials", apiErr.Message)
	assert.Equal(t, int64(0), f.refreshCalls.Load())
}

func TestDoPostRefreshRetry401DoesNotRefreshAgain(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false})
	}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true, Token: "T2"})
	})
	f.seedSession(t, "T1", "R1")

	_, err := f.client.Get(context.Background(), "/api/seekers/me")
	require.Error(t, err)

	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int64(1), f.refreshCalls.Load())
	assert.False(t, f.authExpired.Load())
}

func TestDoPassesThroughNon401Failures(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, transport.Envelope{OK: false, Error: "stale data", Code: "conflict"})
	}, nil)
	f.seedSession(t, "T1", "R1")

	_, err := f.client.Put(context.Background(), "/api/seekers/profile", map[string]string{"name": "Jo"})
	require.Error(t, err)

	var apiErr *transport.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "stale data", apiErr.Message)
	assert.Equal(t, "conflict", apiErr.Code)
	assert.Equal(t, int64(0), f.refreshCalls.Load())
}

func TestDoReportsNetworkFailures(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true})
	}, nil)
	f.server.Close()

	_, err := f.client.Get(context.Background(), "/api/seekers/me")
	require.Error(t, err)

	var netErr *transport.NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestDoRefreshNetworkFailureExpiresSession(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false})
	}, func(w http.ResponseWriter, r *http.Request) {
		// Drop the connection mid-request so the refresh call fails at the
		// transport level rather than with a status code.
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	})
	f.seedSession(t, "T1", "R1")

	_, err := f.client.Get(context.Background(), "/api/seekers/me")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrAuthExpired)

	for _, key := range credentials.SessionKeys() {
		_, ok := f.store.Get(key)
		assert.False(t, ok, "key %q should be cleared", key)
	}
	assert.True(t, f.authExpired.Load())
}

func TestDoMissingRefreshTokenExpiresSession(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, transport.Envelope{OK: false})
	}, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, transport.Envelope{OK: true, Token: "T2"})
	})
	require.NoError(t, f.store.Set(credentials.KeyAccessToken, "T1"))

	_, err := f.client.Get(context.Background(), "/api/seekers/me")
	require.Error(t, err)
	assert.ErrorIs(t, err, transport.ErrAuthExpired)
	assert.Equal(t, int64(0), f.refreshCalls.Load())
}
