// Package transport wraps outbound HTTP calls to the marketplace backend.
// Every request carries the stored access token as a bearer credential; a 401
// on a credentialed request triggers exactly one refresh-and-retry cycle, and
// a failed refresh clears the stored session and surfaces ErrAuthExpired.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/shiftlyhq/shiftly-go/credentials"
)

const defaultRefreshPath = "/refresh"

// Client issues authenticated requests against the backend.
type Client struct {
	baseURL     string
	refreshPath string
	httpClient  *http.Client
	store       credentials.Store
	log         zerolog.Logger

	// onAuthExpired runs after a terminal refresh failure, once the stored
	// session has been cleared. Used by the session manager to flip its
	// observable state.
	onAuthExpired func()
}

// Option modifies a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger. Token values are never logged.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRefreshPath overrides the token refresh endpoint path.
func WithRefreshPath(path string) Option {
	return func(c *Client) { c.refreshPath = path }
}

// WithAuthExpiredHook registers a callback fired when a refresh cycle fails
// terminally and the stored session has been cleared.
func WithAuthExpiredHook(fn func()) Option {
	return func(c *Client) { c.onAuthExpired = fn }
}

// New creates a Client rooted at baseURL, reading credentials from store.
func New(baseURL string, store credentials.Store, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[transport.New] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[transport.New] credential store is required")
	}

	client := &Client{
		baseURL:     baseURL,
		refreshPath: defaultRefreshPath,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		store:       store,
		log:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Envelope, error) {
	return c.Do(ctx, http.MethodGet, path, nil)
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPost, path, body)
}

// Put issues a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Envelope, error) {
	return c.Do(ctx, http.MethodPut, path, body)
}

// Do issues one request. The current access token, when present, is attached
// as a bearer credential. On a 401 for a credentialed request, Do refreshes
// the token once and replays the request once; the replay's outcome is final.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*Envelope, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.Do] marshal body")
		}
	}

	requestID := uuid.New().String()
	token, hasToken := c.store.Get(credentials.KeyAccessToken)

	status, env, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized && hasToken {
		return c.refreshAndRetry(ctx, method, path, payload, requestID)
	}

	c.log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Msg("request complete")

	return c.finish(status, env)
}

// refreshAndRetry performs the single-shot recovery cycle: one refresh call,
// then one replay of the original request. Whatever the replay returns is
// final; a second 401 is handed back as an APIError, never a second refresh.
func (c *Client) refreshAndRetry(ctx context.Context, method, path string, payload []byte, requestID string) (*Envelope, error) {
	refreshToken, ok := c.store.Get(credentials.KeyRefreshToken)
	if !ok {
		return nil, c.expireSession(requestID, errors.New("no refresh token stored"))
	}

	refreshBody, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.refreshAndRetry] marshal refresh body")
	}

	status, env, err := c.send(ctx, http.MethodPost, c.refreshPath, refreshBody, "")
	if err != nil {
		return nil, c.expireSession(requestID, err)
	}
	if status < 200 || status > 299 || env == nil || !env.OK || env.Token == "" {
		return nil, c.expireSession(requestID, errors.Errorf("refresh rejected with status %d", status))
	}

	if err := c.store.Set(credentials.KeyAccessToken, env.Token); err != nil {
		return nil, err
	}
	if env.RefreshToken != "" {
		if err := c.store.Set(credentials.KeyRefreshToken, env.RefreshToken); err != nil {
			return nil, err
		}
	}

	c.log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("path", path).
		Msg("token refreshed, replaying request")

	status, retryEnv, err := c.send(ctx, method, path, payload, env.Token)
	if err != nil {
		return nil, err
	}
	return c.finish(status, retryEnv)
}

// expireSession clears the stored session and reports ErrAuthExpired.
func (c *Client) expireSession(requestID string, cause error) error {
	if err := credentials.Clear(c.store); err != nil {
		c.log.Warn().Err(err).Msg("clearing credentials after failed refresh")
	}
	c.log.Info().
		Str("request_id", requestID).
		AnErr("cause", cause).
		Msg("session expired")
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
	return errors.Wrap(ErrAuthExpired, cause.Error())
}

// send performs one HTTP round trip and decodes the response envelope.
// Transport-level failures come back as *NetworkError.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, *Envelope, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "[Client.send] build request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &NetworkError{Err: err}
	}

	env := &Envelope{}
	if len(raw) > 0 {
		// Non-envelope bodies (proxies, load balancers) decode to zero values.
		_ = json.Unmarshal(raw, env)
	}
	return resp.StatusCode, env, nil
}

// finish maps a decoded response onto the caller-facing result: the envelope
// for 2xx, a typed APIError otherwise.
func (c *Client) finish(status int, env *Envelope) (*Envelope, error) {
	if status >= 200 && status <= 299 {
		return env, nil
	}
	apiErr := &APIError{Status: status}
	if env != nil {
		apiErr.Message = env.Error
		apiErr.Code = env.Code
	}
	return nil, apiErr
}
