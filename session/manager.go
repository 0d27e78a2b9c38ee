package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/shiftlyhq/shiftly-go/account"
	"github.com/shiftlyhq/shiftly-go/credentials"
	"github.com/shiftlyhq/shiftly-go/transport"
)

const (
	logoutPath       = "/api/logout"
	pushRegisterPath = "/notifications/register"
)

// API is the slice of the transport the manager consumes.
type API interface {
	Get(ctx context.Context, path string) (*transport.Envelope, error)
	Post(ctx context.Context, path string, body any) (*transport.Envelope, error)
	Put(ctx context.Context, path string, body any) (*transport.Envelope, error)
}

// Credentials are the inputs to a login attempt.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Manager orchestrates the authentication lifecycle and owns the in-memory
// session view. All exported methods are safe for concurrent use; the session
// view only ever changes at operation boundaries, never partially.
type Manager struct {
	api   API
	store credentials.Store
	log   zerolog.Logger

	mu          sync.Mutex
	state       State
	current     *Session
	subscribers []func(State)
}

// Option modifies a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Token and password values are never logged.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// New creates a Manager over the given transport and credential store.
func New(api API, store credentials.Store, options ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[session.New] api is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] credential store is required")
	}

	manager := &Manager{
		api:   api,
		store: store,
		log:   zerolog.Nop(),
		state: StateUnauthenticated,
	}
	for _, opt := range options {
		opt(manager)
	}
	return manager, nil
}

// State returns the current authentication state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Authenticated reports whether a session is active.
func (m *Manager) Authenticated() bool {
	return m.State() == StateAuthenticated
}

// Current returns the active session, or nil when unauthenticated.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	copied := *m.current
	return &copied
}

// Subscribe registers a callback invoked on every state transition. Callbacks
// run outside the manager lock and must not block.
func (m *Manager) Subscribe(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Login exchanges credentials for a session against the account-kind-specific
// login endpoint and persists the result.
func (m *Manager) Login(ctx context.Context, creds Credentials, kind account.Kind) (*Session, error) {
	endpoints, ok := account.EndpointsFor(kind)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidAccountKind, "[Manager.Login] %q", kind)
	}
	return m.authenticate(ctx, endpoints.Login, creds, kind)
}

// RegisterJobSeeker creates a job seeker account and logs it in.
func (m *Manager) RegisterJobSeeker(ctx context.Context, payload any) (*Session, error) {
	endpoints, _ := account.EndpointsFor(account.KindJobSeeker)
	return m.authenticate(ctx, endpoints.Register, payload, account.KindJobSeeker)
}

// RegisterClient creates a client company account and logs it in.
func (m *Manager) RegisterClient(ctx context.Context, payload any) (*Session, error) {
	endpoints, _ := account.EndpointsFor(account.KindClient)
	return m.authenticate(ctx, endpoints.Register, payload, account.KindClient)
}

// authenticate runs one login or registration exchange: POST the payload,
// demand a complete response (success flag, token, user record), persist all
// four credential entries tokens-first, then publish the authenticated state.
func (m *Manager) authenticate(ctx context.Context, path string, payload any, kind account.Kind) (*Session, error) {
	m.setState(StateAuthenticating)

	env, err := m.api.Post(ctx, path, payload)
	if err != nil {
		m.setState(StateUnauthenticated)
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) {
			return nil, &AuthFailedError{Message: apiErr.Message}
		}
		return nil, err
	}

	if !env.OK || env.Token == "" || len(env.User) == 0 {
		m.setState(StateUnauthenticated)
		return nil, &AuthFailedError{Message: env.Error}
	}

	profile, err := account.ParseProfile(env.User)
	if err != nil {
		m.setState(StateUnauthenticated)
		return nil, &ValidationError{Message: "user record does not parse"}
	}

	// Some backend revisions omit a distinct refresh token and expect the
	// access token to be replayed against /refresh. Kept for compatibility;
	// see DESIGN.md.
	refreshToken := env.RefreshToken
	if refreshToken == "" {
		refreshToken = env.Token
	}

	session := &Session{
		AccessToken:  env.Token,
		RefreshToken: refreshToken,
		Kind:         kind,
		Profile:      profile,
	}
	if err := m.persist(session); err != nil {
		m.setState(StateUnauthenticated)
		return nil, err
	}

	m.mu.Lock()
	m.current = session
	m.mu.Unlock()
	m.setState(StateAuthenticated)

	m.log.Info().Str("kind", kind.String()).Msg("session established")
	return session, nil
}

// persist writes the four credential entries. Tokens are written before the
// account kind and profile, so a write abandoned partway never leaves an
// authenticated-looking record without tokens behind it.
func (m *Manager) persist(s *Session) error {
	profileJSON, err := account.MarshalProfile(s.Profile)
	if err != nil {
		return errors.Wrap(err, "[Manager.persist] marshal profile")
	}
	if err := m.store.Set(credentials.KeyAccessToken, s.AccessToken); err != nil {
		return err
	}
	if err := m.store.Set(credentials.KeyRefreshToken, s.RefreshToken); err != nil {
		return err
	}
	if err := m.store.Set(credentials.KeyAccountKind, s.Kind.String()); err != nil {
		return err
	}
	if err := m.store.Set(credentials.KeyProfile, string(profileJSON)); err != nil {
		return err
	}
	return nil
}

// Logout notifies the backend best-effort and unconditionally clears the
// stored session. It always succeeds locally.
func (m *Manager) Logout(ctx context.Context) {
	if _, err := m.api.Post(ctx, logoutPath, nil); err != nil {
		m.log.Warn().Err(err).Msg("server-side logout failed, clearing local session anyway")
	}
	if err := credentials.Clear(m.store); err != nil {
		m.log.Warn().Err(err).Msg("clearing stored credentials")
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.setState(StateUnauthenticated)
}

// Restore rebuilds the session from the credential store at application
// start. It returns the session and true only when the access token, account
// kind, and user record are all present and valid; any partial or corrupt
// state yields an unauthenticated result. It never fails.
func (m *Manager) Restore() (*Session, bool) {
	m.setState(StateAuthenticating)

	accessToken, okToken := m.store.Get(credentials.KeyAccessToken)
	kindTag, okKind := m.store.Get(credentials.KeyAccountKind)
	profileJSON, okProfile := m.store.Get(credentials.KeyProfile)
	refreshToken, _ := m.store.Get(credentials.KeyRefreshToken)

	kind := account.Kind(kindTag)
	if !okToken || !okKind || !okProfile || !kind.Valid() {
		m.setState(StateUnauthenticated)
		return nil, false
	}
	profile, err := account.ParseProfile([]byte(profileJSON))
	if err != nil {
		m.log.Warn().Msg("stored profile does not parse, starting unauthenticated")
		m.setState(StateUnauthenticated)
		return nil, false
	}

	session := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Kind:         kind,
		Profile:      profile,
	}
	m.mu.Lock()
	m.current = session
	m.mu.Unlock()
	m.setState(StateAuthenticated)

	m.log.Info().Str("kind", kind.String()).Msg("session restored")
	return session, true
}

// UpdateProfile sends partial profile fields to the account-kind-specific
// update endpoint. On success the server's authoritative record replaces the
// persisted one.
func (m *Manager) UpdateProfile(ctx context.Context, fields map[string]any) (*account.Profile, error) {
	kind, err := m.activeKind()
	if err != nil {
		return nil, err
	}
	endpoints, _ := account.EndpointsFor(kind)

	env, err := m.api.Put(ctx, endpoints.Profile, fields)
	if err != nil {
		var apiErr *transport.APIError
		if errors.As(err, &apiErr) {
			return nil, &ProfileUpdateError{Message: apiErr.Message}
		}
		return nil, err
	}
	if !env.OK || len(env.User) == 0 {
		return nil, &ProfileUpdateError{Message: env.Error}
	}
	return m.adoptProfile(env.User)
}

// Me fetches the current profile from the backend and re-persists it.
func (m *Manager) Me(ctx context.Context) (*account.Profile, error) {
	kind, err := m.activeKind()
	if err != nil {
		return nil, err
	}
	endpoints, _ := account.EndpointsFor(kind)

	env, err := m.api.Get(ctx, endpoints.Me)
	if err != nil {
		return nil, err
	}
	if !env.OK || len(env.User) == 0 {
		return nil, &ValidationError{Message: "profile response missing user record"}
	}
	return m.adoptProfile(env.User)
}

// RequestPasswordReset triggers the reset flow for the given address. No
// local state changes regardless of outcome.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string, kind account.Kind) error {
	endpoints, ok := account.EndpointsFor(kind)
	if !ok {
		return errors.Wrapf(ErrInvalidAccountKind, "[Manager.RequestPasswordReset] %q", kind)
	}
	_, err := m.api.Post(ctx, endpoints.ForgotPassword, map[string]string{"email": email})
	return err
}

// RegisterPushToken associates a push-delivery token with the account.
func (m *Manager) RegisterPushToken(ctx context.Context, deviceToken string) error {
	_, err := m.api.Post(ctx, pushRegisterPath, map[string]string{"token": deviceToken})
	return err
}

// AuthExpired is the transport's terminal-refresh-failure hook. The stored
// credentials are already cleared when it fires; only the in-memory view and
// the observable state remain to be reset.
func (m *Manager) AuthExpired() {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.setState(StateUnauthenticated)
	m.log.Info().Msg("session expired, sign-in required")
}

// adoptProfile replaces the persisted and in-memory profile with the
// server's authoritative record.
func (m *Manager) adoptProfile(raw []byte) (*account.Profile, error) {
	profile, err := account.ParseProfile(raw)
	if err != nil {
		return nil, &ValidationError{Message: "user record does not parse"}
	}
	profileJSON, err := account.MarshalProfile(profile)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.adoptProfile] marshal profile")
	}
	if err := m.store.Set(credentials.KeyProfile, string(profileJSON)); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.current != nil {
		m.current.Profile = profile
	}
	m.mu.Unlock()
	return profile, nil
}

func (m *Manager) activeKind() (account.Kind, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return "", ErrNotAuthenticated
	}
	return m.current.Kind, nil
}

func (m *Manager) setState(next State) {
	m.mu.Lock()
	if m.state == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	subscribers := make([]func(State), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(next)
	}
}
