package session

import (
	"golang.org/x/oauth2"

	"github.com/shiftlyhq/shiftly-go/credentials"
)

// TokenSource exposes the managed session as an oauth2.TokenSource, so the
// session can be handed to third-party SDKs that expect one. Refreshing stays
// the transport's job; the source only reflects whatever token is currently
// stored.
func (m *Manager) TokenSource() oauth2.TokenSource {
	return &storeTokenSource{store: m.store}
}

type storeTokenSource struct {
	store credentials.Store
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	accessToken, ok := s.store.Get(credentials.KeyAccessToken)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}, nil
}
