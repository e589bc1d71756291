package keyring

import "golang.org/x/oauth2"

// TokenSource adapts m to oauth2.TokenSource so that an oauth2.Transport
// attaches a freshly rotated key as "Authorization: Bearer <key>" to every
// request it sends. Each Token call advances the rotation.
func TokenSource(m *Manager) oauth2.TokenSource {
	return tokenSource{m: m}
}

type tokenSource struct {
	m *Manager
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	key, err := s.m.AcquireToken()
	if err != nil {
		return nil, err
	}
	// No expiry: validity is decided by the refresh flow, not by the token.
	return &oauth2.Token{AccessToken: key, TokenType: "Bearer"}, nil
}
