package admin

import (
	"crypto/subtle"
	"os"
	"strings"
	"sync"
)

// Token is an admin API bearer token and the scopes it grants.
type Token struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
	secret string
}

// HasScope reports whether the token grants scope.
func (t *Token) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// TokenValidator resolves a bearer secret to a Token.
type TokenValidator interface {
	ValidateToken(secret string) (*Token, bool)
}

// TokenSet is a fixed, in-memory TokenValidator.
type TokenSet struct {
	mu     sync.RWMutex
	tokens []*Token
}

// NewTokenSet creates an empty TokenSet. An empty set rejects every request.
func NewTokenSet() *TokenSet {
	return &TokenSet{}
}

// TokensFromEnv builds a TokenSet from ADMIN_TOKEN (admin scope) and
// ADMIN_READ_ONLY_TOKEN (read_only scope). Unset variables are skipped.
func TokensFromEnv() *TokenSet {
	ts := NewTokenSet()
	if v := strings.TrimSpace(os.Getenv("ADMIN_TOKEN")); v != "" {
		ts.Add("admin", v, ScopeAdmin)
	}
	if v := strings.TrimSpace(os.Getenv("ADMIN_READ_ONLY_TOKEN")); v != "" {
		ts.Add("read-only", v, ScopeReadOnly)
	}
	return ts
}

// Add registers secret under name with the given scopes.
func (ts *TokenSet) Add(name, secret string, scopes ...string) {
	if secret == "" {
		return
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeReadOnly}
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.tokens = append(ts.tokens, &Token{Name: name, Scopes: scopes, secret: secret})
}

// Len returns the number of registered tokens.
func (ts *TokenSet) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tokens)
}

// ValidateToken compares secret against every registered token in constant
// time.
func (ts *TokenSet) ValidateToken(secret string) (*Token, bool) {
	if secret == "" {
		return nil, false
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	var found *Token
	for _, t := range ts.tokens {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(t.secret)) == 1 && found == nil {
			found = t
		}
	}
	if found == nil {
		return nil, false
	}
	cp := *found
	return &cp, true
}
