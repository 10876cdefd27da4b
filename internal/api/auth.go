package api

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// Identity is the account a token resolves to.
type Identity struct {
	UserID   int
	Username string
	IsAdmin  bool
}

// TokenStore maps opaque session tokens to authenticated identities. Tokens
// live until the process exits; there is no expiry because a game session is
// short-lived and tokens are worthless once the server restarts.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]Identity
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]Identity)}
}

// Issue creates a fresh token for the identity.
func (s *TokenStore) Issue(identity Identity) string {
	token := generateToken()
	s.mu.Lock()
	s.tokens[token] = identity
	s.mu.Unlock()
	return token
}

// Resolve returns the identity behind a token.
func (s *TokenStore) Resolve(token string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.tokens[token]
	return identity, ok
}

// Revoke invalidates a token.
func (s *TokenStore) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
}

// generateToken creates a cryptographically random token.
func generateToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
