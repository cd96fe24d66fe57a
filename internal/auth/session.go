package auth

import (
	"sync"

	"github.com/google/uuid"
)

// Permission classes a command can require.
const (
	PermRead  = "read"
	PermWrite = "write"
	PermAdmin = "admin"
)

// HasPermission reports whether role may issue commands of class perm.
// Admins may do everything, standard users may read and write, and any
// other role is refused.
func HasPermission(role, perm string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleStandard:
		return perm == PermRead || perm == PermWrite
	default:
		return false
	}
}

// Sessions maps opaque tokens to authenticated identities.
type Sessions struct {
	mu     sync.RWMutex
	tokens map[string]Identity
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{tokens: make(map[string]Identity)}
}

// Create issues a new token for id.
func (s *Sessions) Create(id Identity) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = id
	s.mu.Unlock()
	return token
}

// Lookup returns the identity bound to token.
func (s *Sessions) Lookup(token string) (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.tokens[token]
	return id, ok
}

// Revoke invalidates token. It reports whether the token was live.
func (s *Sessions) Revoke(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	delete(s.tokens, token)
	return ok
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
