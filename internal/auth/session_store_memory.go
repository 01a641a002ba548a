package auth

import (
	"context"
	"sync"
	"time"
)

// InMemorySessionStore implements SessionStore for tests and local development.
// Sessions are lost on restart.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewInMemorySessionStore returns an empty InMemorySessionStore.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]Session)}
}

// Save persists the provided session record, replacing any previous value.
func (s *InMemorySessionStore) Save(_ context.Context, session Session) error {
	s.mu.Lock()
	s.sessions[session.RefreshToken] = session
	s.mu.Unlock()
	return nil
}

// Find retrieves a session by refresh token.
func (s *InMemorySessionStore) Find(_ context.Context, refreshToken string) (Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[refreshToken]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Delete removes the session associated with the refresh token.
func (s *InMemorySessionStore) Delete(_ context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[refreshToken]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, refreshToken)
	return nil
}

// Rotate implements SessionStore.
func (s *InMemorySessionStore) Rotate(_ context.Context, refreshToken string, successor Session, at, retainUntil time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced, ok := s.sessions[refreshToken]
	if !ok {
		return ErrSessionNotFound
	}
	if replaced.RotatedTo != "" {
		return ErrSessionRotated
	}

	replaced.RotatedTo = successor.RefreshToken
	replaced.RotatedAt = at
	if retainUntil.Before(replaced.ExpiresAt) {
		replaced.ExpiresAt = retainUntil
	}
	s.sessions[refreshToken] = replaced
	s.sessions[successor.RefreshToken] = successor
	return nil
}

// Has reports whether a refresh token exists.
func (s *InMemorySessionStore) Has(refreshToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[refreshToken]
	return ok
}
