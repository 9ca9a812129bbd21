// Package session keeps the mapping from a browser session to its backend
// token pair. The browser only ever sees a signed session cookie; the bearer
// tokens stay on the gateway side.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"reportmitra.org/internal/upstream"
)

var ErrNotFound = errors.New("session: not found")

// Session binds a session id to the tokens obtained at login.
type Session struct {
	ID        string
	Tokens    upstream.TokenPair
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists sessions. SetTokens follows TokenStore semantics: empty
// fields keep their stored value. ClearTokens empties both tokens while the
// session row survives until Delete or expiry.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	SetTokens(ctx context.Context, id string, pair upstream.TokenPair) error
	ClearTokens(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// NewID mints a session identifier.
func NewID() string { return uuid.NewString() }

// MemoryStore holds sessions in process memory. A janitor goroutine evicts
// expired entries once a minute.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{sessions: make(map[string]Session)}
	ticker := time.NewTicker(1 * time.Minute)
	go func() {
		for range ticker.C {
			s.purge(time.Now())
		}
	}()
	return s
}

func (s *MemoryStore) Create(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return Session{}, ErrNotFound
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		_ = s.Delete(context.Background(), id)
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) SetTokens(_ context.Context, id string, pair upstream.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if pair.Access != "" {
		sess.Tokens.Access = pair.Access
	}
	if pair.Refresh != "" {
		sess.Tokens.Refresh = pair.Refresh
	}
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) ClearTokens(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Tokens = upstream.TokenPair{}
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) purge(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if !sess.ExpiresAt.IsZero() && now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}
