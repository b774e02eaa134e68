package client

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vbonduro/homeinv/internal/domain"
)

// Opener creates a session for a user.
type Opener func(ctx context.Context, user domain.User) (*Session, error)

// Registry keeps the most recently used sessions, one per user. Sessions
// pushed out of the cache are closed.
type Registry struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
	open     Opener
}

func NewRegistry(size int, open Opener) (*Registry, error) {
	sessions, err := lru.NewWithEvict(size, func(_ string, s *Session) {
		s.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &Registry{sessions: sessions, open: open}, nil
}

// Get returns the user's session, opening one if needed.
func (r *Registry) Get(ctx context.Context, user domain.User) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions.Get(user.ID); ok {
		return s, nil
	}
	s, err := r.open(ctx, user)
	if err != nil {
		return nil, err
	}
	r.sessions.Add(user.ID, s)
	return s, nil
}

// Drop closes and forgets the user's session.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Remove(userID)
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Close closes every session.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions.Purge()
}
