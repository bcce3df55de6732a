// Package registry tracks the sessions currently being orchestrated, at most
// one live session per key.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/znerol74/call/internal/model/agent"
	"github.com/znerol74/call/internal/service/conversation"
)

var (
	ErrDuplicateSession = errors.New("session already active")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionActive    = errors.New("session not terminal")
)

// Registry maps session keys to sessions. Its map is the only structure shared
// across sessions.
type Registry struct {
	engine *conversation.Engine

	mu       sync.RWMutex
	sessions map[string]*conversation.Session
}

// New returns an empty Registry creating sessions through engine.
func New(engine *conversation.Engine) *Registry {
	return &Registry{
		engine:   engine,
		sessions: make(map[string]*conversation.Session),
	}
}

// Create constructs and stores a session for key. A terminal session still
// mapped under key is replaced; a live one yields ErrDuplicateSession.
func (r *Registry) Create(key string, desc agent.Descriptor, opts conversation.SessionOptions) (*conversation.Session, error) {
	if key == "" {
		return nil, errors.New("session key is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sessions[key]
	if ok && !existing.Status().Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, key)
	}

	session := r.engine.NewSession(key, desc, opts)
	r.sessions[key] = session
	if ok {
		r.engine.Metrics().SessionRemoved()
	}
	r.engine.Metrics().SessionStarted()
	return session, nil
}

// Get returns the session mapped under key.
func (r *Registry) Get(key string) (*conversation.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return session, nil
}

// Remove evicts the terminal session mapped under key.
func (r *Registry) Remove(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	if !session.Status().Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrSessionActive, key, session.Status())
	}
	delete(r.sessions, key)
	r.engine.Metrics().SessionRemoved()
	return nil
}

// Len reports the number of mapped sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the mapped sessions ordered by key.
func (r *Registry) Snapshot() []*conversation.Session {
	r.mu.RLock()
	out := make([]*conversation.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
