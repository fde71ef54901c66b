package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-rag-chat/models"
)

// SessionRegistry maps session ids to the collections they own. Every
// method is atomic with respect to the others; callers that read a session
// and later mutate it must expect it to have been removed in between.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	now      func() time.Time
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*models.Session),
		now:      time.Now,
	}
}

// Create registers a session under a fresh random id, optionally already
// owning refs.
func (r *SessionRegistry) Create(refs ...models.CollectionRef) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	for r.sessions[id] != nil {
		id = uuid.NewString()
	}
	now := r.now()
	r.sessions[id] = &models.Session{
		ID:          id,
		Collections: append([]models.CollectionRef(nil), refs...),
		CreatedAt:   now,
		LastActive:  now,
	}
	return id
}

// Get returns a snapshot of the session.
func (r *SessionRegistry) Get(id string) (models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	return s.Clone(), true
}

// AddCollection appends ref to the session's collections.
func (r *SessionRegistry) AddCollection(id string, ref models.CollectionRef) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	s.Collections = append(s.Collections, ref)
	s.LastActive = r.now()
	return nil
}

// ReplaceCollections makes ref the session's only collection and returns the
// ones it displaced. Deleting those from the vector store is up to the caller.
func (r *SessionRegistry) ReplaceCollections(id string, ref models.CollectionRef) ([]models.CollectionRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	old := s.Collections
	s.Collections = []models.CollectionRef{ref}
	s.LastActive = r.now()
	return old, nil
}

// Remove deletes the session entry and returns what it held.
func (r *SessionRegistry) Remove(id string) (models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// RemoveIfIdle removes the session only if it has not been active since
// cutoff. The check and the delete happen under one lock, so a concurrent
// Touch either lands first and keeps the session or finds it gone.
func (r *SessionRegistry) RemoveIfIdle(id string, cutoff time.Time) (models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.LastActive.Before(cutoff) {
		return models.Session{}, false
	}
	delete(r.sessions, id)
	return *s, true
}

// Touch marks the session as active now. Unknown ids are ignored.
func (r *SessionRegistry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.LastActive = r.now()
	}
}

// IdleSessions lists the ids of sessions not active since cutoff.
func (r *SessionRegistry) IdleSessions(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if s.LastActive.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Drain empties the registry and returns every session it held.
func (r *SessionRegistry) Drain() []models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.sessions = make(map[string]*models.Session)
	return out
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
