package signup

import (
	"context"
	"sync"
	"time"
)

// Store keeps modal sessions between requests.
//
// Update loads the session with the given id and applies fn atomically with
// respect to other updates of the same id. A missing or expired session is
// handed to fn as a zero Session carrying only the id. Changes are persisted
// only when fn returns nil.
type Store interface {
	Get(ctx context.Context, id string, now time.Time) (Session, error)
	Update(ctx context.Context, id string, now time.Time, fn func(*Session) error) (Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]Session{}}
}

func (m *MemoryStore) Get(_ context.Context, id string, now time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.Expired(now) {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, now time.Time, fn func(*Session) error) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.Expired(now) {
		sess = Session{ID: id}
	}
	if err := fn(&sess); err != nil {
		return Session{}, err
	}
	sess.ID = id
	m.sessions[id] = sess
	return sess, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
