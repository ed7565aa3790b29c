package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store keeps the server-side sessions keyed by session id. The cookie only
// carries the id; all authorization state stays in here.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty in-memory session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// New creates a fresh empty session and returns it.
func (s *Store) New() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{ID: uuid.NewString()}
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns the session for the given id, or nil if it does not exist.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// GetOrCreate returns the session for the given id, creating a new one when
// the id is unknown or empty.
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		return sess
	}
	return s.New()
}

// Destroy removes the session entirely (logout).
func (s *Store) Destroy(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
