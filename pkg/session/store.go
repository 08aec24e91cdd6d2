package session

import (
	"errors"
	"sync"

	"planner/pkg/logx"
)

// ErrSessionNotFound is returned when a requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Store holds live sessions for the hosting process. It replaces ambient
// global session state with an explicit object that is passed by handle;
// updates are last-writer-wins with no optimistic-concurrency check.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *logx.Logger
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		logger:   logx.NewLogger("session-store"),
	}
}

// Register adds a session to the store, overwriting any session with the
// same id.
func (st *Store) Register(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

// Get returns the session with the given id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Update applies mutate to the session with the given id under the store
// lock and refreshes its last-update timestamp.
func (st *Store) Update(id string, mutate func(*Session)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	mutate(s)
	s.Touch()
	return nil
}

// Drop removes a session from the store.
func (st *Store) Drop(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[id]; ok {
		delete(st.sessions, id)
		st.logger.Debug("dropped session %s", id)
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// IDs returns the ids of all live sessions.
func (st *Store) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}
