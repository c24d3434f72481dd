package session

import "sync"

// Store holds active sessions keyed by sender identifier.
type Store interface {
	// Get returns the session for a sender, creating a fresh greeting-state
	// session on first contact.
	Get(waID string) *Session
	// Has reports whether an unfinished dialog exists for a sender.
	Has(waID string) bool
	// Put stores the session for a sender.
	Put(waID string, s *Session)
	// Delete discards the session for a sender.
	Delete(waID string)
	// Len reports the number of active sessions.
	Len() int
}

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore constructs the in-memory Store implementation.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]*Session)}
}

// Get returns the session for a sender, creating one lazily.
func (m *memoryStore) Get(waID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[waID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[waID]; ok {
		return s
	}
	s = NewSession()
	m.sessions[waID] = s
	return s
}

// Has reports whether an unfinished dialog exists for a sender.
func (m *memoryStore) Has(waID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[waID]
	return ok
}

// Put stores the session for a sender.
func (m *memoryStore) Put(waID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[waID] = s
}

// Delete discards the session for a sender.
func (m *memoryStore) Delete(waID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, waID)
}

// Len reports the number of active sessions.
func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
