package wizard

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live wizard sessions by id. The UI only ever drives one
// wizard at a time, but the registry does not depend on that.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create starts a new session with a generated id.
func (r *Registry) Create() *Session {
	s := NewSession(uuid.New().String())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove drops a session from the registry and resets it, which stops any
// running progress ticker. Used when the dialog is dismissed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Reset()
	}
	return ok
}
