package server

import (
	"errors"
	"sync"
)

// ErrNameTaken is returned by Register when the display name is in use.
var ErrNameTaken = errors.New("server: username already taken")

// Registry is the authoritative mapping from display name to active session.
// It is the only shared mutable state between connection goroutines; every
// operation runs under one mutex and either fully applies or not at all.
// Insertion order is preserved and defines the order of user-list responses.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Register admits a session under name. A taken name fails with ErrNameTaken
// and leaves the registry unchanged.
func (r *Registry) Register(name string, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; ok {
		return ErrNameTaken
	}
	r.sessions[name] = sess
	r.order = append(r.order, name)
	return nil
}

// Unregister removes name. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; !ok {
		return
	}
	delete(r.sessions, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the session registered under name.
func (r *Registry) Lookup(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[name]
	return sess, ok
}

// Names returns the registered names in insertion order. The slice is a
// copy; a concurrent unregister never invalidates it.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Sessions returns a point-in-time snapshot of all sessions in insertion
// order, safe to iterate for broadcast while other goroutines mutate the
// registry.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sessions[name])
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
