package recorder

import (
	"fmt"
	"sync"
)

// Registry holds every session on the page, in discovery order, and
// guarantees that at most one of them is recording — or still unwinding a
// stop — at any moment.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string

	// exclMu serializes start sequences so two sessions cannot interleave
	// their stop-others/begin-acquiring steps.
	exclMu sync.Mutex
}

// NewRegistry creates an empty registry whose sessions share deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Register creates and tracks a session for the widget identified by id.
// Registering an id twice returns the existing session.
func (r *Registry) Register(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := NewSession(id, r.deps)
	s.registry = r
	r.sessions[id] = s
	r.order = append(r.order, id)
	return s
}

// RegisterAll registers each id in order.
func (r *Registry) RegisterAll(ids []string) {
	for _, id := range ids {
		r.Register(id)
	}
}

// Get returns the session for id, or an error if no widget with that id
// was registered.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("recorder: no session registered for %q", id)
	}
	return s, nil
}

// Sessions returns every session in registration order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// enforce drives every other non-idle session through its stop sequence,
// waits for each to unwind to Idle, and then moves requester from Idle to
// Acquiring, all under the exclusion lock. The requester's Start observing
// any state other than Acquiring afterwards means it lost a race and must
// not proceed.
func (r *Registry) enforce(requester *Session) {
	r.exclMu.Lock()
	defer r.exclMu.Unlock()

	for _, other := range r.Sessions() {
		if other == requester {
			continue
		}
		if other.State() != StateIdle {
			other.Stop()
			// A stop sequence already in flight is not re-entered by Stop;
			// wait for its flush and finalize to complete either way.
			other.awaitIdle()
		}
	}

	requester.mu.Lock()
	if requester.state == StateIdle {
		requester.leaveIdleLocked(StateAcquiring)
	}
	requester.mu.Unlock()
}
