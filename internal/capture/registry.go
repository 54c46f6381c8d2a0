package capture

import "sync"

// Registry enforces that a single session addresses the camera at a time.
type Registry struct {
	mu     sync.Mutex
	active *Session
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// claim makes s the active session, stopping the previous one first.
func (r *Registry) claim(s *Session) {
	r.mu.Lock()
	prev := r.active
	r.active = s
	r.mu.Unlock()

	if prev != nil && prev != s {
		prev.Stop()
	}
}

// release clears s if it is still the active session.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}

// Active returns the session currently holding the camera, if any.
func (r *Registry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// StopAll force-stops the active session. Used on shutdown.
func (r *Registry) StopAll() {
	if s := r.Active(); s != nil {
		s.Stop()
	}
}
