package presence

import "sync"

// Registry maps user identity to the set of live connection ids. Pure
// set bookkeeping; a user with zero connections is removed entirely, so
// IsOnline is equivalent to key membership.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[string]struct{})}
}

func (r *Registry) Add(userID, connID string) {
	if userID == "" || connID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		r.conns[userID] = set
	}
	set[connID] = struct{}{}
}

func (r *Registry) Remove(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
}

// ConnectionsOf returns a copy of the user's live connection ids.
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}
