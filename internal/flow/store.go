// ABOUTME: In-memory Flow Store, the sole owner of every tracked flow
// ABOUTME: Provides snapshot reads and atomic select-and-remove for the sweeper

package flow

import "sync"

// Store holds flows keyed by ID.
type Store struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

func NewStore() *Store {
	return &Store{flows: make(map[string]*Flow)}
}

// Put adds or replaces a flow.
func (s *Store) Put(f *Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[f.ID()] = f
}

func (s *Store) Get(id string) (*Flow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[id]
	return f, ok
}

// Remove deletes a flow and reports whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[id]; !ok {
		return false
	}
	delete(s.flows, id)
	return true
}

// Values returns a snapshot of all flows in no particular order.
func (s *Store) Values() []*Flow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Flow, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, f)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flows)
}

// Evict removes every flow match selects and returns them. Selection and
// removal happen under one write lock, so no reader sees a half-evicted set.
// match runs with the store locked and must not call back into the Store.
func (s *Store) Evict(match func(*Flow) bool) []*Flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Flow
	for id, f := range s.flows {
		if match(f) {
			delete(s.flows, id)
			out = append(out, f)
		}
	}
	return out
}
