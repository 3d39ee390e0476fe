package ygggo_pg

import (
	"sync"
	"weak"
)

// StatementCaches tracks the statement caches of every connection handed
// out by a Manager and broadcasts Clear and Remove to them.
//
// Only weak references are held. A connection that is dropped without being
// detached simply stops showing up here once it has been collected.
type StatementCaches struct {
	mu     sync.Mutex
	caches []weak.Pointer[StatementCache]
}

func (s *StatementCaches) attach(cache *StatementCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches = append(s.caches, weak.Make(cache))
}

func (s *StatementCaches) detach(cache *StatementCache) {
	wp := weak.Make(cache)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.caches {
		if p == wp {
			s.caches = append(s.caches[:i], s.caches[i+1:]...)
			return
		}
	}
}

// each calls fn for every live cache and drops entries whose cache is gone.
// Must be called with s.mu held.
func (s *StatementCaches) each(fn func(*StatementCache)) {
	live := s.caches[:0]
	for _, p := range s.caches {
		cache := p.Value()
		if cache == nil {
			continue
		}
		live = append(live, p)
		fn(cache)
	}
	clear(s.caches[len(live):])
	s.caches = live
}

// Clear clears the statement cache of every connection handed out by the
// manager. Each connection closes the evicted statements once the caller
// no longer holds them.
func (s *StatementCaches) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.each(func(c *StatementCache) { c.Clear() })
}

// Remove removes a statement from the cache of every connection handed out
// by the manager.
func (s *StatementCaches) Remove(query string, types []Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.each(func(c *StatementCache) { c.Remove(query, types) })
}

// Len returns the number of registered references, including ones whose
// cache has been collected but not yet compacted away.
func (s *StatementCaches) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.caches)
}

// CacheStats is a snapshot of the registry.
type CacheStats struct {
	Caches     int `json:"caches"`
	Statements int `json:"statements"`
}

// Stats reports the number of live caches and the statements they hold.
func (s *StatementCaches) Stats() CacheStats {
	var st CacheStats
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.caches {
		if c := p.Value(); c != nil {
			st.Caches++
			st.Statements += c.Size()
		}
	}
	return st
}
