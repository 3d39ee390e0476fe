package ygggo_pg

import (
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
)

// Statement is a prepared statement handle. It is only valid on the
// physical connection that prepared it.
type Statement struct {
	name   string
	query  string
	params []Type
	handle any
}

// NewStatement builds a Statement. Connector implementations call it from
// Prepare; handle is the driver's native statement object.
func NewStatement(name, query string, params []Type, handle any) *Statement {
	return &Statement{name: name, query: query, params: slices.Clone(params), handle: handle}
}

// Name returns the server side statement name, empty if the driver has none.
func (s *Statement) Name() string { return s.name }

// SQL returns the query text the statement was prepared from.
func (s *Statement) SQL() string { return s.query }

// Params returns the parameter types the statement was prepared with.
func (s *Statement) Params() []Type { return s.params }

// Handle returns the driver's native statement object.
func (s *Statement) Handle() any { return s.handle }

// releasedStatement is the driver side of a Statement nothing references
// any more.
type releasedStatement struct {
	name   string
	handle any
}

// statementReleaser collects released statements until the goroutine using
// the connection closes them. It must not point back at the cache, or the
// cleanups of cached statements would keep the cache alive.
type statementReleaser struct {
	mu      sync.Mutex
	pending []releasedStatement
}

func (r *statementReleaser) push(s releasedStatement) {
	r.mu.Lock()
	r.pending = append(r.pending, s)
	r.mu.Unlock()
}

func (r *statementReleaser) drain() []releasedStatement {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := r.pending
	r.pending = nil
	return pending
}

// StatementCacheKey identifies a cached statement by query text and
// parameter type signature.
type StatementCacheKey struct {
	Query string
	Types []Type
}

// cachedStatement is one entry for a query; the types slice is owned by the cache.
type cachedStatement struct {
	types []Type
	stmt  *Statement
}

// StatementCache holds the prepared statements of a single connection.
//
// Entries are grouped by query text so a lookup only needs the caller's
// string and slice.
//
// A statement that was evicted and is no longer referenced by the caller
// either is closed on the connection's next Prepare or recycle check.
type StatementCache struct {
	mu       sync.RWMutex
	m        map[string][]cachedStatement
	size     atomic.Int64
	released *statementReleaser
}

func newStatementCache() *StatementCache {
	return &StatementCache{
		m:        make(map[string][]cachedStatement),
		released: &statementReleaser{},
	}
}

// track arranges for the driver side of stmt to be queued for closing once
// stmt becomes unreachable.
func (c *StatementCache) track(stmt *Statement) {
	runtime.AddCleanup(stmt, c.released.push, releasedStatement{name: stmt.name, handle: stmt.handle})
}

// Size returns the current number of cached statements.
func (c *StatementCache) Size() int {
	return int(c.size.Load())
}

// Get returns the cached statement for query and types.
func (c *StatementCache) Get(query string, types []Type) (*Statement, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.m[query] {
		if slices.Equal(e.types, types) {
			return e.stmt, true
		}
	}
	return nil, false
}

// Insert stores stmt under query and types, replacing an existing entry.
func (c *StatementCache) Insert(query string, types []Type, stmt *Statement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.m[query]
	for i := range entries {
		if slices.Equal(entries[i].types, types) {
			entries[i].stmt = stmt
			return
		}
	}
	c.m[query] = append(entries, cachedStatement{types: slices.Clone(types), stmt: stmt})
	c.size.Add(1)
}

// Remove evicts the statement for query and types and returns it.
//
// This only affects this connection. Use Manager.StatementCaches.Remove to
// evict a statement from every connection.
func (c *StatementCache) Remove(query string, types []Type) (*Statement, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := c.m[query]
	for i := range entries {
		if !slices.Equal(entries[i].types, types) {
			continue
		}
		stmt := entries[i].stmt
		if len(entries) == 1 {
			delete(c.m, query)
		} else {
			c.m[query] = slices.Delete(entries, i, i+1)
		}
		c.size.Add(-1)
		return stmt, true
	}
	return nil, false
}

// Clear empties the cache.
//
// This only affects this connection. Use Manager.StatementCaches.Clear to
// clear every connection handed out by the manager.
func (c *StatementCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.m)
	c.size.Store(0)
}

// Keys returns a snapshot of the cached keys.
func (c *StatementCache) Keys() []StatementCacheKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]StatementCacheKey, 0, c.size.Load())
	for q, entries := range c.m {
		for _, e := range entries {
			keys = append(keys, StatementCacheKey{Query: q, Types: slices.Clone(e.types)})
		}
	}
	return keys
}
