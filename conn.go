package ygggo_pg

import (
	"context"
	"runtime"
	"time"
)

// ClientWrapper wraps one physical connection together with its statement
// cache. It is what a Pool hands out.
//
// A ClientWrapper is not safe for concurrent use by multiple goroutines,
// except for its StatementCache which may be cleared from anywhere.
type ClientWrapper struct {
	conn      DriverConn
	cache     *StatementCache
	obs       *observer
	id        uint64
	createdAt time.Time
}

// NewClientWrapper wraps an existing connection. The wrapper is not known
// to any Manager, so registry wide Clear and Remove do not reach it.
func NewClientWrapper(conn DriverConn) *ClientWrapper {
	return newClientWrapper(conn, 0, nil)
}

func newClientWrapper(conn DriverConn, id uint64, obs *observer) *ClientWrapper {
	w := &ClientWrapper{
		conn:      conn,
		cache:     newStatementCache(),
		obs:       obs,
		id:        id,
		createdAt: time.Now(),
	}
	// A wrapper dropped without Close still releases its connection.
	runtime.AddCleanup(w, closeDropped, conn)
	return w
}

func closeDropped(conn DriverConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = conn.Close(ctx)
}

// ID returns the manager assigned connection id (0 for standalone wrappers).
func (w *ClientWrapper) ID() uint64 { return w.id }

// CreatedAt returns when the connection was wrapped.
func (w *ClientWrapper) CreatedAt() time.Time { return w.createdAt }

// Conn returns the underlying driver connection.
func (w *ClientWrapper) Conn() DriverConn { return w.conn }

// StatementCache returns the statement cache of this connection.
func (w *ClientWrapper) StatementCache() *StatementCache { return w.cache }

// IsClosed reports whether the underlying connection is gone.
func (w *ClientWrapper) IsClosed() bool { return w.conn.IsClosed() }

// Prepare creates a prepared statement, using the statement cache if
// possible.
func (w *ClientWrapper) Prepare(ctx context.Context, query string) (*Statement, error) {
	return w.PrepareTyped(ctx, query, nil)
}

// PrepareTyped creates a prepared statement with explicit parameter types,
// using the statement cache if possible.
//
// If ctx is canceled while the statement is being prepared the server may
// still complete it. The connection is only known to be reusable after the
// next recycle check.
func (w *ClientWrapper) PrepareTyped(ctx context.Context, query string, types []Type) (*Statement, error) {
	w.releaseStatements(ctx)
	return prepareCached(ctx, w.conn, w.cache, w.obs, query, types)
}

// Exec executes a prepared statement and returns the affected row count.
func (w *ClientWrapper) Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error) {
	return w.conn.Exec(ctx, stmt, args...)
}

// Query executes a prepared statement and returns its rows.
func (w *ClientWrapper) Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error) {
	return w.conn.Query(ctx, stmt, args...)
}

// SimpleQuery runs sql through the simple query protocol and discards the
// results. sql may contain several statements.
func (w *ClientWrapper) SimpleQuery(ctx context.Context, sql string) error {
	return w.conn.SimpleQuery(ctx, sql)
}

// Transaction begins a transaction with default options. The transaction
// shares this connection's statement cache.
func (w *ClientWrapper) Transaction(ctx context.Context) (*Transaction, error) {
	return w.BuildTransaction().Start(ctx)
}

// BuildTransaction returns a builder for a transaction with custom options.
func (w *ClientWrapper) BuildTransaction() *TransactionBuilder {
	return &TransactionBuilder{parent: w}
}

// Close closes the underlying connection. Connections obtained from a Pool
// should be released to it instead.
func (w *ClientWrapper) Close(ctx context.Context) error {
	return w.conn.Close(ctx)
}

// releaseStatements closes the driver side of statements that left the
// cache and are no longer referenced. A failure only loses that statement.
func (w *ClientWrapper) releaseStatements(ctx context.Context) {
	pending := w.cache.released.drain()
	if len(pending) == 0 {
		return
	}
	closer, ok := w.conn.(StatementCloser)
	if !ok {
		return
	}
	for _, s := range pending {
		if err := closer.CloseStatement(ctx, s.name, s.handle); err != nil {
			w.obs.logStatementRelease(ctx, w.id, s.name, err)
		}
	}
}

// prepareCached looks query up in cache and prepares it through q on a miss.
// Failed prepares are not cached.
func prepareCached(ctx context.Context, q Queryer, cache *StatementCache, obs *observer, query string, types []Type) (*Statement, error) {
	if stmt, ok := cache.Get(query, types); ok {
		obs.recordPrepare(ctx, true, nil)
		return stmt, nil
	}
	spanCtx, span := obs.startSpan(ctx, "prepare", query)
	stmt, err := q.Prepare(spanCtx, query, types)
	obs.finishSpan(span, err)
	obs.recordPrepare(ctx, false, err)
	if err != nil {
		return nil, err
	}
	cache.track(stmt)
	cache.Insert(query, types, stmt)
	return stmt, nil
}
