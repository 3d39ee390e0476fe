package ygggo_pg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// stubConnector hands out stubConns and counts connects.
type stubConnector struct {
	mu       sync.Mutex
	conns    []*stubConn
	failures int   // fail this many connects before succeeding
	err      error // error used for failing connects
	connects atomic.Int64
}

func (c *stubConnector) Connect(ctx context.Context) (DriverConn, error) {
	c.connects.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		if c.err == nil {
			return nil, errors.New("connection refused")
		}
		return nil, c.err
	}
	conn := newStubConn()
	c.conns = append(c.conns, conn)
	return conn, nil
}

func (c *stubConnector) last() *stubConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conns[len(c.conns)-1]
}

// stubConn records every call made on it.
type stubConn struct {
	mu         sync.Mutex
	closed     bool
	err        error
	prepares   int
	simple     []string
	simpleErr  error
	prepareErr error
	beginErr   error
	begins     []TxOptions
	released   []string

	done      chan struct{}
	closeOnce sync.Once
}

func newStubConn() *stubConn {
	return &stubConn{done: make(chan struct{})}
}

// kill simulates the server terminating the connection.
func (c *stubConn) kill(err error) {
	c.mu.Lock()
	c.closed = true
	c.err = err
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *stubConn) prepareCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prepares
}

func (c *stubConn) simpleQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.simple...)
}

func (c *stubConn) setSimpleErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simpleErr = err
}

func (c *stubConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *stubConn) Done() <-chan struct{} { return c.done }

func (c *stubConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *stubConn) Close(context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *stubConn) Prepare(ctx context.Context, query string, types []Type) (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prepares++
	if c.prepareErr != nil {
		return nil, c.prepareErr
	}
	return NewStatement(fmt.Sprintf("s%d", c.prepares), query, types, nil), nil
}

func (c *stubConn) CloseStatement(ctx context.Context, name string, handle any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, name)
	return nil
}

func (c *stubConn) releasedStatements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.released...)
}

func (c *stubConn) SimpleQuery(ctx context.Context, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simple = append(c.simple, sql)
	return c.simpleErr
}

func (c *stubConn) Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error) {
	return int64(len(args)), nil
}

func (c *stubConn) Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error) {
	return &stubRows{}, nil
}

func (c *stubConn) Begin(ctx context.Context, opts TxOptions) (DriverTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	c.begins = append(c.begins, opts)
	return &stubTx{conn: c}, nil
}

// stubTx forwards statements to its connection and records its outcome.
type stubTx struct {
	conn       *stubConn
	depth      int
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *stubTx) Prepare(ctx context.Context, query string, types []Type) (*Statement, error) {
	return t.conn.Prepare(ctx, query, types)
}

func (t *stubTx) SimpleQuery(ctx context.Context, sql string) error {
	return t.conn.SimpleQuery(ctx, sql)
}

func (t *stubTx) Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error) {
	return t.conn.Exec(ctx, stmt, args...)
}

func (t *stubTx) Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error) {
	return t.conn.Query(ctx, stmt, args...)
}

func (t *stubTx) Begin(ctx context.Context) (DriverTx, error) {
	return &stubTx{conn: t.conn, depth: t.depth + 1}, nil
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *stubTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type stubRows struct{}

func (*stubRows) Next() bool        { return false }
func (*stubRows) Scan(...any) error { return nil }
func (*stubRows) Err() error        { return nil }
func (*stubRows) Close() error      { return nil }

// syncBuffer is a bytes.Buffer safe for log handlers written from the
// connection watcher.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newStubManager(method RecyclingMethod) (*Manager, *stubConnector) {
	c := &stubConnector{}
	return NewManager(c, ManagerConfig{RecyclingMethod: method}), c
}
