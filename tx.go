package ygggo_pg

import (
	"context"
	"time"
)

// IsolationLevel is a transaction isolation level.
type IsolationLevel int

const (
	// LevelDefault leaves the isolation level to the server.
	LevelDefault IsolationLevel = iota
	LevelReadUncommitted
	LevelReadCommitted
	LevelRepeatableRead
	LevelSerializable
)

func (l IsolationLevel) String() string {
	switch l {
	case LevelReadUncommitted:
		return "READ UNCOMMITTED"
	case LevelReadCommitted:
		return "READ COMMITTED"
	case LevelRepeatableRead:
		return "REPEATABLE READ"
	case LevelSerializable:
		return "SERIALIZABLE"
	default:
		return "DEFAULT"
	}
}

// TxOptions are the options of a top level transaction.
type TxOptions struct {
	IsoLevel   IsolationLevel
	ReadOnly   bool
	Deferrable bool
}

// TransactionBuilder configures a transaction before it starts. The
// transaction uses the statement cache of the connection it was built from.
type TransactionBuilder struct {
	parent *ClientWrapper
	opts   TxOptions
}

// IsolationLevel sets the isolation level of the transaction.
func (b *TransactionBuilder) IsolationLevel(level IsolationLevel) *TransactionBuilder {
	b.opts.IsoLevel = level
	return b
}

// ReadOnly sets the access mode of the transaction.
func (b *TransactionBuilder) ReadOnly(readOnly bool) *TransactionBuilder {
	b.opts.ReadOnly = readOnly
	return b
}

// Deferrable sets the deferrability of the transaction.
//
// If the transaction is also serializable and read only, starting it may
// block, but it then runs with less overhead and cannot be aborted by a
// serialization failure.
func (b *TransactionBuilder) Deferrable(deferrable bool) *TransactionBuilder {
	b.opts.Deferrable = deferrable
	return b
}

// Options returns the options collected so far.
func (b *TransactionBuilder) Options() TxOptions { return b.opts }

// Start begins the transaction. It rolls back unless Commit is called.
func (b *TransactionBuilder) Start(ctx context.Context) (*Transaction, error) {
	start := time.Now()
	w := b.parent
	spanCtx, span := w.obs.startSpan(ctx, "begin", "")
	tx, err := w.conn.Begin(spanCtx, b.opts)
	w.obs.finishSpan(span, err)
	if err != nil {
		w.obs.logTransaction(ctx, "begin", time.Since(start), err)
		return nil, err
	}
	return &Transaction{parent: w, tx: tx, cache: w.cache, obs: w.obs, started: start}, nil
}

// Transaction wraps a driver transaction and shares the statement cache of
// the connection it was started on. It must not be used after that
// connection has been released.
//
// A Transaction keeps its parent wrapper reachable, so a wrapper dropped
// while one of its transactions is open is not closed under it.
type Transaction struct {
	parent  *ClientWrapper
	tx      DriverTx
	cache   *StatementCache
	obs     *observer
	started time.Time
	done    bool
}

// StatementCache returns the cache shared with the parent connection.
func (t *Transaction) StatementCache() *StatementCache { return t.cache }

// Prepare creates a prepared statement, using the statement cache if
// possible.
func (t *Transaction) Prepare(ctx context.Context, query string) (*Statement, error) {
	return t.PrepareTyped(ctx, query, nil)
}

// PrepareTyped creates a prepared statement with explicit parameter types,
// using the statement cache if possible.
func (t *Transaction) PrepareTyped(ctx context.Context, query string, types []Type) (*Statement, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return prepareCached(ctx, t.tx, t.cache, t.obs, query, types)
}

// Exec executes a prepared statement inside the transaction.
func (t *Transaction) Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error) {
	if t.done {
		return 0, ErrTxDone
	}
	return t.tx.Exec(ctx, stmt, args...)
}

// Query executes a prepared statement inside the transaction.
func (t *Transaction) Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return t.tx.Query(ctx, stmt, args...)
}

// SimpleQuery runs sql inside the transaction through the simple query
// protocol.
func (t *Transaction) SimpleQuery(ctx context.Context, sql string) error {
	if t.done {
		return ErrTxDone
	}
	return t.tx.SimpleQuery(ctx, sql)
}

// Transaction starts a nested transaction (savepoint) sharing the same
// statement cache.
func (t *Transaction) Transaction(ctx context.Context) (*Transaction, error) {
	if t.done {
		return nil, ErrTxDone
	}
	tx, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Transaction{parent: t.parent, tx: tx, cache: t.cache, obs: t.obs, started: time.Now()}, nil
}

// Commit commits the transaction. The transaction cannot be used afterwards.
func (t *Transaction) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	err := t.tx.Commit(ctx)
	t.obs.logTransaction(ctx, "commit", time.Since(t.started), err)
	t.obs.recordTransaction(ctx, "commit", err)
	return err
}

// Rollback aborts the transaction. The transaction cannot be used afterwards.
func (t *Transaction) Rollback(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	err := t.tx.Rollback(ctx)
	t.obs.logTransaction(ctx, "rollback", time.Since(t.started), err)
	t.obs.recordTransaction(ctx, "rollback", err)
	return err
}
