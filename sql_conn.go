package ygggo_pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

// SQLConnector opens connections through a database/sql driver. Each
// physical connection gets its own one-connection *sql.DB so the Manager,
// not database/sql, decides when it is reused.
type SQLConnector struct {
	// Open returns a fresh handle; it is closed together with the connection.
	Open func(ctx context.Context) (*sql.DB, error)
	// VerifySQL is the Verified recycling probe, "SELECT 1" when empty.
	VerifySQL string
	// CleanSQL is the Clean recycling statement, VerifySQL when empty.
	CleanSQL string
}

func (c *SQLConnector) VerifyQuery() string {
	if c.VerifySQL == "" {
		return "SELECT 1"
	}
	return c.VerifySQL
}

func (c *SQLConnector) CleanQuery() string {
	if c.CleanSQL == "" {
		return c.VerifyQuery()
	}
	return c.CleanSQL
}

func (c *SQLConnector) Connect(ctx context.Context) (DriverConn, error) {
	if c.Open == nil {
		return nil, errors.New("ygggo_pg: SQLConnector without Open")
	}
	db, err := c.Open(ctx)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqlConn{db: db, conn: conn, done: make(chan struct{})}, nil
}

// sqlConn adapts a pinned *sql.Conn to DriverConn.
type sqlConn struct {
	db   *sql.DB
	conn *sql.Conn

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	savepoint atomic.Uint64

	mu  sync.Mutex
	err error
}

// check marks the connection closed when err says the driver lost it.
func (c *sqlConn) check(err error) error {
	if err != nil && (errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)) {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.closed.Store(true)
	}
	return err
}

func (c *sqlConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *sqlConn) IsClosed() bool {
	if c.closed.Load() {
		return true
	}
	valid := true
	_ = c.conn.Raw(func(dc any) error {
		if v, ok := dc.(driver.Validator); ok {
			valid = v.IsValid()
		}
		return nil
	})
	if !valid {
		c.closed.Store(true)
	}
	return !valid
}

func (c *sqlConn) Done() <-chan struct{} { return c.done }

func (c *sqlConn) Close(context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = errors.Join(c.conn.Close(), c.db.Close())
		close(c.done)
	})
	return err
}

// Prepare prepares on the pinned connection, so statements outlive any
// transaction they were first prepared in.
func (c *sqlConn) Prepare(ctx context.Context, query string, types []Type) (*Statement, error) {
	st, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, c.check(err)
	}
	return NewStatement("", query, types, st), nil
}

func (c *sqlConn) CloseStatement(_ context.Context, _ string, handle any) error {
	st, ok := handle.(*sql.Stmt)
	if !ok {
		return nil
	}
	return st.Close()
}

func (c *sqlConn) SimpleQuery(ctx context.Context, query string) error {
	_, err := c.conn.ExecContext(ctx, query)
	return c.check(err)
}

func sqlStmt(stmt *Statement) (*sql.Stmt, error) {
	st, ok := stmt.Handle().(*sql.Stmt)
	if !ok {
		return nil, fmt.Errorf("ygggo_pg: statement %q was not prepared by database/sql", stmt.SQL())
	}
	return st, nil
}

func (c *sqlConn) Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error) {
	st, err := sqlStmt(stmt)
	if err != nil {
		return 0, err
	}
	res, err := st.ExecContext(ctx, args...)
	if err != nil {
		return 0, c.check(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report it; the statement itself succeeded.
		return 0, nil
	}
	return n, nil
}

func (c *sqlConn) Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error) {
	st, err := sqlStmt(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := st.QueryContext(ctx, args...)
	if err != nil {
		return nil, c.check(err)
	}
	return rows, nil
}

func (c *sqlConn) Begin(ctx context.Context, opts TxOptions) (DriverTx, error) {
	if opts.Deferrable {
		return nil, fmt.Errorf("ygggo_pg: deferrable transactions: %w", errors.ErrUnsupported)
	}
	tx, err := c.conn.BeginTx(ctx, &sql.TxOptions{Isolation: sqlIsolation(opts.IsoLevel), ReadOnly: opts.ReadOnly})
	if err != nil {
		return nil, c.check(err)
	}
	return &sqlTx{conn: c, tx: tx}, nil
}

func sqlIsolation(l IsolationLevel) sql.IsolationLevel {
	switch l {
	case LevelReadUncommitted:
		return sql.LevelReadUncommitted
	case LevelReadCommitted:
		return sql.LevelReadCommitted
	case LevelRepeatableRead:
		return sql.LevelRepeatableRead
	case LevelSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// sqlTx is a transaction, or a savepoint inside one when savepoint is set.
// Statements prepared on the pinned connection run on the same physical
// connection and therefore inside the open transaction.
type sqlTx struct {
	conn      *sqlConn
	tx        *sql.Tx
	savepoint string
}

func (t *sqlTx) Prepare(ctx context.Context, query string, types []Type) (*Statement, error) {
	return t.conn.Prepare(ctx, query, types)
}

func (t *sqlTx) SimpleQuery(ctx context.Context, query string) error {
	_, err := t.tx.ExecContext(ctx, query)
	return t.conn.check(err)
}

func (t *sqlTx) Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error) {
	return t.conn.Exec(ctx, stmt, args...)
}

func (t *sqlTx) Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error) {
	return t.conn.Query(ctx, stmt, args...)
}

func (t *sqlTx) Begin(ctx context.Context) (DriverTx, error) {
	name := "ygggo_sp" + strconv.FormatUint(t.conn.savepoint.Add(1), 10)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, t.conn.check(err)
	}
	return &sqlTx{conn: t.conn, tx: t.tx, savepoint: name}, nil
}

func (t *sqlTx) Commit(ctx context.Context) error {
	if t.savepoint != "" {
		_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+t.savepoint)
		return t.conn.check(err)
	}
	return t.conn.check(t.tx.Commit())
}

func (t *sqlTx) Rollback(ctx context.Context) error {
	if t.savepoint != "" {
		_, err := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+t.savepoint)
		return t.conn.check(err)
	}
	return t.conn.check(t.tx.Rollback())
}
