package ygggo_pg

import (
	"context"
)

// Type identifies the type of a statement parameter. For PostgreSQL it is the
// type OID (see the pgtype package constants); other backends only use it as
// part of the statement cache key.
type Type uint32

// Connector opens physical connections. It is the only thing the Manager
// knows about how a connection is established (address, TLS, driver).
type Connector interface {
	Connect(ctx context.Context) (DriverConn, error)
}

// Dialect may be implemented by a Connector to supply backend specific
// recycling statements. Managers fall back to PostgreSQL statements otherwise.
type Dialect interface {
	VerifyQuery() string
	CleanQuery() string
}

// Queryer is the statement surface shared by connections and transactions.
type Queryer interface {
	Prepare(ctx context.Context, query string, types []Type) (*Statement, error)
	SimpleQuery(ctx context.Context, sql string) error
	Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error)
	Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error)
}

// DriverConn is a single physical connection.
//
// Done is closed once the connection is gone, either because Close was
// called or because the driver lost it. Err reports the last asynchronous
// error seen by the driver, if any.
type DriverConn interface {
	Queryer
	IsClosed() bool
	Begin(ctx context.Context, opts TxOptions) (DriverTx, error)
	Done() <-chan struct{}
	Err() error
	Close(ctx context.Context) error
}

// StatementCloser may be implemented by a DriverConn to close the server
// side of prepared statements nothing references any more. name and handle
// are the values the statement was built with.
type StatementCloser interface {
	CloseStatement(ctx context.Context, name string, handle any) error
}

// DriverTx is a transaction (or savepoint) on a DriverConn.
type DriverTx interface {
	Queryer
	Begin(ctx context.Context) (DriverTx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Rows is a result set. *sql.Rows satisfies it directly.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// ConnectionManager is the contract a Pool drives: Create on a checkout
// miss, Recycle before handing an idle connection out again, Detach when a
// connection leaves the pool for good.
type ConnectionManager interface {
	Create(ctx context.Context) (*ClientWrapper, error)
	Recycle(ctx context.Context, w *ClientWrapper) error
	Detach(w *ClientWrapper)
}

// Ensure our concrete types implement the interfaces at compile time
var (
	_ ConnectionManager = (*Manager)(nil)
	_ Connector         = (*PgConnector)(nil)
	_ Connector         = (*SQLConnector)(nil)
	_ Dialect           = (*SQLConnector)(nil)
	_ DriverConn        = (*pgxConn)(nil)
	_ StatementCloser   = (*pgxConn)(nil)
	_ DriverTx          = (*pgxTx)(nil)
	_ DriverConn        = (*sqlConn)(nil)
	_ StatementCloser   = (*sqlConn)(nil)
	_ DriverTx          = (*sqlTx)(nil)
)
