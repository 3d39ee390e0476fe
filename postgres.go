package ygggo_pg

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// TLSStrategy decides how connections to a host are secured.
type TLSStrategy interface {
	// TLSConfig returns the TLS configuration for host, or nil for a
	// plain text connection.
	TLSConfig(host string) (*tls.Config, error)
}

// NoTLS connects without TLS regardless of SSLMode.
type NoTLS struct{}

func (NoTLS) TLSConfig(string) (*tls.Config, error) { return nil, nil }

// TLS connects with a copy of Config, setting ServerName to the target host
// when it is empty.
type TLS struct {
	Config *tls.Config
}

func (t TLS) TLSConfig(host string) (*tls.Config, error) {
	if t.Config == nil {
		return nil, fmt.Errorf("ygggo_pg: TLS strategy without config")
	}
	c := t.Config.Clone()
	if c.ServerName == "" {
		c.ServerName = host
	}
	return c, nil
}

// PgConnector opens PostgreSQL connections with pgx.
type PgConnector struct {
	config *pgx.ConnConfig
	tls    TLSStrategy
}

// NewPgConnector returns a connector for config. A nil tls keeps the TLS
// settings of config (derived from sslmode).
func NewPgConnector(config *pgx.ConnConfig, tls TLSStrategy) *PgConnector {
	return &PgConnector{config: config, tls: tls}
}

// Connect opens a connection. Server errors arriving outside of a request
// (for example an administrator terminating the backend) are remembered and
// reported by Err once the connection is gone.
func (c *PgConnector) Connect(ctx context.Context) (DriverConn, error) {
	cfg := c.config.Copy()
	if c.tls != nil {
		if err := applyTLS(cfg, c.tls); err != nil {
			return nil, err
		}
	}
	pc := &pgxConn{}
	prev := cfg.OnPgError
	cfg.OnPgError = func(conn *pgconn.PgConn, pgErr *pgconn.PgError) bool {
		pc.setErr(pgErr)
		if prev != nil {
			return prev(conn, pgErr)
		}
		return pgErr.Severity != "FATAL"
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pc.conn = conn
	return pc, nil
}

func applyTLS(cfg *pgx.ConnConfig, strategy TLSStrategy) error {
	tc, err := strategy.TLSConfig(cfg.Host)
	if err != nil {
		return err
	}
	cfg.TLSConfig = tc
	for _, fb := range cfg.Fallbacks {
		if fb.TLSConfig, err = strategy.TLSConfig(fb.Host); err != nil {
			return err
		}
	}
	return nil
}

// pgxConn adapts *pgx.Conn to DriverConn. Statements are prepared with
// explicit parameter OIDs through pgconn and executed with ExecPrepared.
type pgxConn struct {
	conn *pgx.Conn
	seq  atomic.Uint64

	mu  sync.Mutex
	err error
}

func (c *pgxConn) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *pgxConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *pgxConn) IsClosed() bool { return c.conn.IsClosed() }

func (c *pgxConn) Done() <-chan struct{} { return c.conn.PgConn().CleanupDone() }

func (c *pgxConn) Close(ctx context.Context) error { return c.conn.Close(ctx) }

// Prepare prepares query under a name unique to this connection, so a
// statement evicted from the cache can be prepared again without clashing
// with the server side one.
func (c *pgxConn) Prepare(ctx context.Context, query string, types []Type) (*Statement, error) {
	name := "ygggo_s" + strconv.FormatUint(c.seq.Add(1), 10)
	oids := make([]uint32, len(types))
	for i, t := range types {
		oids[i] = uint32(t)
	}
	sd, err := c.conn.PgConn().Prepare(ctx, name, query, oids)
	if err != nil {
		return nil, err
	}
	return NewStatement(name, query, types, sd), nil
}

// CloseStatement deallocates a statement prepared by Prepare.
func (c *pgxConn) CloseStatement(ctx context.Context, name string, _ any) error {
	if name == "" {
		return nil
	}
	return c.conn.PgConn().Deallocate(ctx, name)
}

func (c *pgxConn) SimpleQuery(ctx context.Context, sql string) error {
	_, err := c.conn.PgConn().Exec(ctx, sql).ReadAll()
	return err
}

func (c *pgxConn) Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error) {
	rr, err := c.execPrepared(ctx, stmt, args)
	if err != nil {
		return 0, err
	}
	tag, err := rr.Close()
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgxConn) Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error) {
	rr, err := c.execPrepared(ctx, stmt, args)
	if err != nil {
		return nil, err
	}
	return pgxRows{pgx.RowsFromResultReader(c.conn.TypeMap(), rr)}, nil
}

func (c *pgxConn) execPrepared(ctx context.Context, stmt *Statement, args []any) (*pgconn.ResultReader, error) {
	sd, ok := stmt.Handle().(*pgconn.StatementDescription)
	if !ok {
		return nil, fmt.Errorf("ygggo_pg: statement %q was not prepared by pgx", stmt.SQL())
	}
	values, formats, err := encodeArgs(c.conn.TypeMap(), sd.ParamOIDs, args)
	if err != nil {
		return nil, err
	}
	return c.conn.PgConn().ExecPrepared(ctx, sd.Name, values, formats, nil), nil
}

// encodeArgs encodes args for the parameter OIDs of a prepared statement.
func encodeArgs(m *pgtype.Map, oids []uint32, args []any) ([][]byte, []int16, error) {
	if len(args) != len(oids) {
		return nil, nil, fmt.Errorf("ygggo_pg: expected %d arguments, got %d", len(oids), len(args))
	}
	values := make([][]byte, len(args))
	formats := make([]int16, len(args))
	for i, arg := range args {
		formats[i] = m.FormatCodeForOID(oids[i])
		buf, err := m.Encode(oids[i], formats[i], arg, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("ygggo_pg: encode argument %d: %w", i+1, err)
		}
		values[i] = buf
	}
	return values, formats, nil
}

func (c *pgxConn) Begin(ctx context.Context, opts TxOptions) (DriverTx, error) {
	tx, err := c.conn.BeginTx(ctx, pgxTxOptions(opts))
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx, conn: c}, nil
}

func pgxTxOptions(opts TxOptions) pgx.TxOptions {
	var o pgx.TxOptions
	switch opts.IsoLevel {
	case LevelReadUncommitted:
		o.IsoLevel = pgx.ReadUncommitted
	case LevelReadCommitted:
		o.IsoLevel = pgx.ReadCommitted
	case LevelRepeatableRead:
		o.IsoLevel = pgx.RepeatableRead
	case LevelSerializable:
		o.IsoLevel = pgx.Serializable
	}
	if opts.ReadOnly {
		o.AccessMode = pgx.ReadOnly
	}
	if opts.Deferrable {
		o.DeferrableMode = pgx.Deferrable
	}
	return o
}

// pgxTx runs statements on the connection that owns the transaction; the
// server scopes them to the open transaction.
type pgxTx struct {
	tx   pgx.Tx
	conn *pgxConn
}

func (t *pgxTx) Prepare(ctx context.Context, query string, types []Type) (*Statement, error) {
	return t.conn.Prepare(ctx, query, types)
}

func (t *pgxTx) SimpleQuery(ctx context.Context, sql string) error {
	return t.conn.SimpleQuery(ctx, sql)
}

func (t *pgxTx) Exec(ctx context.Context, stmt *Statement, args ...any) (int64, error) {
	return t.conn.Exec(ctx, stmt, args...)
}

func (t *pgxTx) Query(ctx context.Context, stmt *Statement, args ...any) (Rows, error) {
	return t.conn.Query(ctx, stmt, args...)
}

func (t *pgxTx) Begin(ctx context.Context) (DriverTx, error) {
	tx, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx, conn: t.conn}, nil
}

func (t *pgxTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

func (t *pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgxRows gives pgx.Rows the Close() error signature of Rows.
type pgxRows struct {
	pgx.Rows
}

func (r pgxRows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}
