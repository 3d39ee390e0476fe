package ygggo_pg

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrConnectionClosed is reported by Recycle for a connection whose
	// driver already reports it closed.
	ErrConnectionClosed = errors.New("ygggo_pg: connection closed")
	// ErrPoolClosed is returned by Pool.Get after Pool.Close.
	ErrPoolClosed = errors.New("ygggo_pg: pool closed")
	// ErrTxDone is returned by a Transaction after Commit or Rollback.
	ErrTxDone = sql.ErrTxDone
)

// ConnectionError is returned by Manager.Create when a physical connection
// could not be established.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return "ygggo_pg: connect: " + e.Err.Error() }

func (e *ConnectionError) Unwrap() error { return e.Err }

// RecycleError is returned by Manager.Recycle. The connection it refers to
// must be discarded.
type RecycleError struct {
	Message string
	Err     error
}

func (e *RecycleError) Error() string {
	if e.Err == nil {
		return "ygggo_pg: recycle: " + e.Message
	}
	if e.Message == "" {
		return "ygggo_pg: recycle: " + e.Err.Error()
	}
	return fmt.Sprintf("ygggo_pg: recycle: %s: %v", e.Message, e.Err)
}

func (e *RecycleError) Unwrap() error { return e.Err }

// TimeoutType tells which pool step timed out.
type TimeoutType int

const (
	TimeoutWait TimeoutType = iota
	TimeoutCreate
	TimeoutRecycle
)

func (t TimeoutType) String() string {
	switch t {
	case TimeoutWait:
		return "wait"
	case TimeoutCreate:
		return "create"
	case TimeoutRecycle:
		return "recycle"
	default:
		return "unknown"
	}
}

// TimeoutError is returned by Pool.Get when one of the configured timeouts
// elapsed.
type TimeoutError struct {
	Type    TimeoutType
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ygggo_pg: %s timeout after %s", e.Type, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ErrorClass is the coarse category of a database error.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	ErrClassRetryable
	ErrClassConflict
	ErrClassReadonly
	ErrClassConstraint
	ErrClassConnection
)

func (c ErrorClass) String() string {
	switch c {
	case ErrClassRetryable:
		return "retryable"
	case ErrClassConflict:
		return "conflict"
	case ErrClassReadonly:
		return "readonly"
	case ErrClassConstraint:
		return "constraint"
	case ErrClassConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Classify maps PostgreSQL SQLSTATEs, MySQL error numbers and transport
// failures to an ErrorClass.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrClassUnknown
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr.Number)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrClassUnknown
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return ErrClassConnection
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, ErrConnectionClosed) {
		return ErrClassConnection
	}
	return ErrClassUnknown
}

func classifySQLState(code string) ErrorClass {
	switch code {
	case "40001", "40P01", "55P03":
		// serialization_failure, deadlock_detected, lock_not_available
		return ErrClassRetryable
	case "25006":
		// read_only_sql_transaction
		return ErrClassReadonly
	case "23505":
		// unique_violation
		return ErrClassConflict
	}
	switch {
	case strings.HasPrefix(code, "23"):
		return ErrClassConstraint
	case strings.HasPrefix(code, "08"), code == "57P01", code == "57P02", code == "57P03":
		// connection_exception class, admin/crash shutdown, cannot_connect_now
		return ErrClassConnection
	}
	return ErrClassUnknown
}

func classifyMySQL(number uint16) ErrorClass {
	switch number {
	case 1213, 1205:
		return ErrClassRetryable
	case 1290:
		return ErrClassReadonly
	case 1062, 1022:
		return ErrClassConflict
	case 1048, 1452, 1451, 3819:
		return ErrClassConstraint
	case 1040, 1042, 1043, 1047, 1053, 1077, 1080, 1081, 2002, 2003, 2006, 2013:
		return ErrClassConnection
	}
	return ErrClassUnknown
}
