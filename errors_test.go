package ygggo_pg

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrClassUnknown},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrClassRetryable},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrClassRetryable},
		{"read only transaction", &pgconn.PgError{Code: "25006"}, ErrClassReadonly},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrClassConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, ErrClassConstraint},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ErrClassConnection},
		{"connection failure", &pgconn.PgError{Code: "08006"}, ErrClassConnection},
		{"syntax error", &pgconn.PgError{Code: "42601"}, ErrClassUnknown},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "40001"}), ErrClassRetryable},
		{"mysql deadlock", &mysql.MySQLError{Number: 1213}, ErrClassRetryable},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, ErrClassConflict},
		{"mysql read only", &mysql.MySQLError{Number: 1290}, ErrClassReadonly},
		{"bad conn", driver.ErrBadConn, ErrClassConnection},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ErrClassConnection},
		{"closed", &RecycleError{Message: "Connection closed", Err: ErrConnectionClosed}, ErrClassConnection},
		{"canceled", context.Canceled, ErrClassUnknown},
		{"plain", errors.New("boom"), ErrClassUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "retryable", ErrClassRetryable.String())
	assert.Equal(t, "connection", ErrClassConnection.String())
	assert.Equal(t, "unknown", ErrorClass(99).String())
}

func TestRecycleError(t *testing.T) {
	closed := &RecycleError{Message: "Connection closed", Err: ErrConnectionClosed}
	assert.Equal(t, "ygggo_pg: recycle: Connection closed: ygggo_pg: connection closed", closed.Error())
	assert.ErrorIs(t, closed, ErrConnectionClosed)

	probe := errors.New("terminating connection")
	wrapped := &RecycleError{Err: probe}
	assert.Equal(t, "ygggo_pg: recycle: terminating connection", wrapped.Error())
	assert.ErrorIs(t, wrapped, probe)

	assert.Equal(t, "ygggo_pg: recycle: stale", (&RecycleError{Message: "stale"}).Error())
}

func TestTimeoutError(t *testing.T) {
	err := &TimeoutError{Type: TimeoutRecycle, Timeout: time.Second, Err: context.DeadlineExceeded}
	assert.Equal(t, "ygggo_pg: recycle timeout after 1s", err.Error())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "wait", TimeoutWait.String())
	assert.Equal(t, "create", TimeoutCreate.String())
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &ConnectionError{Err: cause}
	assert.Equal(t, "ygggo_pg: connect: dial tcp: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}
