package ygggo_pg

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateRegistersCache(t *testing.T) {
	m, connector := newStubManager(Fast)
	ctx := context.Background()

	w1, err := m.Create(ctx)
	require.NoError(t, err)
	w2, err := m.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), connector.connects.Load())
	assert.Equal(t, 2, m.StatementCaches.Len())
	assert.NotEqual(t, w1.ID(), w2.ID())
	assert.NotSame(t, w1.StatementCache(), w2.StatementCache())
}

func TestManager_CreateFailure(t *testing.T) {
	m, connector := newStubManager(Fast)
	connector.failures = 1

	w, err := m.Create(context.Background())
	require.Error(t, err)
	assert.Nil(t, w)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, connErr.Error(), "connection refused")
	assert.Equal(t, 0, m.StatementCaches.Len())
}

func TestManager_RecycleClosedFailsForEveryMethod(t *testing.T) {
	for _, method := range []RecyclingMethod{Fast, Verified, Clean, Custom("SELECT 1")} {
		t.Run(method.String(), func(t *testing.T) {
			m, connector := newStubManager(method)
			ctx := context.Background()
			w, err := m.Create(ctx)
			require.NoError(t, err)
			connector.last().kill(nil)

			err = m.Recycle(ctx, w)
			var rerr *RecycleError
			require.ErrorAs(t, err, &rerr)
			assert.ErrorIs(t, err, ErrConnectionClosed)
			assert.Equal(t, "Connection closed", rerr.Message)
			assert.Empty(t, connector.last().simpleQueries(), "no probe on a closed connection")
		})
	}
}

func TestManager_RecycleFastRunsNoQuery(t *testing.T) {
	m, connector := newStubManager(Fast)
	ctx := context.Background()
	w, err := m.Create(ctx)
	require.NoError(t, err)
	connector.last().setSimpleErr(errors.New("would fail"))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Recycle(ctx, w))
	}
	assert.Empty(t, connector.last().simpleQueries())
}

func TestManager_RecycleProbes(t *testing.T) {
	tests := []struct {
		method RecyclingMethod
		probe  string
	}{
		{Verified, pgVerifyQuery},
		{Clean, pgCleanQuery},
		{Custom("SELECT 42"), "SELECT 42"},
	}
	for _, tc := range tests {
		t.Run(tc.method.String(), func(t *testing.T) {
			m, connector := newStubManager(tc.method)
			ctx := context.Background()
			w, err := m.Create(ctx)
			require.NoError(t, err)

			require.NoError(t, m.Recycle(ctx, w))
			assert.Equal(t, []string{tc.probe}, connector.last().simpleQueries())
		})
	}
}

func TestManager_RecycleVerifiedFailure(t *testing.T) {
	m, connector := newStubManager(Verified)
	ctx := context.Background()
	w, err := m.Create(ctx)
	require.NoError(t, err)
	probeErr := errors.New("server closed the connection unexpectedly")
	connector.last().setSimpleErr(probeErr)

	err = m.Recycle(ctx, w)
	var rerr *RecycleError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, probeErr)
	assert.Len(t, connector.last().simpleQueries(), 1, "recycle never retries")
}

func TestManager_RecycleUsesDialect(t *testing.T) {
	connector := &SQLConnector{VerifySQL: "VALUES (1)", CleanSQL: "RESET"}
	m := NewManager(connector, ManagerConfig{RecyclingMethod: Clean})
	assert.Equal(t, "RESET", m.probe)
	assert.True(t, m.doProbe)

	m = NewManager(connector, ManagerConfig{RecyclingMethod: Verified})
	assert.Equal(t, "VALUES (1)", m.probe)

	m = NewManager(connector, ManagerConfig{RecyclingMethod: Fast})
	assert.False(t, m.doProbe)
}

func TestManager_DetachThenClear(t *testing.T) {
	m, _ := newStubManager(Fast)
	ctx := context.Background()
	kept, err := m.Create(ctx)
	require.NoError(t, err)
	gone, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = kept.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	_, err = gone.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)

	m.Detach(gone)
	m.Detach(gone)
	assert.Equal(t, 1, m.StatementCaches.Len())

	m.StatementCaches.Clear()
	assert.Equal(t, 0, kept.StatementCache().Size())
	assert.Equal(t, 1, gone.StatementCache().Size(), "detached cache is not reachable from the registry")
}

func TestManager_RegistryRemove(t *testing.T) {
	m, _ := newStubManager(Fast)
	ctx := context.Background()
	w1, err := m.Create(ctx)
	require.NoError(t, err)
	w2, err := m.Create(ctx)
	require.NoError(t, err)
	for _, w := range []*ClientWrapper{w1, w2} {
		_, err = w.PrepareTyped(ctx, "SELECT $1", []Type{23})
		require.NoError(t, err)
		_, err = w.Prepare(ctx, "SELECT 2")
		require.NoError(t, err)
	}

	m.StatementCaches.Remove("SELECT $1", []Type{23})

	for _, w := range []*ClientWrapper{w1, w2} {
		assert.Equal(t, 1, w.StatementCache().Size())
		_, ok := w.StatementCache().Get("SELECT 2", nil)
		assert.True(t, ok)
	}
}

func TestManager_LogsRecycleFailuresAndDriverErrors(t *testing.T) {
	var buf syncBuffer
	m, connector := newStubManager(Verified)
	m.SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	ctx := context.Background()

	w, err := m.Create(ctx)
	require.NoError(t, err)
	connector.last().setSimpleErr(errors.New("probe failed"))
	require.Error(t, m.Recycle(ctx, w))
	assert.Contains(t, buf.String(), "Connection could not be recycled")

	connector.last().kill(errors.New("terminating connection due to administrator command"))
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "administrator command")
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.True(t, w.IsClosed())
}
