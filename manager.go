package ygggo_pg

import (
	"context"
	"sync/atomic"
	"time"
)

// Manager creates, recycles and detaches connections on behalf of a Pool.
type Manager struct {
	config    ManagerConfig
	connector Connector
	probe     string
	doProbe   bool
	nextID    atomic.Uint64
	obs       *observer

	// StatementCaches gives access to the statement caches of every
	// connection handed out by this manager.
	StatementCaches *StatementCaches
}

// NewManager creates a manager opening connections through connector.
func NewManager(connector Connector, config ManagerConfig) *Manager {
	m := &Manager{
		config:          config,
		connector:       connector,
		obs:             &observer{},
		StatementCaches: &StatementCaches{},
	}
	d, _ := connector.(Dialect)
	m.probe, m.doProbe = config.RecyclingMethod.query(d)
	return m
}

// Config returns the manager configuration.
func (m *Manager) Config() ManagerConfig { return m.config }

// Create opens a new physical connection, starts watching it in the
// background and registers its statement cache.
func (m *Manager) Create(ctx context.Context) (*ClientWrapper, error) {
	start := time.Now()
	spanCtx, span := m.obs.startSpan(ctx, "connect", "")
	conn, err := m.connector.Connect(spanCtx)
	if err != nil {
		err = &ConnectionError{Err: err}
	}
	m.obs.finishSpan(span, err)
	m.obs.recordCreate(ctx, time.Since(start), err)
	if err != nil {
		m.obs.logCreate(ctx, 0, time.Since(start), err)
		return nil, err
	}
	w := newClientWrapper(conn, m.nextID.Add(1), m.obs)
	go m.watch(conn, w.id, w.createdAt)
	m.StatementCaches.attach(w.cache)
	m.obs.logCreate(ctx, w.id, time.Since(start), nil)
	return w, nil
}

// watch waits for the connection to go away and logs why. Errors of the
// driver are never returned to a caller; they show up as IsClosed.
// It holds the connection only, so a dropped wrapper can still be collected.
func (m *Manager) watch(conn DriverConn, id uint64, createdAt time.Time) {
	<-conn.Done()
	if err := conn.Err(); err != nil {
		m.obs.logDriverError(id, err)
	}
	m.obs.recordClosed(context.Background())
	m.obs.logConnectionGone(id, time.Since(createdAt))
}

// Recycle checks an idle connection before the pool hands it out again.
// Any error means the connection must be discarded; Recycle never retries.
func (m *Manager) Recycle(ctx context.Context, w *ClientWrapper) error {
	if w.IsClosed() {
		err := &RecycleError{Message: "Connection closed", Err: ErrConnectionClosed}
		m.obs.logRecycle(ctx, w.id, err)
		m.obs.recordRecycle(ctx, "closed")
		return err
	}
	w.releaseStatements(ctx)
	if !m.doProbe {
		m.obs.recordRecycle(ctx, "ok")
		return nil
	}
	spanCtx, span := m.obs.startSpan(ctx, "recycle", m.probe)
	err := w.conn.SimpleQuery(spanCtx, m.probe)
	m.obs.finishSpan(span, err)
	if err != nil {
		rerr := &RecycleError{Err: err}
		m.obs.logRecycle(ctx, w.id, rerr)
		m.obs.recordRecycle(ctx, "failed")
		return rerr
	}
	m.obs.recordRecycle(ctx, "ok")
	return nil
}

// Detach unregisters the statement cache of a connection that leaves the
// pool for good. Detaching twice is a no-op.
func (m *Manager) Detach(w *ClientWrapper) {
	m.StatementCaches.detach(w.cache)
	m.obs.recordDetach(context.Background())
}
