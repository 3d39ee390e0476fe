package ygggo_pg

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// HealthStatus represents the overall health of a pool
type HealthStatus struct {
	Healthy           bool           `json:"healthy"`
	LastChecked       time.Time      `json:"last_checked"`
	ResponseTime      time.Duration  `json:"response_time"`
	ConnectionsActive int            `json:"connections_active"`
	ConnectionsIdle   int            `json:"connections_idle"`
	ConnectionsMax    int            `json:"connections_max"`
	Errors            []HealthError  `json:"errors,omitempty"`
	Details           map[string]any `json:"details,omitempty"`
}

// HealthError represents a health check error
type HealthError struct {
	Type        string    `json:"type"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

// HealthCheckConfig configures health check behavior
type HealthCheckConfig struct {
	Timeout            time.Duration `json:"timeout"`
	TestQuery          string        `json:"test_query"`
	MonitoringInterval time.Duration `json:"monitoring_interval"`
}

// DefaultHealthCheckConfig returns default health check configuration
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Timeout:            5 * time.Second,
		TestQuery:          "SELECT 1",
		MonitoringInterval: 30 * time.Second,
	}
}

// HealthCheck checks out a connection, which runs the recycle check on an
// idle one, executes the default test query and reports pool status.
func (p *Pool) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return p.HealthCheckWithConfig(ctx, DefaultHealthCheckConfig())
}

// HealthCheckWithConfig performs a health check with custom configuration
func (p *Pool) HealthCheckWithConfig(ctx context.Context, config HealthCheckConfig) (*HealthStatus, error) {
	start := time.Now()
	status := &HealthStatus{
		LastChecked: start,
		Details:     make(map[string]any),
	}

	timeoutCtx, cancel := withTimeout(ctx, config.Timeout)
	defer cancel()

	if err := p.performQueryCheck(timeoutCtx, config, status); err != nil {
		status.Errors = append(status.Errors, HealthError{
			Type:        "query_execution",
			Message:     fmt.Sprintf("Query execution failed: %v", err),
			Timestamp:   time.Now(),
			Recoverable: !errors.Is(err, ErrPoolClosed),
		})
	}

	p.collectPoolStats(status)
	status.ResponseTime = time.Since(start)
	status.Healthy = len(status.Errors) == 0
	return status, nil
}

// performQueryCheck runs the test query on a checked out connection
func (p *Pool) performQueryCheck(ctx context.Context, config HealthCheckConfig, status *HealthStatus) error {
	start := time.Now()
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer c.Release()
	status.Details["acquire_time"] = time.Since(start)

	start = time.Now()
	if err := c.SimpleQuery(ctx, config.TestQuery); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	status.Details["query_time"] = time.Since(start)
	return nil
}

// collectPoolStats gathers pool and statement cache statistics
func (p *Pool) collectPoolStats(status *HealthStatus) {
	st := p.Status()
	status.ConnectionsActive = st.Size - st.Available
	status.ConnectionsIdle = st.Available
	status.ConnectionsMax = st.MaxSize
	status.Details["pool_stats"] = map[string]any{
		"size":      st.Size,
		"available": st.Available,
		"waiting":   st.Waiting,
	}
	if m, ok := p.manager.(*Manager); ok {
		cs := m.StatementCaches.Stats()
		status.Details["statement_caches"] = map[string]any{
			"caches":     cs.Caches,
			"statements": cs.Statements,
		}
	}
}

// HealthMonitor runs health checks of a pool at a fixed interval
type HealthMonitor struct {
	pool   *Pool
	config HealthCheckConfig

	statusMutex sync.RWMutex
	status      *HealthStatus

	runningMutex sync.Mutex
	stopChan     chan struct{}
	doneChan     chan struct{}
	running      bool
}

// NewHealthMonitor creates a new health monitor for a pool
func NewHealthMonitor(pool *Pool, config HealthCheckConfig) *HealthMonitor {
	return &HealthMonitor{
		pool:   pool,
		config: config,
		status: &HealthStatus{Details: make(map[string]any)},
	}
}

// Start begins continuous health monitoring
func (hm *HealthMonitor) Start() error {
	hm.runningMutex.Lock()
	defer hm.runningMutex.Unlock()
	if hm.running {
		return fmt.Errorf("health monitoring is already running")
	}
	if hm.config.MonitoringInterval <= 0 {
		return fmt.Errorf("monitoring interval must be positive, got %s", hm.config.MonitoringInterval)
	}
	hm.stopChan = make(chan struct{})
	hm.doneChan = make(chan struct{})
	hm.running = true
	go hm.monitorLoop(hm.stopChan, hm.doneChan)
	return nil
}

// Stop stops monitoring and waits for a running check to finish
func (hm *HealthMonitor) Stop() error {
	hm.runningMutex.Lock()
	defer hm.runningMutex.Unlock()
	if !hm.running {
		return fmt.Errorf("health monitoring is not running")
	}
	close(hm.stopChan)
	<-hm.doneChan
	hm.running = false
	return nil
}

// IsRunning returns whether health monitoring is currently active
func (hm *HealthMonitor) IsRunning() bool {
	hm.runningMutex.Lock()
	defer hm.runningMutex.Unlock()
	return hm.running
}

// GetStatus returns a copy of the latest health status
func (hm *HealthMonitor) GetStatus() *HealthStatus {
	hm.statusMutex.RLock()
	defer hm.statusMutex.RUnlock()
	status := *hm.status
	status.Details = maps.Clone(hm.status.Details)
	status.Errors = append([]HealthError(nil), hm.status.Errors...)
	return &status
}

func (hm *HealthMonitor) monitorLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(hm.config.MonitoringInterval)
	defer ticker.Stop()

	hm.performHealthCheck()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hm.performHealthCheck()
		}
	}
}

func (hm *HealthMonitor) performHealthCheck() {
	status, _ := hm.pool.HealthCheckWithConfig(context.Background(), hm.config)
	hm.statusMutex.Lock()
	hm.status = status
	hm.statusMutex.Unlock()
}
