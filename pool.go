package ygggo_pg

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool is a bounded pool of connections driven by a ConnectionManager.
// Idle connections are handed out first in, first out, each one passing
// Recycle before it is reused.
type Pool struct {
	manager ConnectionManager
	config  PoolConfig
	obs     *observer
	sem     *semaphore.Weighted
	waiting atomic.Int64

	mu     sync.Mutex
	idle   []*ClientWrapper
	size   int
	closed bool
}

// Status is a snapshot of the pool.
type Status struct {
	MaxSize   int `json:"max_size"`
	Size      int `json:"size"`
	Available int `json:"available"`
	Waiting   int `json:"waiting"`
}

// NewPool creates a pool. No connection is opened until the first Get.
func NewPool(manager ConnectionManager, config PoolConfig) (*Pool, error) {
	if manager == nil {
		return nil, errors.New("ygggo_pg: pool without manager")
	}
	if err := ValidatePoolConfig(config); err != nil {
		return nil, err
	}
	obs := &observer{}
	if m, ok := manager.(*Manager); ok {
		obs = m.obs
	}
	return &Pool{
		manager: manager,
		config:  config,
		obs:     obs,
		sem:     semaphore.NewWeighted(int64(config.MaxSize)),
	}, nil
}

// Manager returns the manager the pool was created with.
func (p *Pool) Manager() ConnectionManager { return p.manager }

// Config returns the pool configuration.
func (p *Pool) Config() PoolConfig { return p.config }

// Client is a connection checked out of a Pool. It must be released with
// Release once the caller is done with it.
type Client struct {
	*ClientWrapper
	pool     *Pool
	released bool
}

// Release returns the connection to its pool. Closed connections are
// discarded. Calling Release more than once is a no-op.
func (c *Client) Release() {
	if c == nil || c.released {
		return
	}
	c.released = true
	c.pool.put(c.ClientWrapper)
}

// Detach takes the connection out of the pool for good. The pool slot is
// freed and the caller becomes responsible for closing the connection.
func (c *Client) Detach() *ClientWrapper {
	if c.released {
		return nil
	}
	c.released = true
	p := c.pool
	p.manager.Detach(c.ClientWrapper)
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
	p.sem.Release(1)
	return c.ClientWrapper
}

// Get checks a connection out, waiting for a free slot when the pool is
// exhausted.
func (p *Pool) Get(ctx context.Context) (*Client, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	w, err := p.checkout(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return &Client{ClientWrapper: w, pool: p}, nil
}

func (p *Pool) acquire(ctx context.Context) error {
	waitCtx, cancel := withTimeout(ctx, p.config.Timeouts.Wait)
	defer cancel()
	p.waiting.Add(1)
	err := p.sem.Acquire(waitCtx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return timeoutErr(ctx, TimeoutWait, p.config.Timeouts.Wait, err)
	}
	if p.isClosed() {
		p.sem.Release(1)
		return ErrPoolClosed
	}
	return nil
}

// checkout returns an idle connection that passed Recycle, or a new one.
// The caller holds a semaphore slot.
func (p *Pool) checkout(ctx context.Context) (*ClientWrapper, error) {
	for {
		w := p.popIdle()
		if w == nil {
			return p.create(ctx)
		}
		recycleCtx, cancel := withTimeout(ctx, p.config.Timeouts.Recycle)
		err := p.manager.Recycle(recycleCtx, w)
		cancel()
		if err == nil {
			return w, nil
		}
		p.discard(ctx, w, "recycle failed")
		if terr := timeoutErr(ctx, TimeoutRecycle, p.config.Timeouts.Recycle, err); terr != err {
			return nil, terr
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) create(ctx context.Context) (*ClientWrapper, error) {
	p.mu.Lock()
	p.size++
	p.mu.Unlock()
	var w *ClientWrapper
	err := retryWithPolicy(ctx, p.config.Retry, func() error {
		createCtx, cancel := withTimeout(ctx, p.config.Timeouts.Create)
		defer cancel()
		var err error
		w, err = p.manager.Create(createCtx)
		return timeoutErr(ctx, TimeoutCreate, p.config.Timeouts.Create, err)
	}, Classify)
	if err != nil {
		p.mu.Lock()
		p.size--
		p.mu.Unlock()
		return nil, err
	}
	return w, nil
}

func (p *Pool) popIdle() *ClientWrapper {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.idle) == 0 {
		return nil
	}
	w := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]
	return w
}

func (p *Pool) put(w *ClientWrapper) {
	defer p.sem.Release(1)
	p.mu.Lock()
	if !p.closed && !w.IsClosed() {
		p.idle = append(p.idle, w)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.discard(context.Background(), w, "released after close")
}

// discard removes w from the pool for good and closes it.
func (p *Pool) discard(ctx context.Context, w *ClientWrapper, reason string) {
	p.manager.Detach(w)
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
	_ = w.Close(ctx)
	p.obs.logPool(ctx, "connection discarded",
		slog.Uint64("conn_id", w.ID()),
		slog.String("reason", reason),
	)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Status returns the current pool status.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		MaxSize:   p.config.MaxSize,
		Size:      p.size,
		Available: len(p.idle),
		Waiting:   int(p.waiting.Load()),
	}
}

// Close closes every idle connection and makes further Get calls fail.
// Connections still checked out are closed when they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	ctx := context.Background()
	var errs []error
	for _, w := range idle {
		p.manager.Detach(w)
		if err := w.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		p.mu.Lock()
		p.size--
		p.mu.Unlock()
	}
	p.obs.logPool(ctx, "pool closed", slog.Int("closed_idle", len(idle)))
	return errors.Join(errs...)
}

// WithConn runs fn with a checked out client and releases it afterwards.
func (p *Pool) WithConn(ctx context.Context, fn func(*Client) error) error {
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer c.Release()
	return fn(c)
}

// WithinTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. Serialization failures and deadlocks rerun the
// whole transaction according to the pool's RetryPolicy.
func (p *Pool) WithinTx(ctx context.Context, fn func(*Transaction) error) error {
	return retryWithPolicy(ctx, p.config.Retry, func() error {
		return p.WithConn(ctx, func(c *Client) error {
			tx, err := c.Transaction(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if !tx.done {
					_ = tx.Rollback(ctx)
				}
			}()
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		})
	}, Classify)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// timeoutErr turns a deadline hit by the step timeout d, rather than by the
// caller's own ctx, into a TimeoutError.
func timeoutErr(ctx context.Context, typ TimeoutType, d time.Duration, err error) error {
	if err == nil || d <= 0 || ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TimeoutError{Type: typ, Timeout: d, Err: err}
}
