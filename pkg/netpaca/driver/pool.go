package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// PoolOptions configures the connection pool behaviour.
type PoolOptions struct {
	// MaxIdlePerDevice is the maximum number of idle sessions kept per device
	// (default 2). Excess sessions returned via Put are closed immediately.
	MaxIdlePerDevice int

	// IdleTimeout is how long an idle session remains in the pool before being
	// discarded. Zero means no expiry.
	IdleTimeout time.Duration

	// Dial creates new sessions. Defaults to NewSession when nil.
	Dial func(Target) (Session, error)
}

func (o *PoolOptions) defaults() {
	if o.MaxIdlePerDevice <= 0 {
		o.MaxIdlePerDevice = 2
	}
	if o.Dial == nil {
		o.Dial = NewSession
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Connection pool
// ─────────────────────────────────────────────────────────────────────────────

type poolEntry struct {
	conn       Session
	returnedAt time.Time
}

// devicePool is the per-device idle list + concurrency semaphore.
type devicePool struct {
	mu   sync.Mutex
	idle []poolEntry // LIFO stack

	// sem limits concurrent in-flight requests for this device; its
	// capacity is SNMP.MaxConcurrent.
	sem chan struct{}
}

// ConnectionPool manages SNMP sessions keyed by device name. Every task of a
// device shares the pool, so the per-device semaphore is what makes the
// shared connection safe under concurrent collectors.
type ConnectionPool struct {
	opts   PoolOptions
	logger *slog.Logger

	mu    sync.RWMutex
	pools map[string]*devicePool

	closeOnce sync.Once
	closed    chan struct{}
}

// NewConnectionPool creates a ready-to-use pool.
func NewConnectionPool(opts PoolOptions, logger *slog.Logger) *ConnectionPool {
	opts.defaults()
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &ConnectionPool{
		opts:   opts,
		logger: logger,
		pools:  make(map[string]*devicePool),
		closed: make(chan struct{}),
	}
}

// Get acquires a session for the named device. It blocks while the
// per-device concurrency limit is reached and respects ctx.
func (p *ConnectionPool) Get(ctx context.Context, name string, t Target) (Session, error) {
	dp := p.getOrCreatePool(name, t.SNMP.MaxConcurrent)

	select {
	case <-p.closed:
		return nil, fmt.Errorf("pool closed")
	default:
	}

	select {
	case dp.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, fmt.Errorf("pool closed")
	}

	if conn := p.popIdle(dp); conn != nil {
		return conn, nil
	}

	conn, err := p.opts.Dial(t)
	if err != nil {
		<-dp.sem
		return nil, err
	}
	p.logger.Debug("driver: snmp session opened", "device", name, "target", t.Host)
	return conn, nil
}

// Put returns a session to the idle pool and releases the concurrency slot.
// When the idle pool is full the session is closed.
func (p *ConnectionPool) Put(name string, conn Session) {
	dp := p.getPool(name)
	if dp == nil {
		_ = conn.Close()
		return
	}
	defer func() { <-dp.sem }()

	dp.mu.Lock()
	defer dp.mu.Unlock()

	select {
	case <-p.closed:
		_ = conn.Close()
		return
	default:
	}
	if len(dp.idle) >= p.opts.MaxIdlePerDevice {
		_ = conn.Close()
		return
	}
	dp.idle = append(dp.idle, poolEntry{conn: conn, returnedAt: time.Now()})
}

// Discard closes a broken session and releases the concurrency slot.
func (p *ConnectionPool) Discard(name string, conn Session) {
	_ = conn.Close()
	if dp := p.getPool(name); dp != nil {
		<-dp.sem
	}
}

// Close drains all idle sessions and makes further Get calls fail.
func (p *ConnectionPool) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)

		p.mu.Lock()
		defer p.mu.Unlock()
		for _, dp := range p.pools {
			dp.mu.Lock()
			for _, e := range dp.idle {
				_ = e.conn.Close()
			}
			dp.idle = nil
			dp.mu.Unlock()
		}
	})
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (p *ConnectionPool) getOrCreatePool(name string, maxConcurrent int) *devicePool {
	p.mu.RLock()
	dp, ok := p.pools[name]
	p.mu.RUnlock()
	if ok {
		return dp
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if dp, ok = p.pools[name]; ok {
		return dp
	}
	dp = &devicePool{
		idle: make([]poolEntry, 0, p.opts.MaxIdlePerDevice),
		sem:  make(chan struct{}, maxConcurrent),
	}
	p.pools[name] = dp
	return dp
}

func (p *ConnectionPool) getPool(name string) *devicePool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pools[name]
}

func (p *ConnectionPool) popIdle(dp *devicePool) Session {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	for len(dp.idle) > 0 {
		n := len(dp.idle) - 1
		entry := dp.idle[n]
		dp.idle = dp.idle[:n]

		if p.opts.IdleTimeout > 0 && time.Since(entry.returnedAt) > p.opts.IdleTimeout {
			_ = entry.conn.Close()
			continue
		}
		return entry.conn
	}
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }
