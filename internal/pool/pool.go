// Package pool implements a bounded pool of reusable connections.
//
// The pool never holds more than MaxSize live connections. Capacity is a
// buffered channel of slot tokens: a borrower owns one token from Acquire
// until Release or Discard, so blocked Acquire calls queue on the channel in
// arrival order and give up after ConnectionTimeout. Connections are created
// lazily through a Manager when no idle one is available.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"userService/internal/errs"
)

// Manager knows how to create, check and destroy connections of type C.
type Manager[C any] interface {
	// Connect opens a new connection.
	Connect(ctx context.Context) (C, error)
	// IsValid runs a round trip against the connection.
	IsValid(ctx context.Context, conn C) error
	// HasBroken reports, without I/O, whether the connection is known to be unusable.
	HasBroken(conn C) bool
	// Close releases the connection's resources.
	Close(conn C) error
}

// Config holds the pool limits. Zero values take the defaults below.
type Config struct {
	MaxSize           int           // live connection limit, default 10
	MinIdle           int           // connections opened by New, default 1, negative for none
	ConnectionTimeout time.Duration // how long Acquire waits, default 30s
	MaxLifetime       time.Duration // 0 means connections never expire
	TestOnCheckout    bool          // validate idle connections before handing them out
}

const (
	defaultMaxSize           = 10
	defaultMinIdle           = 1
	defaultConnectionTimeout = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxSize
	}
	if c.MinIdle < 0 {
		c.MinIdle = 0
	} else if c.MinIdle == 0 {
		c.MinIdle = defaultMinIdle
	}
	if c.MinIdle > c.MaxSize {
		c.MinIdle = c.MaxSize
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = defaultConnectionTimeout
	}
	return c
}

// Stats is a snapshot of the pool's accounting.
type Stats struct {
	MaxSize   int
	Idle      int
	InUse     int
	Created   int64
	Discarded int64
	WaitCount int64
	Timeouts  int64
}

type idleConn[C any] struct {
	conn      C
	createdAt time.Time
}

// Pool is safe for concurrent use by any number of goroutines.
type Pool[C any] struct {
	manager Manager[C]
	cfg     Config
	logger  *zap.Logger

	slots   chan struct{}
	closing chan struct{}

	mu     sync.Mutex
	idle   []idleConn[C]
	closed bool

	created   atomic.Int64
	discarded atomic.Int64
	waits     atomic.Int64
	timeouts  atomic.Int64
}

// New builds a pool and opens cfg.MinIdle connections up front, so that an
// unreachable data source is reported before any request is served.
func New[C any](ctx context.Context, manager Manager[C], cfg Config, logger *zap.Logger) (*Pool[C], error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	p := &Pool[C]{
		manager: manager,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "pool")),
		slots:   make(chan struct{}, cfg.MaxSize),
		closing: make(chan struct{}),
	}

	for i := 0; i < cfg.MinIdle; i++ {
		cctx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
		conn, err := p.connect(cctx)
		cancel()
		if err != nil {
			p.Close()
			return nil, err
		}
		p.idle = append(p.idle, idleConn[C]{conn: conn, createdAt: time.Now()})
	}

	p.logger.Info("pool ready",
		zap.Int("max_size", cfg.MaxSize),
		zap.Int("min_idle", cfg.MinIdle),
		zap.Duration("connection_timeout", cfg.ConnectionTimeout))
	return p, nil
}

// Acquire checks out a connection. The whole call, waiting for capacity plus
// opening a connection, is bounded by ConnectionTimeout. It fails with a
// pool_timeout error when no slot frees up in time, or with a pool_manager
// error when a new connection cannot be opened.
func (p *Pool[C]) Acquire(ctx context.Context) (*Conn[C], error) {
	const op = "pool.acquire"
	deadline := time.Now().Add(p.cfg.ConnectionTimeout)

	select {
	case <-p.closing:
		return nil, errs.E(errs.KindClosed, op, nil)
	default:
	}

	select {
	case p.slots <- struct{}{}:
	default:
		p.waits.Add(1)
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		select {
		case p.slots <- struct{}{}:
		case <-timer.C:
			p.timeouts.Add(1)
			return nil, errs.Errorf(errs.KindPoolTimeout, op, "no connection available within %s", p.cfg.ConnectionTimeout)
		case <-ctx.Done():
			p.timeouts.Add(1)
			return nil, errs.E(errs.KindPoolTimeout, op, ctx.Err())
		case <-p.closing:
			return nil, errs.E(errs.KindClosed, op, nil)
		}
	}

	cctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	c, err := p.checkout(cctx)
	if err != nil {
		<-p.slots
		return nil, err
	}
	return c, nil
}

// checkout runs while the caller holds a slot token. ctx carries the
// acquisition deadline.
func (p *Pool[C]) checkout(ctx context.Context) (*Conn[C], error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errs.E(errs.KindClosed, "pool.acquire", nil)
		}
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			break
		}
		ic := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if p.expired(ic.createdAt) {
			p.destroy(ic.conn, "expired")
			continue
		}
		if p.cfg.TestOnCheckout {
			if err := p.manager.IsValid(ctx, ic.conn); err != nil {
				p.logger.Debug("idle connection failed validation", zap.Error(err))
				p.destroy(ic.conn, "invalid")
				continue
			}
		}
		return &Conn[C]{pool: p, conn: ic.conn, createdAt: ic.createdAt}, nil
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn[C]{pool: p, conn: conn, createdAt: time.Now()}, nil
}

// connect opens a connection within ctx's deadline.
func (p *Pool[C]) connect(ctx context.Context) (C, error) {
	conn, err := p.manager.Connect(ctx)
	if err != nil {
		var zero C
		return zero, errs.E(errs.KindPoolManager, "pool.connect", err)
	}
	p.created.Add(1)
	p.logger.Debug("opened connection", zap.Int64("created", p.created.Load()))
	return conn, nil
}

func (p *Pool[C]) expired(createdAt time.Time) bool {
	return p.cfg.MaxLifetime > 0 && time.Since(createdAt) > p.cfg.MaxLifetime
}

func (p *Pool[C]) destroy(conn C, reason string) {
	p.discarded.Add(1)
	if err := p.manager.Close(conn); err != nil {
		p.logger.Debug("close connection", zap.String("reason", reason), zap.Error(err))
		return
	}
	p.logger.Debug("discarded connection", zap.String("reason", reason))
}

// put returns a checked-out connection and frees its slot.
func (p *Pool[C]) put(c *Conn[C], healthy bool) {
	defer func() { <-p.slots }()

	if healthy && p.manager.HasBroken(c.conn) {
		healthy = false
	}
	if healthy && p.expired(c.createdAt) {
		p.destroy(c.conn, "expired")
		return
	}

	p.mu.Lock()
	if !healthy || p.closed {
		p.mu.Unlock()
		reason := "broken"
		if healthy {
			reason = "pool closed"
		}
		p.destroy(c.conn, reason)
		return
	}
	p.idle = append(p.idle, idleConn[C]{conn: c.conn, createdAt: c.createdAt})
	p.mu.Unlock()
}

// With checks out a connection for the duration of fn. The connection is
// released when fn returns, and discarded if fn panics or the manager reports
// it broken.
func (p *Pool[C]) With(ctx context.Context, fn func(conn C) error) error {
	c, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	completed := false
	defer func() {
		if completed {
			c.Release()
		} else {
			c.Discard()
		}
	}()

	err = fn(c.conn)
	completed = true
	return err
}

// Ping validates one pooled connection.
func (p *Pool[C]) Ping(ctx context.Context) error {
	return p.With(ctx, func(conn C) error {
		return p.manager.IsValid(ctx, conn)
	})
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[C]) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	p.mu.Unlock()
	return Stats{
		MaxSize:   p.cfg.MaxSize,
		Idle:      idle,
		InUse:     len(p.slots),
		Created:   p.created.Load(),
		Discarded: p.discarded.Load(),
		WaitCount: p.waits.Load(),
		Timeouts:  p.timeouts.Load(),
	}
}

// Close closes the idle connections and rejects further acquisitions.
// Connections still checked out are closed when they are returned.
func (p *Pool[C]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.closing)
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, ic := range idle {
		p.destroy(ic.conn, "pool closed")
	}
	p.logger.Info("pool closed", zap.Int("closed_idle", len(idle)))
}

// Conn is a checked-out connection. It must be given back exactly once with
// Release or Discard; further calls are ignored.
type Conn[C any] struct {
	pool      *Pool[C]
	conn      C
	createdAt time.Time
	returned  atomic.Bool
}

// Value returns the underlying connection. It must not be used after the
// Conn is returned.
func (c *Conn[C]) Value() C { return c.conn }

// Release returns the connection to the idle set, unless the manager reports
// it broken.
func (c *Conn[C]) Release() {
	if c.returned.CompareAndSwap(false, true) {
		c.pool.put(c, true)
	}
}

// Discard closes the connection instead of recycling it.
func (c *Conn[C]) Discard() {
	if c.returned.CompareAndSwap(false, true) {
		c.pool.put(c, false)
	}
}
