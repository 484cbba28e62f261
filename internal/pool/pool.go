// Package pool manages bounded sets of pinned database sessions.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/puddle/v2"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/dialect"
)

type Stat struct {
	Idle         int32 `json:"idle"`
	InUse        int32 `json:"in_use"`
	Constructing int32 `json:"constructing"`
	Total        int32 `json:"total"`
	Max          int32 `json:"max"`
	Min          int32 `json:"min"`
	AcquireCount int64 `json:"acquire_count"`
	Canceled     int64 `json:"canceled_acquire_count"`
	Discarded    int64 `json:"discarded_count"`
}

// Saturated reports whether every handle is borrowed and the pool cannot grow.
func (s Stat) Saturated() bool {
	return s.Max > 0 && s.InUse >= s.Max
}

type Manager struct {
	name    string
	profile config.Profile
	dialect dialect.Dialect
	db      *sql.DB
	pool    *puddle.Pool[*Handle]

	mu        sync.Mutex
	closed    atomic.Bool
	discarded atomic.Int64
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New opens the driver, verifies that the target accepts the credentials and
// warms the pool up to the profile minimum.
func New(ctx context.Context, name string, p config.Profile) (*Manager, error) {
	if err := p.Validate(); err != nil {
		return nil, dberr.Wrap(dberr.InvalidArgument, "connect", err)
	}
	d, err := dialect.Get(p.Driver)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidArgument, "connect", err)
	}
	dsn, err := d.DSN(p)
	if err != nil {
		return nil, dberr.Wrap(dberr.InvalidArgument, "connect", err)
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, &dberr.Error{Kind: dberr.PoolUnavailable, Op: "connect", Message: "open " + p.String(), Cause: err}
	}
	db.SetMaxOpenConns(p.MaxConns)
	db.SetMaxIdleConns(0)

	pingCtx, cancel := context.WithTimeout(ctx, p.AcquireTimeout)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		db.Close()
		return nil, unavailable("cannot reach "+p.String(), err)
	}

	m := &Manager{
		name:    name,
		profile: p,
		dialect: d,
		db:      db,
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.pool, err = puddle.NewPool(&puddle.Config[*Handle]{
		Constructor: m.construct,
		Destructor: func(h *Handle) {
			if err := h.close(); err != nil {
				slog.Debug("close connection", "connection", m.name, "id", h.id, "error", err)
			}
		},
		MaxSize: int32(p.MaxConns),
	})
	if err != nil {
		m.cancel()
		db.Close()
		return nil, dberr.Wrap(dberr.InternalError, "connect", err)
	}

	for range p.MinConns {
		warmCtx, cancel := context.WithTimeout(ctx, p.AcquireTimeout)
		err := m.pool.CreateResource(warmCtx)
		cancel()
		if err != nil {
			m.cancel()
			m.pool.Close()
			db.Close()
			return nil, unavailable("warm up "+p.String(), err)
		}
	}

	if p.IdleTimeout > 0 {
		m.wg.Add(1)
		go m.reapLoop(p.IdleTimeout)
	}
	slog.Info("connection pool ready", "connection", name, "target", p.String(), "min", p.MinConns, "max", p.MaxConns)
	return m, nil
}

func (m *Manager) construct(ctx context.Context) (*Handle, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	h := newHandle(conn)
	slog.Debug("connection opened", "connection", m.name, "id", h.id)
	return h, nil
}

func (m *Manager) Name() string { return m.name }

func (m *Manager) Profile() config.Profile { return m.profile }

func (m *Manager) Dialect() dialect.Dialect { return m.dialect }

// Acquire borrows a handle, waiting at most the profile's acquire timeout.
func (m *Manager) Acquire(ctx context.Context) (*Handle, error) {
	return m.AcquireTimeout(ctx, m.profile.AcquireTimeout)
}

func (m *Manager) AcquireTimeout(ctx context.Context, timeout time.Duration) (*Handle, error) {
	if m.closed.Load() {
		return nil, dberr.New(dberr.PoolUnavailable, "acquire", fmt.Sprintf("connection %q is closed", m.name))
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		res, err := m.pool.Acquire(actx)
		if err != nil {
			return nil, m.acquireError(ctx, err, timeout)
		}
		h := res.Value()
		if h.checkout(res) {
			return h, nil
		}
		// A handle left broken by a previous borrower never reaches here in
		// practice; drop it and try again.
		res.Hijack()
		h.discard()
		m.discarded.Add(1)
		m.replenish()
	}
}

func (m *Manager) acquireError(ctx context.Context, err error, timeout time.Duration) error {
	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return dberr.New(dberr.PoolUnavailable, "acquire", fmt.Sprintf("connection %q is closed", m.name))
	case ctx.Err() != nil:
		return dberr.Wrap(dberr.InternalError, "acquire", ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		stat := m.Stat()
		if stat.Total-stat.Constructing >= stat.Max {
			return &dberr.Error{
				Kind:    dberr.PoolExhausted,
				Op:      "acquire",
				Message: fmt.Sprintf("all %d connections of %q in use after %s", stat.Max, m.name, timeout),
			}
		}
		return dberr.New(dberr.PoolUnavailable, "acquire", fmt.Sprintf("timed out connecting to %s", m.profile))
	}
	return unavailable("connect to "+m.profile.String(), err)
}

// Release returns a healthy handle to the pool. A broken handle is removed,
// its session discarded, and the pool refilled to its minimum in the
// background. Releasing twice is a no-op.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	res, broken := h.checkin()
	if res == nil {
		return
	}
	if !broken {
		res.Release()
		return
	}
	res.Hijack()
	m.discarded.Add(1)
	slog.Warn("discarding broken connection", "connection", m.name, "id", h.id, "error", h.LastError())
	h.discard()
	m.replenish()
}

func (m *Manager) replenish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for !m.closed.Load() && m.pool.Stat().TotalResources() < int32(m.profile.MinConns) {
			ctx, cancel := context.WithTimeout(m.ctx, m.profile.AcquireTimeout)
			err := m.pool.CreateResource(ctx)
			cancel()
			if err != nil {
				if !errors.Is(err, puddle.ErrNotAvailable) && !errors.Is(err, puddle.ErrClosedPool) {
					slog.Warn("replenish connection pool", "connection", m.name, "error", err)
				}
				return
			}
		}
	}()
}

func (m *Manager) reapLoop(idleTimeout time.Duration) {
	defer m.wg.Done()
	interval := max(idleTimeout/2, 10*time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if n := m.reapIdle(idleTimeout); n > 0 {
				slog.Debug("closed idle connections", "connection", m.name, "count", n)
			}
		}
	}
}

// reapIdle closes idle handles above the minimum that have not been used for
// idleTimeout.
func (m *Manager) reapIdle(idleTimeout time.Duration) int {
	total := m.pool.Stat().TotalResources()
	closed := 0
	for _, res := range m.pool.AcquireAllIdle() {
		if total > int32(m.profile.MinConns) && res.IdleDuration() > idleTimeout {
			res.Destroy()
			total--
			closed++
			continue
		}
		res.ReleaseUnused()
	}
	return closed
}

// Ping borrows a handle and runs the dialect's round-trip statement on it.
func (m *Manager) Ping(ctx context.Context, timeout time.Duration) (time.Duration, error) {
	h, err := m.AcquireTimeout(ctx, timeout)
	if err != nil {
		return 0, err
	}
	defer m.Release(h)
	start := time.Now()
	if err := h.ping(ctx, m.dialect.PingStatement()); err != nil {
		kind := dialect.ClassifyError(m.dialect, err)
		if kind == dberr.ConnectionBroken {
			h.MarkBroken(err)
		}
		return time.Since(start), dberr.Wrap(kind, "ping", err)
	}
	return time.Since(start), nil
}

func (m *Manager) Stat() Stat {
	s := m.pool.Stat()
	return Stat{
		Idle:         s.IdleResources(),
		InUse:        s.AcquiredResources(),
		Constructing: s.ConstructingResources(),
		Total:        s.TotalResources(),
		Max:          s.MaxResources(),
		Min:          int32(m.profile.MinConns),
		AcquireCount: s.AcquireCount(),
		Canceled:     s.CanceledAcquireCount(),
		Discarded:    m.discarded.Load(),
	}
}

// Shutdown rejects new acquisitions, waits for borrowed handles to come back
// and closes every session. It gives up waiting when ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closed.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.pool.Close()
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(dberr.Wrap(dberr.InternalError, "shutdown", ctx.Err()), m.db.Close())
	}
	slog.Info("connection pool closed", "connection", m.name)
	return m.db.Close()
}

func (m *Manager) Closed() bool {
	return m.closed.Load()
}

func unavailable(message string, err error) error {
	return &dberr.Error{Kind: dberr.PoolUnavailable, Op: "connect", Message: message, Cause: err}
}
