package tools

import (
	"context"
	"sync"

	"github.com/litesql/dbmcp/internal/backup"
	"github.com/litesql/dbmcp/internal/binder"
	"github.com/litesql/dbmcp/internal/executor"
	"github.com/litesql/dbmcp/internal/health"
	"github.com/litesql/dbmcp/internal/pool"
)

const (
	defaultQueryLimit = 1000
	defaultFetchLimit = 100
	maxFetchLimit     = 10000
)

// Env is what the tool handlers share: the open pools and the services
// built on top of them.
type Env struct {
	pools       *pool.Set
	health      *health.Reporter
	sinks       backup.Sinks
	catalogSize int

	mu    sync.Mutex
	conns map[*pool.Manager]*conn
}

func NewEnv(pools *pool.Set, reporter *health.Reporter, sinks backup.Sinks) *Env {
	if sinks == nil {
		sinks = backup.Sinks{}
	}
	return &Env{
		pools:       pools,
		health:      reporter,
		sinks:       sinks,
		catalogSize: binder.DefaultCatalogSize,
		conns:       make(map[*pool.Manager]*conn),
	}
}

// conn bundles a pool with the executor, catalog and statement builder of
// its dialect. The catalog lives as long as the pool.
type conn struct {
	m       *pool.Manager
	exec    *executor.Executor
	catalog *binder.Catalog
	build   *binder.Builder
}

func (e *Env) conn(name string) (*conn, error) {
	m, err := e.pools.Get(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.conns[m]; ok {
		return c, nil
	}
	for old := range e.conns {
		if cur, err := e.pools.Get(old.Name()); err != nil || cur != old {
			delete(e.conns, old)
		}
	}
	exec := executor.New(m.Dialect())
	catalog, err := binder.NewCatalog(exec, e.catalogSize)
	if err != nil {
		return nil, err
	}
	c := &conn{m: m, exec: exec, catalog: catalog, build: binder.NewBuilder(m.Dialect())}
	e.conns[m] = c
	return c, nil
}

// borrow runs fn with a handle of the named pool. The handle goes back to
// the pool on every exit path of fn, panics included.
func (e *Env) borrow(ctx context.Context, name string, fn func(c *conn, h *pool.Handle) (any, error)) (any, error) {
	c, err := e.conn(name)
	if err != nil {
		return nil, err
	}
	h, err := c.m.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer c.m.Release(h)
	return fn(c, h)
}

// afterDDL drops cached table metadata once a schema change ran, even a
// failed one.
func (c *conn) afterDDL() {
	c.catalog.Invalidate()
}
