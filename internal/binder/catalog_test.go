package binder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/executor"
	"github.com/litesql/dbmcp/internal/pool"
)

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	m, err := pool.New(ctx, pool.DefaultName, config.Profile{
		Driver:         config.DriverSQLite,
		Database:       filepath.Join(t.TempDir(), "catalog.db"),
		MinConns:       1,
		MaxConns:       1,
		AcquireTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown(ctx) })
	h, err := m.Acquire(ctx)
	require.NoError(t, err)
	defer m.Release(h)

	exec := executor.New(m.Dialect())
	require.NoError(t, exec.DDL(ctx, h, executor.Statement{SQL: `CREATE TABLE "Orders" (id INTEGER PRIMARY KEY, total NUMERIC NOT NULL DEFAULT 0, note TEXT)`}))
	require.NoError(t, exec.DDL(ctx, h, executor.Statement{SQL: `CREATE VIEW big_orders AS SELECT * FROM "Orders" WHERE total > 100`}))

	c, err := NewCatalog(exec, 8)
	require.NoError(t, err)

	tables, err := c.Tables(ctx, h, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"BASE TABLE", "VIEW"}, []string{tables[0].Type, tables[1].Type})
	assert.Equal(t, "Orders", tables[0].Name)
	assert.Equal(t, "big_orders", tables[1].Name)

	info, err := c.Lookup(ctx, h, "", "Orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "total", "note"}, info.ColumnNames())
	total, ok := info.Column("total")
	require.True(t, ok)
	assert.False(t, total.Nullable)
	require.NotNil(t, total.Default)
	assert.Equal(t, "0", *total.Default)
	assert.Equal(t, 2, total.Position)
	assert.Equal(t, 1, c.Len())

	exists, err := c.Exists(ctx, h, "", "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = c.Lookup(ctx, h, "main; --", "Orders")
	assert.Equal(t, dberr.InvalidArgument, dberr.KindOf(err))

	require.NoError(t, exec.DDL(ctx, h, executor.Statement{SQL: `ALTER TABLE "Orders" ADD COLUMN shipped BOOLEAN`}))
	c.Invalidate()
	assert.Equal(t, 0, c.Len())
	info, err = c.Lookup(ctx, h, "main", "Orders")
	require.NoError(t, err)
	assert.Contains(t, info.ColumnNames(), "shipped")
}
