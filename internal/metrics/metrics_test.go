package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/pool"
)

func TestObserveInvocation(t *testing.T) {
	m := New(pool.NewSet(config.Profile{}))
	m.ObserveInvocation("fetch_data", 3*time.Millisecond, "")
	m.ObserveInvocation("fetch_data", time.Millisecond, dberr.PoolExhausted)
	m.ObserveInvocation("insert_data", time.Millisecond, dberr.ConstraintViolation)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("fetch_data", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invocations.WithLabelValues("fetch_data", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("insert_data", string(dberr.ConstraintViolation))))
	assert.Equal(t, 2, testutil.CollectAndCount(m.errors))
}

func TestPoolCollector(t *testing.T) {
	ctx := context.Background()
	p := config.Profile{
		Driver:         config.DriverSQLite,
		Database:       filepath.Join(t.TempDir(), "metrics.db"),
		MinConns:       1,
		MaxConns:       3,
		AcquireTimeout: time.Second,
	}
	pools := pool.NewSet(p)
	t.Cleanup(func() { pools.Close(ctx) })
	_, err := pools.Open(ctx, pool.DefaultName, p)
	require.NoError(t, err)

	m := New(pools)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(b)

	assert.Contains(t, body, `dbmcp_pool_connections{connection="default",driver="sqlite",state="idle"} 1`)
	assert.Contains(t, body, `dbmcp_pool_max_connections{connection="default",driver="sqlite"} 3`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
