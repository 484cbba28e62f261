package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litesql/dbmcp/internal/backup"
	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/health"
	"github.com/litesql/dbmcp/internal/pool"
	"github.com/litesql/dbmcp/internal/tools"
)

func newSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	p := config.Profile{
		Driver:         config.DriverSQLite,
		Database:       filepath.Join(t.TempDir(), "mcp.db"),
		MinConns:       1,
		MaxConns:       2,
		AcquireTimeout: 200 * time.Millisecond,
	}
	pools := pool.NewSet(p)
	t.Cleanup(func() { pools.Close(ctx) })
	_, err := pools.Open(ctx, pool.DefaultName, p)
	require.NoError(t, err)

	env := tools.NewEnv(pools, health.NewReporter(pools, 100*time.Millisecond), backup.Sinks{})
	server := NewServer(tools.NewDispatcher(tools.NewRegistry(env), nil), "test")

	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func text(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &out))
	return out
}

func TestListTools(t *testing.T) {
	cs := newSession(t)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Tools, 15)

	byName := make(map[string]*mcp.Tool)
	for _, tool := range res.Tools {
		byName[tool.Name] = tool
	}
	for _, name := range []string{"connect", "execute_query", "fetch_data", "backup_table", "health_check"} {
		require.Contains(t, byName, name)
		assert.NotNil(t, byName[name].InputSchema, name)
	}
	require.NotNil(t, byName["describe_table"].Annotations)
	assert.True(t, byName["describe_table"].Annotations.ReadOnlyHint)
	require.NotNil(t, byName["drop_table"].Annotations.DestructiveHint)
	assert.True(t, *byName["drop_table"].Annotations.DestructiveHint)
}

func TestCallTool(t *testing.T) {
	cs := newSession(t)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "execute_query",
		Arguments: map[string]any{"statement": "CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name: "insert_data",
		Arguments: map[string]any{
			"table": "notes",
			"rows":  []map[string]any{{"id": 1, "body": "first"}, {"id": 2, "body": "second"}},
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, map[string]any{"table": "notes", "inserted": float64(2)}, text(t, res)["result"])
	assert.NotNil(t, res.StructuredContent)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "count_records",
		Arguments: map[string]any{"table": "notes", "filter": map[string]any{"body": "second"}},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, float64(1), text(t, res)["result"].(map[string]any)["count"])
}

func TestCallToolError(t *testing.T) {
	cs := newSession(t)
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "fetch_data",
		Arguments: map[string]any{"table": "missing"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	body := text(t, res)["error"].(map[string]any)
	assert.Equal(t, "InvalidArgument", body["kind"])
	assert.Contains(t, body["message"], "missing")
}
