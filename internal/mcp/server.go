// Package mcp exposes the tool registry over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/litesql/dbmcp/internal/tools"
)

const instructions = `Database tools over pooled connections. Open extra connections with connect
and pass connection_name to the other tools; without it the default connection is used.
Values are always bound as parameters. Identifiers must name existing tables and columns.`

func NewServer(d *tools.Dispatcher, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "dbmcp", Version: version}, &mcp.ServerOptions{
		Instructions: instructions,
	})
	for _, t := range d.Registry().List() {
		server.AddTool(&mcp.Tool{
			Name:        string(t.Name),
			Description: t.Description,
			InputSchema: t.InputSchema,
			Annotations: annotations(t),
		}, handler(d, t.Name))
	}
	return server
}

func annotations(t *tools.Tool) *mcp.ToolAnnotations {
	if t.Mutating {
		destructive := t.Name == tools.DropTable || t.Name == tools.DeleteData
		return &mcp.ToolAnnotations{DestructiveHint: &destructive}
	}
	switch t.Name {
	case tools.ListConnections, tools.HealthCheck, tools.FetchData, tools.CountRecords, tools.ListTables, tools.DescribeTable:
		return &mcp.ToolAnnotations{ReadOnlyHint: true}
	}
	return nil
}

func handler(d *tools.Dispatcher, name tools.Name) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := d.Dispatch(ctx, tools.Invocation{Tool: string(name), Args: req.Params.Arguments})
		return toolResult(res)
	}
}

func toolResult(res tools.Result) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(b)}},
		StructuredContent: json.RawMessage(b),
		IsError:           res.Failed(),
	}, nil
}

// RunStdio serves one client on stdin/stdout until it disconnects or ctx is
// done.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

func NewHTTPHandler(server *mcp.Server) *mcp.StreamableHTTPHandler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)
}
