// Package http serves the tools as plain JSON endpoints next to the MCP,
// health and metrics endpoints.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/health"
	"github.com/litesql/dbmcp/internal/tools"
)

const maxBodyBytes = 8 << 20

type Config struct {
	Dispatcher *tools.Dispatcher
	Health     *health.Reporter
	Metrics    http.Handler
	MCP        http.Handler
}

func NewMux(cfg Config) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tools", ListToolsHandler(cfg.Dispatcher))
	mux.HandleFunc("POST /tools/{name}", ToolHandler(cfg.Dispatcher))
	mux.HandleFunc("GET /healthz", HealthHandler(cfg.Health))
	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics)
	}
	if cfg.MCP != nil {
		mux.Handle("/mcp", cfg.MCP)
	}
	return mux
}

type toolInfo struct {
	Name        tools.Name `json:"name"`
	Description string     `json:"description"`
	Mutating    bool       `json:"mutating"`
	InputSchema any        `json:"input_schema"`
}

func ListToolsHandler(d *tools.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := d.Registry().List()
		out := make([]toolInfo, 0, len(list))
		for _, t := range list {
			out = append(out, toolInfo{Name: t.Name, Description: t.Description, Mutating: t.Mutating, InputSchema: t.InputSchema})
		}
		writeJSON(w, http.StatusOK, map[string][]toolInfo{"tools": out})
	}
}

func ToolHandler(d *tools.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res := d.Dispatch(r.Context(), tools.Invocation{Tool: r.PathValue("name"), Args: body})
		status := http.StatusOK
		if res.Failed() {
			status = statusOf(res.Error.Kind)
		}
		writeJSON(w, status, res)
	}
}

func statusOf(kind dberr.Kind) int {
	switch kind {
	case dberr.UnknownTool:
		return http.StatusNotFound
	case dberr.InvalidArgument:
		return http.StatusBadRequest
	case dberr.ConstraintViolation:
		return http.StatusConflict
	case dberr.PoolExhausted, dberr.PoolUnavailable:
		return http.StatusServiceUnavailable
	case dberr.ConnectionBroken:
		return http.StatusBadGateway
	case dberr.TransactionAborted:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// HealthHandler checks every open connection. Only an unhealthy connection
// fails the probe.
func HealthHandler(reporter *health.Reporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum := reporter.CheckAll(r.Context())
		status := http.StatusOK
		if sum.Status == health.Unhealthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, sum)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
