// Package tools holds the closed set of database tools and the dispatcher
// that runs them.
package tools

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/litesql/dbmcp/internal/binder"
	"github.com/litesql/dbmcp/internal/dberr"
)

type Name string

const (
	Connect         Name = "connect"
	Disconnect      Name = "disconnect"
	ListConnections Name = "list_connections"
	HealthCheck     Name = "health_check"
	ExecuteQuery    Name = "execute_query"
	FetchData       Name = "fetch_data"
	CountRecords    Name = "count_records"
	CreateTable     Name = "create_table"
	DropTable       Name = "drop_table"
	ListTables      Name = "list_tables"
	DescribeTable   Name = "describe_table"
	InsertData      Name = "insert_data"
	UpdateData      Name = "update_data"
	DeleteData      Name = "delete_data"
	BackupTable     Name = "backup_table"
)

// Invocation is one tool call as received from a transport.
type Invocation struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"arguments,omitempty"`
}

type ErrorBody struct {
	Kind    dberr.Kind `json:"kind"`
	Message string     `json:"message"`
}

// Result carries either a value or an error, never both.
type Result struct {
	Value any
	Error *ErrorBody
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			Error *ErrorBody `json:"error"`
		}{r.Error})
	}
	return json.Marshal(struct {
		Result any `json:"result"`
	}{r.Value})
}

func (r Result) Failed() bool {
	return r.Error != nil
}

func errorResult(err error) Result {
	return Result{Error: &ErrorBody{Kind: dberr.KindOf(err), Message: err.Error()}}
}

type Tool struct {
	Name        Name
	Description string
	Mutating    bool
	InputSchema *jsonschema.Schema

	run func(ctx context.Context, args json.RawMessage) (any, error)
}

type validator interface {
	validate() error
}

// newTool adapts a typed handler. Arguments are decoded into In with unknown
// keys rejected and numbers kept exact, then checked by In's validate
// method when it has one.
func newTool[In any](name Name, description string, mutating bool, handler func(context.Context, *In) (any, error)) *Tool {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		panic(fmt.Sprintf("schema of %s: %v", name, err))
	}
	return &Tool{
		Name:        name,
		Description: description,
		Mutating:    mutating,
		InputSchema: schema,
		run: func(ctx context.Context, args json.RawMessage) (any, error) {
			in := new(In)
			if len(args) == 0 || string(args) == "null" {
				args = json.RawMessage("{}")
			}
			if err := binder.DecodeJSON(args, in); err != nil {
				return nil, dberr.Invalid(string(name), "invalid arguments: "+err.Error())
			}
			if v, ok := any(in).(validator); ok {
				if err := v.validate(); err != nil {
					return nil, err
				}
			}
			return handler(ctx, in)
		},
	}
}

// Registry is the immutable set of tools, built once at startup.
type Registry struct {
	tools map[Name]*Tool
}

func NewRegistry(env *Env) *Registry {
	r := &Registry{tools: make(map[Name]*Tool)}
	for _, t := range []*Tool{
		newTool(Connect, "Open (or replace) a named connection pool. Settings not given are taken from the server configuration.", false, env.connect),
		newTool(Disconnect, "Close a named connection pool.", false, env.disconnect),
		newTool(ListConnections, "List the open connections with their pool statistics.", false, env.listConnections),
		newTool(HealthCheck, "Run a round trip on a connection and report its status, latency and pool usage.", false, env.healthCheck),
		newTool(ExecuteQuery, "Execute one SQL statement with bound parameters. Reads return rows; writes run in a transaction and return affected rows.", false, env.executeQuery),
		newTool(FetchData, "Read rows from a table with an optional projection, structured filter, ordering and pagination.", false, env.fetchData),
		newTool(CountRecords, "Count the rows of a table matching an optional structured filter.", false, env.countRecords),
		newTool(CreateTable, "Create a table from column definitions.", true, env.createTable),
		newTool(DropTable, "Drop a table.", true, env.dropTable),
		newTool(ListTables, "List the tables and views of a schema.", false, env.listTables),
		newTool(DescribeTable, "Describe the columns of a table.", false, env.describeTable),
		newTool(InsertData, "Insert rows into a table in a single transaction.", true, env.insertData),
		newTool(UpdateData, "Update the rows matching a non-empty filter.", true, env.updateData),
		newTool(DeleteData, "Delete the rows matching a non-empty filter.", true, env.deleteData),
		newTool(BackupTable, "Copy a table into a new table, or export it as jsonl or csv to a file, NATS object store, Kafka topic or S3 bucket.", false, env.backupTable),
	} {
		r.tools[t.Name] = t
	}
	return r
}

func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[Name(name)]
	return t, ok
}

// List returns the tools sorted by name.
func (r *Registry) List() []*Tool {
	list := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		list = append(list, t)
	}
	slices.SortFunc(list, func(a, b *Tool) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return list
}

type Observer interface {
	ObserveInvocation(tool string, elapsed time.Duration, kind dberr.Kind)
}

type Dispatcher struct {
	registry *Registry
	observer Observer
}

func NewDispatcher(r *Registry, o Observer) *Dispatcher {
	return &Dispatcher{registry: r, observer: o}
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one invocation. Every outcome, including a panic in the
// handler, comes back as a Result.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) (res Result) {
	start := time.Now()
	log := slog.With("tool", inv.Tool)
	log.Debug("tool invocation received")
	defer func() {
		if p := recover(); p != nil {
			log.Error("tool handler panicked", "panic", p, "stack", string(debug.Stack()))
			res = Result{Error: &ErrorBody{Kind: dberr.InternalError, Message: fmt.Sprintf("%s: unexpected failure: %v", inv.Tool, p)}}
		}
		elapsed := time.Since(start)
		var kind dberr.Kind
		if res.Error != nil {
			kind = res.Error.Kind
			log.Info("tool invocation failed", "kind", kind, "error", res.Error.Message, "duration", elapsed)
		} else {
			log.Debug("tool invocation succeeded", "duration", elapsed)
		}
		if d.observer != nil {
			name := inv.Tool
			if _, ok := d.registry.Get(name); !ok {
				name = "unknown"
			}
			d.observer.ObserveInvocation(name, elapsed, kind)
		}
	}()

	tool, ok := d.registry.Get(inv.Tool)
	if !ok {
		return Result{Error: &ErrorBody{Kind: dberr.UnknownTool, Message: fmt.Sprintf("unknown tool %q", inv.Tool)}}
	}
	value, err := tool.run(ctx, inv.Args)
	if err != nil {
		return errorResult(err)
	}
	return Result{Value: value}
}
