package tools

import (
	"context"

	"github.com/litesql/dbmcp/internal/binder"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/dialect"
	"github.com/litesql/dbmcp/internal/pool"
)

type createTableInput struct {
	Connection  string             `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table       string             `json:"table" jsonschema:"name of the new table"`
	Schema      string             `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
	Columns     []binder.ColumnDef `json:"columns" jsonschema:"column definitions, in order"`
	IfNotExists bool               `json:"if_not_exists,omitempty" jsonschema:"succeed without changes when the table already exists"`
}

func (in *createTableInput) validate() error {
	if err := binder.ValidateIdent("table", in.Table); err != nil {
		return err
	}
	if len(in.Columns) == 0 {
		return dberr.Invalid(string(CreateTable), "columns must not be empty")
	}
	return nil
}

func (e *Env) createTable(ctx context.Context, in *createTableInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		st, err := c.build.CreateTable(in.Schema, in.Table, in.Columns)
		if err != nil {
			return nil, err
		}
		if in.IfNotExists {
			exists, err := c.catalog.Exists(ctx, h, in.Schema, in.Table)
			if err != nil {
				return nil, err
			}
			if exists {
				return map[string]any{"table": in.Table, "created": false}, nil
			}
		}
		defer c.afterDDL()
		if err := c.exec.DDL(ctx, h, st); err != nil {
			return nil, err
		}
		return map[string]any{"table": in.Table, "created": true}, nil
	})
}

type dropTableInput struct {
	Connection string `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table      string `json:"table" jsonschema:"table to drop"`
	Schema     string `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
	IfExists   bool   `json:"if_exists,omitempty" jsonschema:"succeed without changes when the table does not exist"`
	Cascade    bool   `json:"cascade,omitempty" jsonschema:"also drop dependent objects where the engine supports it"`
}

func (in *dropTableInput) validate() error {
	return requireTable(DropTable, in.Table)
}

func (e *Env) dropTable(ctx context.Context, in *dropTableInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		// a stale cache entry would let an already dropped table through
		c.catalog.Invalidate()
		exists, err := c.catalog.Exists(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		if !exists && in.IfExists {
			return map[string]any{"table": in.Table, "dropped": false}, nil
		}
		t, err := c.catalog.Lookup(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		defer c.afterDDL()
		if err := c.exec.DDL(ctx, h, c.build.DropTable(t, in.Cascade)); err != nil {
			return nil, err
		}
		return map[string]any{"table": t.Name, "dropped": true}, nil
	})
}

type listTablesInput struct {
	Connection string `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Schema     string `json:"schema,omitempty" jsonschema:"schema to list (engine default when empty)"`
}

func (e *Env) listTables(ctx context.Context, in *listTablesInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		tables, err := c.catalog.Tables(ctx, h, in.Schema)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tables": tables}, nil
	})
}

type describeTableInput struct {
	Connection string `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table      string `json:"table" jsonschema:"table or view to describe"`
	Schema     string `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
}

func (in *describeTableInput) validate() error {
	return requireTable(DescribeTable, in.Table)
}

type tableDescription struct {
	Schema  string           `json:"schema,omitempty"`
	Table   string           `json:"table"`
	Columns []dialect.Column `json:"columns"`
}

func (e *Env) describeTable(ctx context.Context, in *describeTableInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		t, err := c.catalog.Lookup(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		return tableDescription{Schema: t.Schema, Table: t.Name, Columns: t.Columns}, nil
	})
}
