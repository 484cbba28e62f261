package tools

import (
	"context"
	"fmt"
	"strconv"

	"github.com/litesql/dbmcp/internal/binder"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/pool"
)

type fetchDataInput struct {
	Connection string        `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table      string        `json:"table" jsonschema:"table or view to read"`
	Schema     string        `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
	Columns    []string      `json:"columns,omitempty" jsonschema:"columns to return (all when empty)"`
	Filter     binder.Filter `json:"filter,omitempty" jsonschema:"structured filter: {\"col\": value} for equality, null for IS NULL, an array for IN, or an object of operators (eq ne lt lte gt gte like in null)"`
	OrderBy    binder.Order  `json:"order_by,omitempty" jsonschema:"columns to sort by; prefix a name with - for descending order"`
	Limit      int           `json:"limit,omitempty" jsonschema:"maximum number of rows (default 100, max 10000)"`
	Offset     int           `json:"offset,omitempty" jsonschema:"number of rows to skip"`
}

func (in *fetchDataInput) validate() error {
	if err := requireTable(FetchData, in.Table); err != nil {
		return err
	}
	if in.Limit < 0 || in.Limit > maxFetchLimit {
		return dberr.Invalid(string(FetchData), fmt.Sprintf("limit must be between 1 and %d", maxFetchLimit))
	}
	if in.Offset < 0 {
		return dberr.Invalid(string(FetchData), "offset must not be negative")
	}
	if in.Limit == 0 {
		in.Limit = defaultFetchLimit
	}
	return nil
}

func (e *Env) fetchData(ctx context.Context, in *fetchDataInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		t, err := c.catalog.Lookup(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		// one extra row tells whether the page was cut
		st, err := c.build.Select(t, in.Columns, in.Filter, in.OrderBy, in.Limit+1, in.Offset)
		if err != nil {
			return nil, err
		}
		rows, err := c.exec.Read(ctx, h, st, in.Limit)
		if err != nil {
			return nil, err
		}
		return newQueryResult(rows), nil
	})
}

type countRecordsInput struct {
	Connection string        `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table      string        `json:"table" jsonschema:"table or view to count"`
	Schema     string        `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
	Filter     binder.Filter `json:"filter,omitempty" jsonschema:"structured filter, same syntax as fetch_data"`
}

func (in *countRecordsInput) validate() error {
	return requireTable(CountRecords, in.Table)
}

func (e *Env) countRecords(ctx context.Context, in *countRecordsInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		t, err := c.catalog.Lookup(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		st, err := c.build.Count(t, in.Filter)
		if err != nil {
			return nil, err
		}
		rows, err := c.exec.Read(ctx, h, st, 1)
		if err != nil {
			return nil, err
		}
		if len(rows.Rows) == 0 || len(rows.Rows[0].Values) == 0 {
			return nil, dberr.New(dberr.InternalError, string(CountRecords), "count returned no row")
		}
		n, err := toInt64(rows.Rows[0].Values[0])
		if err != nil {
			return nil, dberr.Wrap(dberr.InternalError, string(CountRecords), err)
		}
		return map[string]any{"table": t.Name, "count": n}, nil
	})
}

type insertDataInput struct {
	Connection string           `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table      string           `json:"table" jsonschema:"table to insert into"`
	Schema     string           `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
	Rows       []map[string]any `json:"rows" jsonschema:"rows to insert as column to value objects; all rows are inserted in one transaction"`
}

func (in *insertDataInput) validate() error {
	if err := requireTable(InsertData, in.Table); err != nil {
		return err
	}
	if len(in.Rows) == 0 {
		return dberr.Invalid(string(InsertData), "rows must not be empty")
	}
	return nil
}

func (e *Env) insertData(ctx context.Context, in *insertDataInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		t, err := c.catalog.Lookup(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		stmts, err := c.build.Insert(t, in.Rows)
		if err != nil {
			return nil, err
		}
		counts, err := c.exec.Write(ctx, h, stmts...)
		if err != nil {
			return nil, err
		}
		return map[string]any{"table": t.Name, "inserted": sum(counts)}, nil
	})
}

type updateDataInput struct {
	Connection string         `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table      string         `json:"table" jsonschema:"table to update"`
	Schema     string         `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
	Values     map[string]any `json:"values" jsonschema:"column to new value object"`
	Filter     binder.Filter  `json:"filter" jsonschema:"structured filter selecting the rows to update; must not be empty"`
}

func (in *updateDataInput) validate() error {
	if err := requireTable(UpdateData, in.Table); err != nil {
		return err
	}
	if len(in.Values) == 0 {
		return dberr.Invalid(string(UpdateData), "values must not be empty")
	}
	if len(in.Filter) == 0 {
		return dberr.Invalid(string(UpdateData), "filter must not be empty")
	}
	return nil
}

func (e *Env) updateData(ctx context.Context, in *updateDataInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		t, err := c.catalog.Lookup(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		st, err := c.build.Update(t, in.Values, in.Filter)
		if err != nil {
			return nil, err
		}
		counts, err := c.exec.Write(ctx, h, st)
		if err != nil {
			return nil, err
		}
		return map[string]any{"table": t.Name, "updated": counts[0]}, nil
	})
}

type deleteDataInput struct {
	Connection string        `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table      string        `json:"table" jsonschema:"table to delete from"`
	Schema     string        `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
	Filter     binder.Filter `json:"filter" jsonschema:"structured filter selecting the rows to delete; must not be empty"`
}

func (in *deleteDataInput) validate() error {
	if err := requireTable(DeleteData, in.Table); err != nil {
		return err
	}
	if len(in.Filter) == 0 {
		return dberr.Invalid(string(DeleteData), "filter must not be empty")
	}
	return nil
}

func (e *Env) deleteData(ctx context.Context, in *deleteDataInput) (any, error) {
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		t, err := c.catalog.Lookup(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		st, err := c.build.Delete(t, in.Filter)
		if err != nil {
			return nil, err
		}
		counts, err := c.exec.Write(ctx, h, st)
		if err != nil {
			return nil, err
		}
		return map[string]any{"table": t.Name, "deleted": counts[0]}, nil
	})
}

func requireTable(tool Name, table string) error {
	if table == "" {
		return dberr.Invalid(string(tool), "table is required")
	}
	return nil
}

func sum(counts []int64) int64 {
	var n int64
	for _, c := range counts {
		if c > 0 {
			n += c
		}
	}
	return n
}

func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("unexpected count type %T", v)
}
