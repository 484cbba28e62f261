package tools

import (
	"context"
	"fmt"

	"github.com/litesql/dbmcp/internal/binder"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/executor"
	"github.com/litesql/dbmcp/internal/pool"
)

type executeQueryInput struct {
	Connection string `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Statement  string `json:"statement" jsonschema:"one SQL statement using the placeholder syntax of the connection's driver ($1, ?, @p1 or :1)"`
	Params     []any  `json:"params,omitempty" jsonschema:"values bound to the placeholders, in order"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of rows returned (default 1000)"`
}

func (in *executeQueryInput) validate() error {
	in.Statement = binder.TrimStatement(in.Statement)
	if in.Statement == "" {
		return dberr.Invalid(string(ExecuteQuery), "statement is required")
	}
	if in.Limit < 0 || in.Limit > maxFetchLimit {
		return dberr.Invalid(string(ExecuteQuery), fmt.Sprintf("limit must be between 1 and %d", maxFetchLimit))
	}
	if in.Limit == 0 {
		in.Limit = defaultQueryLimit
	}
	return nil
}

type queryResult struct {
	Columns   []string       `json:"columns"`
	Rows      []executor.Row `json:"rows"`
	RowCount  int            `json:"row_count"`
	Truncated bool           `json:"truncated,omitempty"`
}

func newQueryResult(rows *executor.Rows) queryResult {
	return queryResult{
		Columns:   rows.Columns,
		Rows:      rows.Rows,
		RowCount:  len(rows.Rows),
		Truncated: rows.Truncated,
	}
}

type writeResult struct {
	AffectedRows int64          `json:"affected_rows"`
	Columns      []string       `json:"columns,omitempty"`
	Rows         []executor.Row `json:"rows,omitempty"`
}

func (e *Env) executeQuery(ctx context.Context, in *executeQueryInput) (any, error) {
	kind, err := binder.ClassifyStatement(in.Statement)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(in.Params))
	for i, p := range in.Params {
		if args[i], err = binder.BindParam(p); err != nil {
			return nil, dberr.Invalid(string(ExecuteQuery), fmt.Sprintf("param %d: %v", i+1, err))
		}
	}
	st := executor.Statement{SQL: in.Statement, Args: args}

	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		switch kind {
		case binder.KindDDL:
			defer c.afterDDL()
			if err := c.exec.DDL(ctx, h, st); err != nil {
				return nil, err
			}
			return map[string]any{"executed": true}, nil
		case binder.KindWrite:
			if binder.HasReturning(in.Statement) {
				rows, err := c.exec.WriteReturning(ctx, h, st, in.Limit)
				if err != nil {
					return nil, err
				}
				return writeResult{AffectedRows: int64(len(rows.Rows)), Columns: rows.Columns, Rows: rows.Rows}, nil
			}
			counts, err := c.exec.Write(ctx, h, st)
			if err != nil {
				return nil, err
			}
			return writeResult{AffectedRows: counts[0]}, nil
		}
		rows, err := c.exec.Read(ctx, h, st, in.Limit)
		if err != nil {
			return nil, err
		}
		return newQueryResult(rows), nil
	})
}
