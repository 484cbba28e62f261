package tools

import (
	"context"
	"fmt"

	"github.com/litesql/dbmcp/internal/backup"
	"github.com/litesql/dbmcp/internal/binder"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/executor"
	"github.com/litesql/dbmcp/internal/pool"
)

type backupTableInput struct {
	Connection  string `json:"connection_name,omitempty" jsonschema:"connection to use (default: default)"`
	Table       string `json:"table" jsonschema:"table to back up"`
	Schema      string `json:"schema,omitempty" jsonschema:"schema of the table (engine default when empty)"`
	Destination string `json:"destination" jsonschema:"table:<new table>, file:<relative path>, nats://<bucket>/<object>, kafka://<topic> or s3://<bucket>/<key>"`
	Format      string `json:"format,omitempty" jsonschema:"jsonl (default) or csv; ignored for table destinations"`

	dest   backup.Destination
	format backup.Format
}

func (in *backupTableInput) validate() error {
	if err := requireTable(BackupTable, in.Table); err != nil {
		return err
	}
	if in.Destination == "" {
		return dberr.Invalid(string(BackupTable), "destination is required")
	}
	var err error
	if in.dest, err = backup.ParseDestination(in.Destination); err != nil {
		return err
	}
	if in.format, err = backup.ParseFormat(in.Format); err != nil {
		return err
	}
	if in.dest.Scheme == backup.SchemeTable {
		return binder.ValidateIdent("table", in.dest.Target)
	}
	return in.dest.Check(in.format)
}

func (e *Env) backupTable(ctx context.Context, in *backupTableInput) (any, error) {
	var sink backup.Sink
	if in.dest.Scheme != backup.SchemeTable {
		var err error
		if sink, err = e.sinks.For(in.dest); err != nil {
			return nil, err
		}
	}
	return e.borrow(ctx, in.Connection, func(c *conn, h *pool.Handle) (any, error) {
		t, err := c.catalog.Lookup(ctx, h, in.Schema, in.Table)
		if err != nil {
			return nil, err
		}
		if sink == nil {
			return copyTable(ctx, c, h, t, in.dest.Target)
		}
		st, err := c.build.Select(t, nil, nil, nil, 0, 0)
		if err != nil {
			return nil, err
		}
		return backup.Export(ctx, sink, in.dest, in.format, t.ColumnNames(), func(emit func(executor.Row) error) error {
			return c.exec.Stream(ctx, h, st, emit)
		})
	})
}

// copyTable creates dst as a copy of t in the same schema.
func copyTable(ctx context.Context, c *conn, h *pool.Handle, t *binder.TableInfo, dst string) (any, error) {
	exists, err := c.catalog.Exists(ctx, h, t.Schema, dst)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, dberr.Invalid(string(BackupTable), fmt.Sprintf("table %q already exists", dst))
	}
	st, err := c.build.CopyTable(t, dst)
	if err != nil {
		return nil, err
	}
	err = c.exec.DDL(ctx, h, st)
	c.afterDDL()
	if err != nil {
		return nil, err
	}
	sum := backup.Summary{Destination: "table:" + dst}
	copied, err := c.catalog.Lookup(ctx, h, t.Schema, dst)
	if err != nil {
		return nil, err
	}
	count, err := c.build.Count(copied, nil)
	if err != nil {
		return nil, err
	}
	rows, err := c.exec.Read(ctx, h, count, 1)
	if err != nil {
		return nil, err
	}
	if len(rows.Rows) == 1 {
		sum.Rows, _ = toInt64(rows.Rows[0].Values[0])
	}
	return sum, nil
}
