package binder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/dialect"
	"github.com/litesql/dbmcp/internal/executor"
)

const DefaultCatalogSize = 256

// TableInfo is the catalog view of one table: the allow-list for its column
// names and the source of their types.
type TableInfo struct {
	Schema  string
	Name    string
	Columns []dialect.Column
	index   map[string]int
}

func newTableInfo(schema, name string, cols []dialect.Column) *TableInfo {
	t := &TableInfo{Schema: schema, Name: name, Columns: cols, index: make(map[string]int, len(cols))}
	for i, c := range cols {
		t.index[c.Name] = i
	}
	return t
}

func (t *TableInfo) Column(name string) (dialect.Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return dialect.Column{}, false
	}
	return t.Columns[i], true
}

// Lookup returns the column or an InvalidArgument error naming the table.
func (t *TableInfo) Lookup(name string) (dialect.Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return c, dberr.Invalid("identifier", fmt.Sprintf("unknown column %q in table %q", name, t.Name))
	}
	return c, nil
}

func (t *TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog reads table metadata through the engine's information schema and
// caches it. One catalog serves one connection.
type Catalog struct {
	exec  *executor.Executor
	cache *lru.Cache[string, *TableInfo]
}

func NewCatalog(exec *executor.Executor, size int) (*Catalog, error) {
	if size <= 0 {
		size = DefaultCatalogSize
	}
	cache, err := lru.New[string, *TableInfo](size)
	if err != nil {
		return nil, err
	}
	return &Catalog{exec: exec, cache: cache}, nil
}

func (c *Catalog) Dialect() dialect.Dialect {
	return c.exec.Dialect()
}

// Tables lists the tables and views of schema (the engine default when
// empty).
func (c *Catalog) Tables(ctx context.Context, s executor.Session, schema string) ([]dialect.Table, error) {
	if err := ValidateSchema(schema); err != nil {
		return nil, err
	}
	query, args := c.Dialect().ListTables(schema)
	rows, err := c.exec.Read(ctx, s, executor.Statement{SQL: query, Args: args}, 0)
	if err != nil {
		return nil, err
	}
	tables := make([]dialect.Table, 0, len(rows.Rows))
	for _, r := range rows.Rows {
		if len(r.Values) < 2 {
			continue
		}
		tables = append(tables, dialect.Table{Name: asString(r.Values[0]), Type: asString(r.Values[1])})
	}
	return tables, nil
}

// Lookup describes an existing table. An unknown table is an InvalidArgument
// error, so the name never reaches a statement.
func (c *Catalog) Lookup(ctx context.Context, s executor.Session, schema, table string) (*TableInfo, error) {
	t, err := c.describe(ctx, s, schema, table)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, dberr.Invalid("identifier", fmt.Sprintf("unknown table %q", displayName(schema, table)))
	}
	return t, nil
}

func (c *Catalog) Exists(ctx context.Context, s executor.Session, schema, table string) (bool, error) {
	t, err := c.describe(ctx, s, schema, table)
	return t != nil, err
}

func (c *Catalog) describe(ctx context.Context, s executor.Session, schema, table string) (*TableInfo, error) {
	if err := ValidateSchema(schema); err != nil {
		return nil, err
	}
	if table == "" {
		return nil, dberr.Invalid("identifier", "table name is required")
	}
	key := schema + "\x00" + table
	if t, ok := c.cache.Get(key); ok {
		return t, nil
	}
	query, args := c.Dialect().DescribeTable(schema, table)
	rows, err := c.exec.Read(ctx, s, executor.Statement{SQL: query, Args: args}, 0)
	if err != nil {
		return nil, err
	}
	if len(rows.Rows) == 0 {
		return nil, nil
	}
	cols := make([]dialect.Column, 0, len(rows.Rows))
	for _, r := range rows.Rows {
		if len(r.Values) < 5 {
			return nil, dberr.New(dberr.InternalError, "describe", "unexpected catalog row shape")
		}
		var def *string
		if r.Values[3] != nil {
			v := strings.TrimSpace(asString(r.Values[3]))
			def = &v
		}
		cols = append(cols, dialect.NormalizeColumn(
			asString(r.Values[0]), asString(r.Values[1]), asString(r.Values[2]), def, asInt(r.Values[4]),
		))
	}
	t := newTableInfo(schema, table, cols)
	c.cache.Add(key, t)
	return t, nil
}

// Invalidate drops every cached table. It runs after any DDL.
func (c *Catalog) Invalidate() {
	c.cache.Purge()
}

func (c *Catalog) Len() int {
	return c.cache.Len()
}

func displayName(schema, table string) string {
	if schema == "" {
		return table
	}
	return schema + "." + table
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	}
	return fmt.Sprint(v)
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint64:
		return int64(x)
	case float64:
		return int64(x)
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(asString(v)), 10, 64)
	return n
}
