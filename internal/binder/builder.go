package binder

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/dialect"
	"github.com/litesql/dbmcp/internal/executor"
)

// Filter maps column names to conditions, combined with AND:
//
//	{"id": 1}                      equality
//	{"deleted_at": null}           IS NULL
//	{"status": ["a", "b"]}         IN
//	{"age": {"gte": 18, "lt": 65}} operators eq ne lt lte gt gte like in null
type Filter map[string]any

// Order is a column name, prefixed with "-" for descending order.
type Order []string

type ColumnDef struct {
	Name       string `json:"name" jsonschema:"Column name (letters, digits and underscores)"`
	Type       string `json:"type" jsonschema:"Engine column type, e.g. INTEGER, VARCHAR(255), NUMERIC(10,2)"`
	NotNull    bool   `json:"not_null,omitempty" jsonschema:"Reject NULL values"`
	PrimaryKey bool   `json:"primary_key,omitempty" jsonschema:"Part of the primary key"`
	Unique     bool   `json:"unique,omitempty" jsonschema:"Values must be unique"`
	Default    any    `json:"default,omitempty" jsonschema:"Literal default value"`
}

type Builder struct {
	d dialect.Dialect
}

func NewBuilder(d dialect.Dialect) *Builder {
	return &Builder{d: d}
}

func (b *Builder) Dialect() dialect.Dialect {
	return b.d
}

func (b *Builder) Qualify(schema, table string) string {
	return dialect.Qualify(b.d, schema, table)
}

// stmt accumulates SQL text and its parameters, numbering placeholders in
// the dialect's syntax.
type stmt struct {
	d    dialect.Dialect
	sql  strings.Builder
	args []any
}

func (s *stmt) write(parts ...string) {
	for _, p := range parts {
		s.sql.WriteString(p)
	}
}

func (s *stmt) bind(v any) string {
	s.args = append(s.args, v)
	return s.d.Placeholder(len(s.args))
}

func (s *stmt) statement() executor.Statement {
	return executor.Statement{SQL: s.sql.String(), Args: s.args}
}

func (b *Builder) newStmt() *stmt {
	return &stmt{d: b.d}
}

// Select builds a paginated projection of t.
func (b *Builder) Select(t *TableInfo, columns []string, filter Filter, order Order, limit, offset int) (executor.Statement, error) {
	s := b.newStmt()
	s.write("SELECT ")
	if len(columns) == 0 {
		columns = t.ColumnNames()
	}
	for i, name := range columns {
		if _, err := t.Lookup(name); err != nil {
			return executor.Statement{}, err
		}
		if i > 0 {
			s.write(", ")
		}
		s.write(b.d.QuoteIdent(name))
	}
	s.write(" FROM ", b.Qualify(t.Schema, t.Name))
	if err := b.where(s, t, filter); err != nil {
		return executor.Statement{}, err
	}
	orderBy, err := b.orderBy(t, order)
	if err != nil {
		return executor.Statement{}, err
	}
	if limit < 0 || offset < 0 {
		return executor.Statement{}, dberr.Invalid("fetch_data", "limit and offset must not be negative")
	}
	switch b.d.Pagination() {
	case dialect.OffsetFetch:
		if orderBy == "" && b.d.Name() == config.DriverSQLServer {
			orderBy = " ORDER BY (SELECT NULL)"
		}
		s.write(orderBy, " OFFSET ", strconv.Itoa(offset), " ROWS")
		if limit > 0 {
			s.write(" FETCH NEXT ", strconv.Itoa(limit), " ROWS ONLY")
		}
	default:
		s.write(orderBy)
		if limit > 0 {
			s.write(" LIMIT ", strconv.Itoa(limit))
		}
		if offset > 0 {
			if limit <= 0 {
				// SQLite and MySQL have no OFFSET without LIMIT.
				s.write(" LIMIT ", strconv.FormatInt(1<<62, 10))
			}
			s.write(" OFFSET ", strconv.Itoa(offset))
		}
	}
	return s.statement(), nil
}

func (b *Builder) Count(t *TableInfo, filter Filter) (executor.Statement, error) {
	s := b.newStmt()
	s.write("SELECT COUNT(*) AS ", b.d.QuoteIdent("count"), " FROM ", b.Qualify(t.Schema, t.Name))
	if err := b.where(s, t, filter); err != nil {
		return executor.Statement{}, err
	}
	return s.statement(), nil
}

// Insert builds one INSERT per row. Column order follows the sorted keys of
// each row.
func (b *Builder) Insert(t *TableInfo, rows []map[string]any) ([]executor.Statement, error) {
	if len(rows) == 0 {
		return nil, dberr.Invalid("insert_data", "rows must not be empty")
	}
	stmts := make([]executor.Statement, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			return nil, dberr.Invalid("insert_data", fmt.Sprintf("row %d has no values", i+1))
		}
		names := sortedKeys(row)
		s := b.newStmt()
		s.write("INSERT INTO ", b.Qualify(t.Schema, t.Name), " (")
		for j, name := range names {
			if _, err := t.Lookup(name); err != nil {
				return nil, err
			}
			if j > 0 {
				s.write(", ")
			}
			s.write(b.d.QuoteIdent(name))
		}
		s.write(") VALUES (")
		for j, name := range names {
			col, _ := t.Column(name)
			v, err := BindValue(col, row[name])
			if err != nil {
				return nil, err
			}
			if j > 0 {
				s.write(", ")
			}
			s.write(s.bind(v))
		}
		s.write(")")
		stmts = append(stmts, s.statement())
	}
	return stmts, nil
}

func (b *Builder) Update(t *TableInfo, values map[string]any, filter Filter) (executor.Statement, error) {
	if len(values) == 0 {
		return executor.Statement{}, dberr.Invalid("update_data", "values must not be empty")
	}
	if len(filter) == 0 {
		return executor.Statement{}, dberr.Invalid("update_data", "filter is required")
	}
	s := b.newStmt()
	s.write("UPDATE ", b.Qualify(t.Schema, t.Name), " SET ")
	for i, name := range sortedKeys(values) {
		col, err := t.Lookup(name)
		if err != nil {
			return executor.Statement{}, err
		}
		v, err := BindValue(col, values[name])
		if err != nil {
			return executor.Statement{}, err
		}
		if i > 0 {
			s.write(", ")
		}
		s.write(b.d.QuoteIdent(name), " = ", s.bind(v))
	}
	if err := b.where(s, t, filter); err != nil {
		return executor.Statement{}, err
	}
	return s.statement(), nil
}

func (b *Builder) Delete(t *TableInfo, filter Filter) (executor.Statement, error) {
	if len(filter) == 0 {
		return executor.Statement{}, dberr.Invalid("delete_data", "filter is required")
	}
	s := b.newStmt()
	s.write("DELETE FROM ", b.Qualify(t.Schema, t.Name))
	if err := b.where(s, t, filter); err != nil {
		return executor.Statement{}, err
	}
	return s.statement(), nil
}

func (b *Builder) CreateTable(schema, table string, columns []ColumnDef) (executor.Statement, error) {
	if err := ValidateSchema(schema); err != nil {
		return executor.Statement{}, err
	}
	if err := ValidateIdent("table", table); err != nil {
		return executor.Statement{}, err
	}
	if len(columns) == 0 {
		return executor.Statement{}, dberr.Invalid("create_table", "at least one column is required")
	}
	seen := make(map[string]bool, len(columns))
	var pk []string
	s := b.newStmt()
	s.write("CREATE TABLE ", b.Qualify(schema, table), " (")
	for i, c := range columns {
		if err := ValidateIdent("column", c.Name); err != nil {
			return executor.Statement{}, err
		}
		if seen[c.Name] {
			return executor.Statement{}, dberr.Invalid("create_table", fmt.Sprintf("duplicate column %q", c.Name))
		}
		seen[c.Name] = true
		if err := ValidateType(c.Type); err != nil {
			return executor.Statement{}, err
		}
		if i > 0 {
			s.write(", ")
		}
		s.write(b.d.QuoteIdent(c.Name), " ", c.Type)
		if c.Default != nil {
			lit, err := DefaultLiteral(b.d, c.Default)
			if err != nil {
				return executor.Statement{}, err
			}
			s.write(" DEFAULT ", lit)
		}
		if c.NotNull || c.PrimaryKey {
			s.write(" NOT NULL")
		}
		if c.Unique && !c.PrimaryKey {
			s.write(" UNIQUE")
		}
		if c.PrimaryKey {
			pk = append(pk, b.d.QuoteIdent(c.Name))
		}
	}
	if len(pk) > 0 {
		s.write(", PRIMARY KEY (", strings.Join(pk, ", "), ")")
	}
	s.write(")")
	return s.statement(), nil
}

func (b *Builder) DropTable(t *TableInfo, cascade bool) executor.Statement {
	return executor.Statement{SQL: b.d.DropTable(b.Qualify(t.Schema, t.Name), cascade)}
}

// CopyTable copies src into a new table named dst in the same schema.
func (b *Builder) CopyTable(src *TableInfo, dst string) (executor.Statement, error) {
	if err := ValidateIdent("table", dst); err != nil {
		return executor.Statement{}, err
	}
	return executor.Statement{SQL: b.d.CopyTable(b.Qualify(src.Schema, dst), b.Qualify(src.Schema, src.Name))}, nil
}

func (b *Builder) orderBy(t *TableInfo, order Order) (string, error) {
	if len(order) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(order))
	for _, o := range order {
		dir := " ASC"
		name := o
		if strings.HasPrefix(o, "-") {
			dir = " DESC"
			name = o[1:]
		}
		if _, err := t.Lookup(name); err != nil {
			return "", err
		}
		parts = append(parts, b.d.QuoteIdent(name)+dir)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}

func (b *Builder) where(s *stmt, t *TableInfo, filter Filter) error {
	if len(filter) == 0 {
		return nil
	}
	s.write(" WHERE ")
	for i, name := range sortedKeys(filter) {
		col, err := t.Lookup(name)
		if err != nil {
			return err
		}
		if i > 0 {
			s.write(" AND ")
		}
		if err := b.condition(s, col, filter[name]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) condition(s *stmt, col dialect.Column, cond any) error {
	ident := b.d.QuoteIdent(col.Name)
	switch x := cond.(type) {
	case nil:
		s.write(ident, " IS NULL")
		return nil
	case []any:
		return b.in(s, col, ident, x)
	case map[string]any:
		if len(x) == 0 {
			return dberr.Invalid("filter", fmt.Sprintf("empty condition for column %q", col.Name))
		}
		ops := sortedKeys(x)
		if dialect.FamilyOf(col.Type) == dialect.FamilyJSON && !slices.ContainsFunc(ops, isOperator) {
			// A JSON column compared with a JSON object.
			break
		}
		for i, op := range ops {
			if i > 0 {
				s.write(" AND ")
			}
			if err := b.operator(s, col, ident, op, x[op]); err != nil {
				return err
			}
		}
		return nil
	}
	v, err := BindValue(col, cond)
	if err != nil {
		return err
	}
	s.write(ident, " = ", s.bind(v))
	return nil
}

var comparisons = map[string]string{
	"eq":  " = ",
	"ne":  " <> ",
	"lt":  " < ",
	"lte": " <= ",
	"gt":  " > ",
	"gte": " >= ",
}

func isOperator(op string) bool {
	_, ok := comparisons[op]
	return ok || op == "like" || op == "in" || op == "null"
}

func (b *Builder) operator(s *stmt, col dialect.Column, ident, op string, arg any) error {
	if cmp, ok := comparisons[op]; ok {
		if arg == nil {
			return dberr.Invalid("filter", fmt.Sprintf("operator %q on column %q needs a value; use {\"null\": true}", op, col.Name))
		}
		v, err := BindValue(col, arg)
		if err != nil {
			return err
		}
		s.write(ident, cmp, s.bind(v))
		return nil
	}
	switch op {
	case "like":
		pattern, ok := arg.(string)
		if !ok {
			return dberr.Invalid("filter", fmt.Sprintf("like on column %q needs a string pattern", col.Name))
		}
		s.write(ident, " LIKE ", s.bind(pattern))
		return nil
	case "in":
		list, ok := arg.([]any)
		if !ok {
			return dberr.Invalid("filter", fmt.Sprintf("in on column %q needs an array", col.Name))
		}
		return b.in(s, col, ident, list)
	case "null":
		isNull, ok := arg.(bool)
		if !ok {
			return dberr.Invalid("filter", fmt.Sprintf("null on column %q needs true or false", col.Name))
		}
		if isNull {
			s.write(ident, " IS NULL")
		} else {
			s.write(ident, " IS NOT NULL")
		}
		return nil
	}
	return dberr.Invalid("filter", fmt.Sprintf("unknown operator %q (want eq, ne, lt, lte, gt, gte, like, in, null)", op))
}

func (b *Builder) in(s *stmt, col dialect.Column, ident string, list []any) error {
	if len(list) == 0 {
		return dberr.Invalid("filter", fmt.Sprintf("empty list for column %q", col.Name))
	}
	s.write(ident, " IN (")
	for i, item := range list {
		if item == nil {
			return dberr.Invalid("filter", fmt.Sprintf("null in list for column %q; use {\"null\": true}", col.Name))
		}
		v, err := BindValue(col, item)
		if err != nil {
			return err
		}
		if i > 0 {
			s.write(", ")
		}
		s.write(s.bind(v))
	}
	s.write(")")
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
