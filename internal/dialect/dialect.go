// Package dialect isolates the engine specific parts of the gateway: driver
// registration and DSN, placeholder and quoting rules, catalog queries and
// the mapping of engine errors to the dberr taxonomy.
package dialect

import (
	"fmt"
	"strings"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
)

type Pagination int

const (
	LimitOffset Pagination = iota
	OffsetFetch
)

type Dialect interface {
	Name() string
	DriverName() string
	DSN(p config.Profile) (string, error)

	// Placeholder returns the n-th (1-based) bind parameter marker.
	Placeholder(n int) string
	QuoteIdent(name string) string
	DefaultSchema() string
	Pagination() Pagination
	BoolLiteral(v bool) string

	PingStatement() string
	ListTables(schema string) (string, []any)
	DescribeTable(schema, table string) (string, []any)
	DropTable(qualified string, cascade bool) string
	CopyTable(dst, src string) string

	// TransactionalDDL reports whether a DDL statement can be rolled back.
	TransactionalDDL() bool

	// Classify maps an engine error to a kind, or "" when the error is not
	// recognised.
	Classify(err error) dberr.Kind
}

type Table struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Column struct {
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default,omitempty"`
	Position int     `json:"position"`
}

func Get(driver string) (Dialect, error) {
	switch driver {
	case config.DriverPostgres:
		return Postgres{}, nil
	case config.DriverMySQL:
		return MySQL{}, nil
	case config.DriverSQLite:
		return SQLite{}, nil
	case config.DriverSQLServer:
		return SQLServer{}, nil
	case config.DriverOracle:
		return Oracle{}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

// Qualify quotes table and prefixes it with the quoted schema when present.
func Qualify(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

// ClassifyError is Classify with the generic transport checks as fallback.
func ClassifyError(d Dialect, err error) dberr.Kind {
	if err == nil {
		return ""
	}
	if kind := d.Classify(err); kind != "" {
		return kind
	}
	if dberr.IsConnectionError(err) {
		return dberr.ConnectionBroken
	}
	return dberr.InternalError
}

func quoteWith(name, open, close string) string {
	return open + strings.ReplaceAll(name, close, close+close) + close
}

func isNullable(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "YES", "Y", "1", "TRUE":
		return true
	}
	return false
}

// NormalizeColumn fixes up the nullable flag read from the catalog as text.
func NormalizeColumn(name, typ, nullable string, def *string, position int64) Column {
	return Column{
		Name:     name,
		Type:     typ,
		Nullable: isNullable(nullable),
		Default:  def,
		Position: int(position),
	}
}
