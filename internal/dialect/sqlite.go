package dialect

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
)

const sqliteDefaultOptions = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

// SQLite uses the pure Go modernc driver. Host, port and credentials are
// ignored; the database name is the file path.
type SQLite struct{}

func (SQLite) Name() string       { return config.DriverSQLite }
func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) DSN(p config.Profile) (string, error) {
	if strings.Contains(p.Database, "?") {
		return p.Database + "&" + sqliteDefaultOptions, nil
	}
	return p.Database + "?" + sqliteDefaultOptions, nil
}

func (SQLite) Placeholder(int) string         { return "?" }
func (SQLite) QuoteIdent(name string) string { return quoteWith(name, `"`, `"`) }
func (SQLite) DefaultSchema() string         { return "main" }
func (SQLite) Pagination() Pagination        { return LimitOffset }
func (SQLite) PingStatement() string         { return "SELECT 1" }
func (SQLite) TransactionalDDL() bool        { return true }

func (SQLite) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (d SQLite) ListTables(schema string) (string, []any) {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return `SELECT name, CASE type WHEN 'view' THEN 'VIEW' ELSE 'BASE TABLE' END
FROM pragma_table_list
WHERE schema = ? AND type IN ('table', 'view', 'virtual') AND name NOT LIKE 'sqlite_%'
ORDER BY name`, []any{schema}
}

func (d SQLite) DescribeTable(schema, table string) (string, []any) {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return `SELECT name, type, CASE "notnull" WHEN 0 THEN 'YES' ELSE 'NO' END, dflt_value, cid + 1
FROM pragma_table_info(?, ?)
ORDER BY cid`, []any{table, schema}
}

func (SQLite) DropTable(qualified string, _ bool) string {
	return "DROP TABLE " + qualified
}

func (SQLite) CopyTable(dst, src string) string {
	return "CREATE TABLE " + dst + " AS SELECT * FROM " + src
}

func (SQLite) Classify(err error) dberr.Kind {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return ""
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return dberr.ConstraintViolation
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_ABORT:
		return dberr.TransactionAborted
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH:
		return dberr.PoolUnavailable
	case sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CORRUPT:
		return dberr.ConnectionBroken
	case sqlite3.SQLITE_ERROR, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_RANGE, sqlite3.SQLITE_TOOBIG:
		return dberr.InvalidArgument
	}
	return ""
}
