package dialect

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
)

type Postgres struct{}

func (Postgres) Name() string       { return config.DriverPostgres }
func (Postgres) DriverName() string { return "pgx" }

func (Postgres) DSN(p config.Profile) (string, error) {
	port := p.Port
	if port == 0 {
		port = 5432
	}
	q := url.Values{}
	q.Set("application_name", "dbmcp")
	q.Set("connect_timeout", "10")
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(port)),
		Path:     "/" + p.Database,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (Postgres) Placeholder(n int) string      { return "$" + strconv.Itoa(n) }
func (Postgres) QuoteIdent(name string) string { return quoteWith(name, `"`, `"`) }
func (Postgres) DefaultSchema() string         { return "public" }
func (Postgres) Pagination() Pagination        { return LimitOffset }
func (Postgres) PingStatement() string         { return "SELECT 1" }
func (Postgres) TransactionalDDL() bool        { return true }

func (Postgres) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (d Postgres) ListTables(schema string) (string, []any) {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return `SELECT table_name, table_type
FROM information_schema.tables
WHERE table_schema = $1
ORDER BY table_name`, []any{schema}
}

func (d Postgres) DescribeTable(schema, table string) (string, []any) {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return `SELECT column_name, data_type, is_nullable, column_default, ordinal_position
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`, []any{schema, table}
}

func (Postgres) DropTable(qualified string, cascade bool) string {
	if cascade {
		return "DROP TABLE " + qualified + " CASCADE"
	}
	return "DROP TABLE " + qualified
}

func (Postgres) CopyTable(dst, src string) string {
	return "CREATE TABLE " + dst + " AS SELECT * FROM " + src
}

func (Postgres) Classify(err error) dberr.Kind {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return dberr.PoolUnavailable
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	code := pgErr.Code
	switch {
	case strings.HasPrefix(code, "23"):
		return dberr.ConstraintViolation
	case strings.HasPrefix(code, "40"), code == "25P02", code == "57014":
		return dberr.TransactionAborted
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "57P"):
		return dberr.ConnectionBroken
	case strings.HasPrefix(code, "28"), code == "3D000", code == "53300":
		return dberr.PoolUnavailable
	case strings.HasPrefix(code, "42"), strings.HasPrefix(code, "22"), strings.HasPrefix(code, "0A"):
		return dberr.InvalidArgument
	}
	return ""
}
