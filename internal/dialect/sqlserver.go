package dialect

import (
	"errors"
	"net"
	"net/url"
	"strconv"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
)

type SQLServer struct{}

func (SQLServer) Name() string       { return config.DriverSQLServer }
func (SQLServer) DriverName() string { return "sqlserver" }

func (SQLServer) DSN(p config.Profile) (string, error) {
	port := p.Port
	if port == 0 {
		port = 1433
	}
	q := url.Values{}
	q.Set("app name", "dbmcp")
	if p.Database != "" {
		q.Set("database", p.Database)
	}
	switch p.SSLMode {
	case "":
	case "disable":
		q.Set("encrypt", "disable")
	default:
		q.Set("encrypt", p.SSLMode)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (SQLServer) Placeholder(n int) string      { return "@p" + strconv.Itoa(n) }
func (SQLServer) QuoteIdent(name string) string { return quoteWith(name, "[", "]") }
func (SQLServer) DefaultSchema() string         { return "dbo" }
func (SQLServer) Pagination() Pagination        { return OffsetFetch }
func (SQLServer) PingStatement() string         { return "SELECT 1" }
func (SQLServer) TransactionalDDL() bool        { return true }

func (SQLServer) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (d SQLServer) ListTables(schema string) (string, []any) {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return `SELECT table_name, table_type
FROM information_schema.tables
WHERE table_schema = @p1
ORDER BY table_name`, []any{schema}
}

func (d SQLServer) DescribeTable(schema, table string) (string, []any) {
	if schema == "" {
		schema = d.DefaultSchema()
	}
	return `SELECT column_name, data_type, is_nullable, column_default, ordinal_position
FROM information_schema.columns
WHERE table_schema = @p1 AND table_name = @p2
ORDER BY ordinal_position`, []any{schema, table}
}

func (SQLServer) DropTable(qualified string, _ bool) string {
	return "DROP TABLE " + qualified
}

func (SQLServer) CopyTable(dst, src string) string {
	return "SELECT * INTO " + dst + " FROM " + src
}

func (SQLServer) Classify(err error) dberr.Kind {
	var number int32
	var byValue mssql.Error
	var byPointer *mssql.Error
	switch {
	case errors.As(err, &byValue):
		number = byValue.Number
	case errors.As(err, &byPointer):
		number = byPointer.Number
	default:
		return ""
	}
	switch number {
	case 2627, 2601, 547, 515:
		return dberr.ConstraintViolation
	case 1205, 3960, 3998:
		return dberr.TransactionAborted
	case 18456, 4060:
		return dberr.PoolUnavailable
	case 102, 207, 208, 156, 245, 8114, 2628, 2714, 3701:
		return dberr.InvalidArgument
	}
	return ""
}
