package dialect

import (
	"errors"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
)

type MySQL struct{}

func (MySQL) Name() string       { return config.DriverMySQL }
func (MySQL) DriverName() string { return "mysql" }

func (MySQL) DSN(p config.Profile) (string, error) {
	port := p.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(port))
	cfg.DBName = p.Database
	cfg.ParseTime = true
	switch p.SSLMode {
	case "":
	case "disable":
		cfg.TLSConfig = "false"
	case "require":
		cfg.TLSConfig = "skip-verify"
	case "verify-ca", "verify-full":
		cfg.TLSConfig = "true"
	default:
		cfg.TLSConfig = p.SSLMode
	}
	return cfg.FormatDSN(), nil
}

func (MySQL) Placeholder(int) string         { return "?" }
func (MySQL) QuoteIdent(name string) string { return quoteWith(name, "`", "`") }

// DefaultSchema is empty: the catalog queries fall back to DATABASE().
func (MySQL) DefaultSchema() string  { return "" }
func (MySQL) Pagination() Pagination { return LimitOffset }
func (MySQL) PingStatement() string  { return "SELECT 1" }

// TransactionalDDL is false: MySQL commits implicitly around DDL.
func (MySQL) TransactionalDDL() bool { return false }

func (MySQL) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (MySQL) ListTables(schema string) (string, []any) {
	if schema == "" {
		return `SELECT table_name, table_type
FROM information_schema.tables
WHERE table_schema = DATABASE()
ORDER BY table_name`, nil
	}
	return `SELECT table_name, table_type
FROM information_schema.tables
WHERE table_schema = ?
ORDER BY table_name`, []any{schema}
}

func (MySQL) DescribeTable(schema, table string) (string, []any) {
	if schema == "" {
		return `SELECT column_name, column_type, is_nullable, column_default, ordinal_position
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`, []any{table}
	}
	return `SELECT column_name, column_type, is_nullable, column_default, ordinal_position
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`, []any{schema, table}
}

func (MySQL) DropTable(qualified string, cascade bool) string {
	if cascade {
		return "DROP TABLE " + qualified + " CASCADE"
	}
	return "DROP TABLE " + qualified
}

func (MySQL) CopyTable(dst, src string) string {
	return "CREATE TABLE " + dst + " AS SELECT * FROM " + src
}

func (MySQL) Classify(err error) dberr.Kind {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return dberr.ConnectionBroken
	}
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return ""
	}
	switch myErr.Number {
	case 1062, 1451, 1452, 1048, 1216, 1217, 1364, 3819:
		return dberr.ConstraintViolation
	case 1213, 1205, 1317:
		return dberr.TransactionAborted
	case 1044, 1045, 1049, 1040:
		return dberr.PoolUnavailable
	case 1064, 1146, 1054, 1366, 1406, 1292, 1264, 1050, 1051:
		return dberr.InvalidArgument
	}
	return ""
}
