package dialect

import (
	"errors"
	"strconv"

	go_ora "github.com/sijms/go-ora/v2"
	"github.com/sijms/go-ora/v2/network"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
)

// Oracle treats the database name as the service name.
type Oracle struct{}

func (Oracle) Name() string       { return config.DriverOracle }
func (Oracle) DriverName() string { return "oracle" }

func (Oracle) DSN(p config.Profile) (string, error) {
	port := p.Port
	if port == 0 {
		port = 1521
	}
	options := map[string]string{}
	if p.SSLMode != "" && p.SSLMode != "disable" {
		options["SSL"] = "enable"
		if p.SSLMode == "require" {
			options["SSL VERIFY"] = "false"
		}
	}
	return go_ora.BuildUrl(p.Host, port, p.Database, p.User, p.Password, options), nil
}

func (Oracle) Placeholder(n int) string      { return ":" + strconv.Itoa(n) }
func (Oracle) QuoteIdent(name string) string { return quoteWith(name, `"`, `"`) }

// DefaultSchema is empty: the catalog queries fall back to the session user.
func (Oracle) DefaultSchema() string  { return "" }
func (Oracle) Pagination() Pagination { return OffsetFetch }
func (Oracle) PingStatement() string  { return "SELECT 1 FROM dual" }
func (Oracle) TransactionalDDL() bool { return false }

func (Oracle) BoolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (Oracle) ListTables(schema string) (string, []any) {
	return `SELECT table_name, 'BASE TABLE' FROM all_tables WHERE owner = NVL(:1, USER)
UNION ALL
SELECT view_name, 'VIEW' FROM all_views WHERE owner = NVL(:2, USER)
ORDER BY 1`, []any{nullIfEmpty(schema), nullIfEmpty(schema)}
}

func (Oracle) DescribeTable(schema, table string) (string, []any) {
	return `SELECT column_name, data_type, CASE nullable WHEN 'Y' THEN 'YES' ELSE 'NO' END, data_default, column_id
FROM all_tab_columns
WHERE owner = NVL(:1, USER) AND table_name = :2
ORDER BY column_id`, []any{nullIfEmpty(schema), table}
}

func (Oracle) DropTable(qualified string, cascade bool) string {
	if cascade {
		return "DROP TABLE " + qualified + " CASCADE CONSTRAINTS"
	}
	return "DROP TABLE " + qualified
}

func (Oracle) CopyTable(dst, src string) string {
	return "CREATE TABLE " + dst + " AS SELECT * FROM " + src
}

func (Oracle) Classify(err error) dberr.Kind {
	var oraErr *network.OracleError
	if !errors.As(err, &oraErr) {
		return ""
	}
	code := oraErr.ErrCode
	switch {
	case code == 1, code == 1400, code == 1407, code == 2290, code == 2291, code == 2292:
		return dberr.ConstraintViolation
	case code == 60, code == 8177:
		return dberr.TransactionAborted
	case code == 3113, code == 3114, code == 3135, code == 28:
		return dberr.ConnectionBroken
	case code == 1017, code == 12514, code == 12541:
		return dberr.PoolUnavailable
	case code >= 900 && code <= 999, code == 1722, code == 12899:
		return dberr.InvalidArgument
	}
	return ""
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
