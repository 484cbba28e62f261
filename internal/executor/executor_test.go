package executor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/dialect"
	"github.com/litesql/dbmcp/internal/pool"
)

func newSQLite(t *testing.T) (*pool.Manager, *Executor) {
	t.Helper()
	m, err := pool.New(context.Background(), pool.DefaultName, config.Profile{
		Driver:         config.DriverSQLite,
		Database:       filepath.Join(t.TempDir(), "exec.db"),
		MinConns:       1,
		MaxConns:       2,
		AcquireTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m, New(m.Dialect())
}

func borrow(t *testing.T, m *pool.Manager) *pool.Handle {
	t.Helper()
	h, err := m.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { m.Release(h) })
	return h
}

func TestReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, e := newSQLite(t)
	h := borrow(t, m)

	require.NoError(t, e.DDL(ctx, h, Statement{SQL: `CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL, price NUMERIC)`}))
	counts, err := e.Write(ctx, h,
		Statement{SQL: `INSERT INTO items (id, name, price) VALUES (?, ?, ?)`, Args: []any{1, "apple", "1.25"}},
		Statement{SQL: `INSERT INTO items (id, name, price) VALUES (?, ?, ?)`, Args: []any{2, "pear", "0.5"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, counts)

	rows, err := e.Read(ctx, h, Statement{SQL: `SELECT id, name FROM items ORDER BY id`}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rows.Columns)
	require.Len(t, rows.Rows, 2)
	b, err := json.Marshal(rows.Rows[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"apple"}`, string(b))
	assert.Equal(t, `{"id":2,"name":"pear"}`, mustJSON(t, rows.Rows[1]))
	name, ok := rows.Rows[1].Get("name")
	assert.True(t, ok)
	assert.Equal(t, "pear", name)
}

func TestReadLimit(t *testing.T) {
	ctx := context.Background()
	m, e := newSQLite(t)
	h := borrow(t, m)

	rows, err := e.Read(ctx, h, Statement{SQL: `SELECT 1 AS n UNION ALL SELECT 2 UNION ALL SELECT 3`}, 2)
	require.NoError(t, err)
	assert.Len(t, rows.Rows, 2)
	assert.True(t, rows.Truncated)

	rows, err = e.Read(ctx, h, Statement{SQL: `SELECT 1 AS n WHERE 1 = 0`}, 10)
	require.NoError(t, err)
	assert.Empty(t, rows.Rows)
	assert.Equal(t, `{"columns":["n"],"rows":[]}`, mustJSON(t, rows))
}

func TestWriteRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	m, e := newSQLite(t)
	h := borrow(t, m)

	require.NoError(t, e.DDL(ctx, h, Statement{SQL: `CREATE TABLE users (email TEXT PRIMARY KEY)`}))
	_, err := e.Write(ctx, h, Statement{SQL: `INSERT INTO users VALUES (?)`, Args: []any{"a@x"}})
	require.NoError(t, err)

	_, err = e.Write(ctx, h,
		Statement{SQL: `INSERT INTO users VALUES (?)`, Args: []any{"b@x"}},
		Statement{SQL: `INSERT INTO users VALUES (?)`, Args: []any{"a@x"}},
	)
	require.Error(t, err)
	assert.Equal(t, dberr.ConstraintViolation, dberr.KindOf(err))
	assert.Contains(t, err.Error(), "statement 2")
	assert.Equal(t, pool.StateInUse, h.State())

	rows, err := e.Read(ctx, h, Statement{SQL: `SELECT count(*) AS n FROM users`}, 0)
	require.NoError(t, err)
	n, _ := rows.Rows[0].Get("n")
	assert.EqualValues(t, 1, n)
}

func TestWriteReturning(t *testing.T) {
	ctx := context.Background()
	m, e := newSQLite(t)
	h := borrow(t, m)

	require.NoError(t, e.DDL(ctx, h, Statement{SQL: `CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, label TEXT UNIQUE)`}))
	rows, err := e.WriteReturning(ctx, h, Statement{SQL: `INSERT INTO tags (label) VALUES (?), (?) RETURNING id, label`, Args: []any{"a", "b"}}, 0)
	require.NoError(t, err)
	require.Len(t, rows.Rows, 2)
	assert.Equal(t, []string{"id", "label"}, rows.Columns)

	_, err = e.WriteReturning(ctx, h, Statement{SQL: `INSERT INTO tags (label) VALUES (?), (?) RETURNING id`, Args: []any{"c", "a"}}, 0)
	assert.Equal(t, dberr.ConstraintViolation, dberr.KindOf(err))

	count, err := e.Read(ctx, h, Statement{SQL: `SELECT count(*) AS n FROM tags`}, 0)
	require.NoError(t, err)
	n, _ := count.Rows[0].Get("n")
	assert.EqualValues(t, 2, n)
}

func TestInvalidStatementIsClassified(t *testing.T) {
	ctx := context.Background()
	m, e := newSQLite(t)
	h := borrow(t, m)

	_, err := e.Read(ctx, h, Statement{SQL: `SELECT * FROM missing_table`}, 0)
	assert.Equal(t, dberr.InvalidArgument, dberr.KindOf(err))
	assert.Equal(t, pool.StateInUse, h.State())
}

func TestStream(t *testing.T) {
	ctx := context.Background()
	m, e := newSQLite(t)
	h := borrow(t, m)

	var got []any
	err := e.Stream(ctx, h, Statement{SQL: `SELECT 1 AS n UNION ALL SELECT 2`}, func(r Row) error {
		v, _ := r.Get("n")
		got = append(got, v)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, []any{int64(1), int64(2)}, got)

	stop := errors.New("sink full")
	err = e.Stream(ctx, h, Statement{SQL: `SELECT 1 AS n UNION ALL SELECT 2`}, func(Row) error {
		return stop
	})
	assert.ErrorIs(t, err, stop)
}

type fakeSession struct {
	conn     *sql.Conn
	broken   bool
	observed []error
}

func (f *fakeSession) Conn() *sql.Conn { return f.conn }

func (f *fakeSession) Observe(err error) {
	if err != nil {
		f.observed = append(f.observed, err)
	}
}

func (f *fakeSession) MarkBroken(error) { f.broken = true }

func mockSession(t *testing.T) (*fakeSession, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		db.Close()
	})
	return &fakeSession{conn: conn}, mock
}

func TestWriteCommitsInOrder(t *testing.T) {
	s, mock := mockSession(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE a SET x = ?").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM b").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	counts, err := New(dialect.MySQL{}).Write(context.Background(), s,
		Statement{SQL: "UPDATE a SET x = ?", Args: []any{1}},
		Statement{SQL: "DELETE FROM b"},
	)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteConstraintViolationRollsBack(t *testing.T) {
	s, mock := mockSession(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t VALUES (?)").WithArgs(1).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1' for key 'PRIMARY'"})
	mock.ExpectRollback()

	_, err := New(dialect.MySQL{}).Write(context.Background(), s, Statement{SQL: "INSERT INTO t VALUES (?)", Args: []any{1}})
	assert.Equal(t, dberr.ConstraintViolation, dberr.KindOf(err))
	assert.False(t, s.broken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteConnectionErrorMarksBroken(t *testing.T) {
	s, mock := mockSession(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM t").WillReturnError(mysql.ErrInvalidConn)
	mock.ExpectRollback()

	_, err := New(dialect.MySQL{}).Write(context.Background(), s, Statement{SQL: "DELETE FROM t"})
	assert.Equal(t, dberr.ConnectionBroken, dberr.KindOf(err))
	assert.True(t, s.broken)
}

func TestCanceledWriteIsAbandoned(t *testing.T) {
	s, _ := mockSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(dialect.Postgres{}).Write(ctx, s, Statement{SQL: "DELETE FROM t"})
	assert.Equal(t, dberr.TransactionAborted, dberr.KindOf(err))
	assert.True(t, s.broken)
}

func TestDDLWithoutTransactionSupport(t *testing.T) {
	s, mock := mockSession(t)
	mock.ExpectExec("DROP TABLE `t`").WillReturnResult(sqlmock.NewResult(0, 0))

	err := New(dialect.MySQL{}).DDL(context.Background(), s, Statement{SQL: "DROP TABLE `t`"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDDLInTransaction(t *testing.T) {
	s, mock := mockSession(t)
	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE "t"`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err := New(dialect.Postgres{}).DDL(context.Background(), s, Statement{SQL: `DROP TABLE "t"`})
	assert.Equal(t, dberr.InternalError, dberr.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "12.50", normalize([]byte("12.50")))
	assert.Equal(t, []byte{0xff, 0x00}, normalize([]byte{0xff, 0x00}))
	ts := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	assert.Equal(t, ts, normalize(ts))
	assert.Nil(t, normalize(nil))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
