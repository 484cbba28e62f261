// Package executor runs bound statements on a borrowed session with explicit
// transaction boundaries.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/dialect"
)

// Statement is SQL text plus its driver parameters.
type Statement struct {
	SQL  string
	Args []any
}

// Session is the borrowed connection a statement runs on.
type Session interface {
	Conn() *sql.Conn
	Observe(err error)
	MarkBroken(err error)
}

type execerQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Executor struct {
	dialect dialect.Dialect
}

func New(d dialect.Dialect) *Executor {
	return &Executor{dialect: d}
}

func (e *Executor) Dialect() dialect.Dialect {
	return e.dialect
}

// Read runs a query outside any explicit transaction and returns at most
// limit rows (all rows when limit <= 0).
func (e *Executor) Read(ctx context.Context, s Session, st Statement, limit int) (*Rows, error) {
	slog.Debug("executing read", "sql", st.SQL, "params", len(st.Args))
	res, err := doQuery(ctx, s.Conn(), st, limit)
	if err != nil {
		return nil, e.fail(ctx, s, "read", err, false)
	}
	s.Observe(nil)
	return res, nil
}

// Stream calls fn for every row of the query, in order. Row values are only
// valid during the call.
func (e *Executor) Stream(ctx context.Context, s Session, st Statement, fn func(Row) error) error {
	slog.Debug("executing stream", "sql", st.SQL, "params", len(st.Args))
	err := doStream(ctx, s.Conn(), st, fn)
	if err != nil {
		var cbErr *callbackError
		if errors.As(err, &cbErr) {
			s.Observe(nil)
			return cbErr.err
		}
		return e.fail(ctx, s, "read", err, false)
	}
	s.Observe(nil)
	return nil
}

// Write runs every statement in one transaction. The first failure rolls the
// transaction back and is returned; nothing is committed. It returns the
// affected row count of each statement.
func (e *Executor) Write(ctx context.Context, s Session, stmts ...Statement) ([]int64, error) {
	counts, err := e.transaction(ctx, s, stmts, "write")
	if err != nil {
		return nil, err
	}
	s.Observe(nil)
	return counts, nil
}

// WriteReturning runs one row-producing write (INSERT ... RETURNING and the
// like) in its own transaction. The rows are read before the commit; at
// most limit of them are returned.
func (e *Executor) WriteReturning(ctx context.Context, s Session, st Statement, limit int) (res *Rows, err error) {
	tx, err := s.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, e.fail(ctx, s, "write: begin", err, true)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("rollback", "error", rbErr)
			s.MarkBroken(rbErr)
		}
	}()

	slog.Debug("executing statement", "op", "write", "sql", st.SQL, "params", len(st.Args))
	res, err = doQuery(ctx, tx, st, limit)
	if err != nil {
		return nil, e.fail(ctx, s, "write", err, true)
	}
	if err = tx.Commit(); err != nil {
		return nil, e.fail(ctx, s, "write: commit", err, true)
	}
	s.Observe(nil)
	return res, nil
}

// DDL runs a schema statement as a single statement transaction. Engines that
// commit DDL implicitly get the statement executed directly and cannot roll
// it back.
func (e *Executor) DDL(ctx context.Context, s Session, stmts ...Statement) error {
	if e.dialect.TransactionalDDL() {
		_, err := e.transaction(ctx, s, stmts, "ddl")
		if err == nil {
			s.Observe(nil)
		}
		return err
	}
	for _, st := range stmts {
		slog.Info("executing non-transactional DDL", "driver", e.dialect.Name(), "sql", st.SQL)
		if _, err := s.Conn().ExecContext(ctx, st.SQL, st.Args...); err != nil {
			return e.fail(ctx, s, "ddl", err, true)
		}
	}
	s.Observe(nil)
	return nil
}

func (e *Executor) transaction(ctx context.Context, s Session, stmts []Statement, op string) (counts []int64, err error) {
	if len(stmts) == 0 {
		return nil, dberr.Invalid(op, "no statements")
	}
	tx, err := s.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, e.fail(ctx, s, op+": begin", err, true)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("rollback", "error", rbErr)
			s.MarkBroken(rbErr)
		}
	}()

	counts = make([]int64, 0, len(stmts))
	for i, st := range stmts {
		slog.Debug("executing statement", "op", op, "sql", st.SQL, "params", len(st.Args))
		res, err := doExec(ctx, tx, st)
		if err != nil {
			if len(stmts) > 1 {
				op = fmt.Sprintf("%s: statement %d", op, i+1)
			}
			return nil, e.fail(ctx, s, op, err, true)
		}
		counts = append(counts, res)
	}
	if err := tx.Commit(); err != nil {
		return nil, e.fail(ctx, s, op+": commit", err, true)
	}
	return counts, nil
}

// fail classifies err and decides the fate of the session. A canceled
// mutation leaves the session in an unknown state, so it is discarded.
func (e *Executor) fail(ctx context.Context, s Session, op string, err error, mutating bool) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.MarkBroken(ctxErr)
		kind := dberr.InternalError
		if mutating {
			kind = dberr.TransactionAborted
		}
		return &dberr.Error{Kind: kind, Op: op, Message: "canceled", Cause: err}
	}
	kind := dialect.ClassifyError(e.dialect, err)
	if kind == dberr.ConnectionBroken {
		s.MarkBroken(err)
	} else {
		s.Observe(err)
	}
	return dberr.Wrap(kind, op, err)
}

func doExec(ctx context.Context, eq execerQuerier, st Statement) (int64, error) {
	res, err := eq.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}
