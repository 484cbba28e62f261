package executor

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"unicode/utf8"
)

// Row is one result row. It marshals to a JSON object whose keys keep the
// column order of the query.
type Row struct {
	Columns []string
	Values  []any
}

func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type Rows struct {
	Columns   []string `json:"columns"`
	Rows      []Row    `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func doQuery(ctx context.Context, q querier, st Statement, limit int) (*Rows, error) {
	rows, err := q.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &Rows{
		Columns: columns,
		Rows:    make([]Row, 0),
	}
	for rows.Next() {
		if limit > 0 && len(res.Rows) == limit {
			res.Truncated = true
			break
		}
		values, err := scan(rows, len(columns))
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, rows.Close()
}

type callbackError struct {
	err error
}

func (e *callbackError) Error() string { return e.err.Error() }

func (e *callbackError) Unwrap() error { return e.err }

func doStream(ctx context.Context, q querier, st Statement, fn func(Row) error) error {
	rows, err := q.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		values, err := scan(rows, len(columns))
		if err != nil {
			return err
		}
		if err := fn(Row{Columns: columns, Values: values}); err != nil {
			return &callbackError{err: err}
		}
	}
	return rows.Err()
}

func scan(rows *sql.Rows, n int) ([]any, error) {
	values := make([]any, n)
	for i := range values {
		values[i] = &values[i]
	}
	if err := rows.Scan(values...); err != nil {
		return nil, err
	}
	for i, v := range values {
		values[i] = normalize(v)
	}
	return values, nil
}

// normalize turns driver text returned as bytes (MySQL decimals, SQLite
// text affinity) into strings. Other values pass through untouched so
// numeric and temporal precision is kept.
func normalize(v any) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if utf8.Valid(b) {
		return string(b)
	}
	return bytes.Clone(b)
}
