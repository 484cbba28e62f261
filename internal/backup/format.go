// Package backup serializes table rows and ships them to a destination
// outside the database: a local file, a NATS object store, a Kafka topic or
// an S3 bucket.
package backup

import (
	"bufio"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/executor"
)

type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSONL:
		return FormatJSONL, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", dberr.Invalid("backup", fmt.Sprintf("unsupported format %q (jsonl|csv)", s))
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv"
	}
	return "application/x-ndjson"
}

type Encoder interface {
	Write(executor.Row) error
	Flush() error
}

// NewEncoder returns an encoder writing rows to w. CSV output starts with a
// header built from columns, even when no row follows.
func NewEncoder(f Format, w io.Writer, columns []string) (Encoder, error) {
	switch f {
	case FormatJSONL:
		bw := bufio.NewWriter(w)
		enc := json.NewEncoder(bw)
		enc.SetEscapeHTML(false)
		return &jsonlEncoder{w: bw, enc: enc}, nil
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(columns); err != nil {
			return nil, err
		}
		return &csvEncoder{w: cw, record: make([]string, len(columns))}, nil
	}
	return nil, dberr.Invalid("backup", fmt.Sprintf("unsupported format %q", f))
}

type jsonlEncoder struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func (e *jsonlEncoder) Write(r executor.Row) error {
	return e.enc.Encode(r)
}

func (e *jsonlEncoder) Flush() error {
	return e.w.Flush()
}

type csvEncoder struct {
	w      *csv.Writer
	record []string
}

func (e *csvEncoder) Write(r executor.Row) error {
	if len(r.Values) != len(e.record) {
		return fmt.Errorf("row has %d values, header has %d columns", len(r.Values), len(e.record))
	}
	for i, v := range r.Values {
		e.record[i] = cell(v)
	}
	return e.w.Write(e.record)
}

func (e *csvEncoder) Flush() error {
	e.w.Flush()
	return e.w.Error()
}

// cell renders a scanned value as a CSV field. NULL is the empty field.
func cell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
