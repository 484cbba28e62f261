package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/executor"
)

// Sink stores the bytes read from r at dest and reports how many were
// written.
type Sink interface {
	Write(ctx context.Context, dest Destination, r io.Reader) (int64, error)
	Close() error
}

// Sinks maps destination schemes to their configured sink.
type Sinks map[Scheme]Sink

func (s Sinks) For(dest Destination) (Sink, error) {
	sink, ok := s[dest.Scheme]
	if !ok || sink == nil {
		return nil, dberr.Invalid("backup", fmt.Sprintf("%s destinations are not configured on this server", dest.Scheme))
	}
	return sink, nil
}

func (s Sinks) Schemes() []string {
	list := make([]string, 0, len(s))
	for scheme := range s {
		list = append(list, string(scheme))
	}
	sort.Strings(list)
	return list
}

func (s Sinks) Close() error {
	var errs []error
	for scheme, sink := range s {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s sink: %w", scheme, err))
		}
	}
	return errors.Join(errs...)
}

type Summary struct {
	Destination string `json:"destination"`
	Format      Format `json:"format,omitempty"`
	Rows        int64  `json:"rows"`
	Bytes       int64  `json:"bytes,omitempty"`
}

// Producer feeds rows to emit, typically from executor.Stream.
type Producer func(emit func(executor.Row) error) error

// Export encodes the rows of produce and streams them to sink through a
// pipe, so the whole table is never held in memory.
func Export(ctx context.Context, sink Sink, dest Destination, f Format, columns []string, produce Producer) (Summary, error) {
	if err := dest.Check(f); err != nil {
		return Summary{}, err
	}
	dest.ContentType = f.ContentType()

	reader, writer := io.Pipe()
	var (
		rows          int64
		encodeFailed  bool
		errProducerCh = make(chan error, 1)
	)
	go func() {
		enc, err := NewEncoder(f, writer, columns)
		if err != nil {
			encodeFailed = true
		} else {
			err = produce(func(r executor.Row) error {
				rows++
				if err := enc.Write(r); err != nil {
					encodeFailed = true
					return err
				}
				return nil
			})
		}
		if err == nil {
			if err = enc.Flush(); err != nil {
				encodeFailed = true
			}
		}
		writer.CloseWithError(err)
		errProducerCh <- err
	}()

	n, err := sink.Write(ctx, dest, reader)
	if err != nil {
		reader.CloseWithError(err)
	} else {
		reader.Close()
	}
	perr := <-errProducerCh
	switch {
	case perr != nil && !encodeFailed:
		// the database side failed first; the sink only saw the pipe close
		return Summary{}, perr
	case err != nil:
		if dberr.KindOf(err) == dberr.InvalidArgument {
			return Summary{}, err
		}
		return Summary{}, dberr.Wrap(dberr.InternalError, "backup to "+dest.String(), err)
	case perr != nil:
		return Summary{}, dberr.Wrap(dberr.InternalError, "encode "+string(f), perr)
	}
	slog.Info("backup stored", "destination", dest.String(), "format", f, "rows", rows, "bytes", n)
	return Summary{Destination: dest.String(), Format: f, Rows: rows, Bytes: n}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
