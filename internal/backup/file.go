package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/litesql/dbmcp/internal/dberr"
)

// FileSink writes backups below Dir. The file appears atomically once the
// whole stream has been written.
type FileSink struct {
	Dir string
}

func (s *FileSink) Write(ctx context.Context, dest Destination, r io.Reader) (n int64, err error) {
	if !filepath.IsLocal(dest.Object) {
		return 0, dberr.Invalid("backup", fmt.Sprintf("file %q escapes the backup directory", dest.Object))
	}
	path := filepath.Join(s.Dir, dest.Object)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	n, err = io.Copy(f, ctxReader{ctx: ctx, r: r})
	if err != nil {
		return 0, err
	}
	if err = f.Sync(); err != nil {
		return 0, err
	}
	if err = f.Close(); err != nil {
		return 0, err
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *FileSink) Close() error {
	return nil
}
