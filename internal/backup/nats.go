package backup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSSink stores backups as objects of a JetStream object store. Buckets
// are created on first use.
type NATSSink struct {
	nc    *nats.Conn
	js    jetstream.JetStream
	owned bool

	mu      sync.Mutex
	buckets map[string]jetstream.ObjectStore
}

// DialNATS connects to url and returns a sink owning the connection.
func DialNATS(url string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("dbmcp"),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("reconnected to NATS server", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			slog.Warn("disconnected from NATS server", "url", c.ConnectedUrl(), "error", err)
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			slog.Info("NATS connection closed permanently")
		}))
	if err != nil {
		return nil, err
	}
	s, err := NewNATSSink(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewNATSSink uses an existing connection; Close leaves it open.
func NewNATSSink(nc *nats.Conn) (*NATSSink, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, err
	}
	return &NATSSink{
		nc:      nc,
		js:      js,
		buckets: make(map[string]jetstream.ObjectStore),
	}, nil
}

func (s *NATSSink) Write(ctx context.Context, dest Destination, r io.Reader) (int64, error) {
	store, err := s.objectStore(ctx, dest.Target)
	if err != nil {
		return 0, err
	}
	meta := jetstream.ObjectMeta{
		Name:    dest.Object,
		Headers: make(nats.Header),
	}
	if dest.ContentType != "" {
		meta.Headers.Set("Content-Type", dest.ContentType)
	}
	info, err := store.Put(ctx, meta, r)
	if err != nil {
		return 0, err
	}
	slog.Debug("object stored", "bucket", info.Bucket, "name", info.Name, "size", info.Size, "modTime", info.ModTime)
	return int64(info.Size), nil
}

func (s *NATSSink) objectStore(ctx context.Context, bucket string) (jetstream.ObjectStore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.buckets[bucket]; ok {
		return store, nil
	}
	store, err := s.js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "dbmcp table backups",
		Storage:     jetstream.FileStorage,
		Compression: true,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, err
		}
		store, err = s.js.ObjectStore(ctx, bucket)
		if err != nil {
			return nil, err
		}
	}
	s.buckets[bucket] = store
	return store, nil
}

// Get opens a stored backup for reading.
func (s *NATSSink) Get(ctx context.Context, bucket, name string) (io.ReadCloser, error) {
	store, err := s.objectStore(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return store.Get(ctx, name)
}

func (s *NATSSink) Close() error {
	if s.owned {
		return s.nc.Drain()
	}
	return nil
}
