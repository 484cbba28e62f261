package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/executor"
)

type recordingProducer struct {
	batches [][]*kgo.Record
	failAt  int
	closed  bool
}

func (p *recordingProducer) ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	batch := append([]*kgo.Record(nil), rs...)
	p.batches = append(p.batches, batch)
	var err error
	if p.failAt > 0 && len(p.batches) == p.failAt {
		err = errors.New("broker unavailable")
	}
	results := make(kgo.ProduceResults, 0, len(batch))
	for _, r := range batch {
		results = append(results, kgo.ProduceResult{Record: r, Err: err})
	}
	return results
}

func (p *recordingProducer) Close() { p.closed = true }

func kafkaDest(t *testing.T) Destination {
	t.Helper()
	dest, err := ParseDestination("kafka://orders.backup")
	require.NoError(t, err)
	dest.ContentType = FormatJSONL.ContentType()
	return dest
}

func TestKafkaSinkBatchesLines(t *testing.T) {
	p := &recordingProducer{}
	sink := &KafkaSink{client: p}

	var sb strings.Builder
	for i := range 1201 {
		fmt.Fprintf(&sb, "{\"id\":%d}\n", i)
	}
	// a last line without newline is still a record, blank lines are not
	sb.WriteString("\n{\"id\":1201}")

	n, err := sink.Write(context.Background(), kafkaDest(t), strings.NewReader(sb.String()))
	require.NoError(t, err)
	assert.EqualValues(t, sb.Len()-1, n)

	require.Len(t, p.batches, 3)
	assert.Len(t, p.batches[0], 500)
	assert.Len(t, p.batches[1], 500)
	assert.Len(t, p.batches[2], 202)

	first := p.batches[0][0]
	assert.Equal(t, "orders.backup", first.Topic)
	assert.Equal(t, `{"id":0}`, string(first.Value))
	require.Len(t, first.Headers, 1)
	assert.Equal(t, "content-type", first.Headers[0].Key)
	assert.Equal(t, FormatJSONL.ContentType(), string(first.Headers[0].Value))
	assert.Equal(t, `{"id":1201}`, string(p.batches[2][201].Value))

	require.NoError(t, sink.Close())
	assert.True(t, p.closed)
}

func TestKafkaSinkProduceFailure(t *testing.T) {
	p := &recordingProducer{failAt: 2}
	sink := &KafkaSink{client: p}

	var sb strings.Builder
	for i := range 1500 {
		fmt.Fprintf(&sb, "{\"id\":%d}\n", i)
	}
	_, err := sink.Write(context.Background(), kafkaDest(t), strings.NewReader(sb.String()))
	require.ErrorContains(t, err, "broker unavailable")
	assert.Len(t, p.batches, 2)
}

func TestExportToKafka(t *testing.T) {
	p := &recordingProducer{}
	dest := kafkaDest(t)
	dest.ContentType = ""

	sum, err := Export(context.Background(), &KafkaSink{client: p}, dest, FormatJSONL, testColumns, produceRows(testRows()))
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.Rows)
	require.Len(t, p.batches, 1)
	require.Len(t, p.batches[0], 2)
	assert.True(t, strings.HasPrefix(string(p.batches[0][0].Value), `{"id":1,"name":"alice"`))

	_, err = Export(context.Background(), &KafkaSink{client: p}, dest, FormatCSV, testColumns, produceRows(testRows()))
	assert.Equal(t, dberr.InvalidArgument, dberr.KindOf(err))
}

type s3Upload struct {
	path        string
	contentType string
	length      int64
	body        string
}

func newS3Server(t *testing.T) (*S3Sink, func() []s3Upload) {
	t.Helper()
	var (
		mu      sync.Mutex
		uploads []s3Upload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/locked/") {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
			return
		}
		b, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		length := r.ContentLength
		if decoded := r.Header.Get("X-Amz-Decoded-Content-Length"); decoded != "" {
			length, _ = strconv.ParseInt(decoded, 10, 64)
		}
		mu.Lock()
		uploads = append(uploads, s3Upload{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), length: length, body: string(b)})
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	sink, err := NewS3Sink(context.Background(), S3Config{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	return sink, func() []s3Upload {
		mu.Lock()
		defer mu.Unlock()
		return append([]s3Upload(nil), uploads...)
	}
}

func TestS3SinkUploads(t *testing.T) {
	sink, uploads := newS3Server(t)
	dest, err := ParseDestination("s3://backups/2024/orders.csv")
	require.NoError(t, err)

	sum, err := Export(context.Background(), sink, dest, FormatCSV, testColumns, produceRows(testRows()))
	require.NoError(t, err)
	assert.EqualValues(t, 2, sum.Rows)

	got := uploads()
	require.Len(t, got, 1)
	assert.Equal(t, "/backups/2024/orders.csv", got[0].path)
	assert.Equal(t, FormatCSV.ContentType(), got[0].contentType)
	assert.Equal(t, sum.Bytes, got[0].length)
	assert.Contains(t, got[0].body, "id,name,price,raw,at\n")
	assert.Contains(t, got[0].body, `2,"bob, ""jr""",,,`)
}

func TestS3SinkFailure(t *testing.T) {
	sink, uploads := newS3Server(t)
	dest, err := ParseDestination("s3://locked/orders.jsonl")
	require.NoError(t, err)

	_, err = Export(context.Background(), sink, dest, FormatJSONL, testColumns, produceRows([]executor.Row{testRows()[0]}))
	require.Error(t, err)
	assert.Equal(t, dberr.InternalError, dberr.KindOf(err))
	assert.ErrorContains(t, err, "AccessDenied")
	assert.Empty(t, uploads())
}

type failingCloser struct{ Sink }

func (failingCloser) Close() error { return errors.New("close failed") }

func TestSinksClose(t *testing.T) {
	p := &recordingProducer{}
	sinks := Sinks{
		SchemeKafka: &KafkaSink{client: p},
		SchemeS3:    failingCloser{},
	}
	err := sinks.Close()
	require.ErrorContains(t, err, "close s3 sink: close failed")
	assert.True(t, p.closed)
	assert.Equal(t, []string{"kafka", "s3"}, sinks.Schemes())
}
