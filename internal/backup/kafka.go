package backup

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/twmb/franz-go/pkg/kgo"
)

const kafkaBatchSize = 500

// producer is the part of *kgo.Client the sink uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaSink produces one record per line of the backup stream.
type KafkaSink struct {
	client producer
}

func NewKafkaSink(brokers []string, opts ...kgo.Opt) (*KafkaSink, error) {
	client, err := kgo.NewClient(append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.ClientID("dbmcp"),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &KafkaSink{client: client}, nil
}

func (s *KafkaSink) Write(ctx context.Context, dest Destination, r io.Reader) (int64, error) {
	var (
		n     int64
		batch = make([]*kgo.Record, 0, kafkaBatchSize)
		br    = bufio.NewReader(r)
	)
	headers := []kgo.RecordHeader{{Key: "content-type", Value: []byte(dest.ContentType)}}
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := s.client.ProduceSync(ctx, batch...).FirstErr()
		batch = batch[:0]
		return err
	}
	for {
		line, err := br.ReadBytes('\n')
		if value := bytes.TrimSuffix(line, []byte{'\n'}); len(value) > 0 {
			n += int64(len(line))
			batch = append(batch, &kgo.Record{Topic: dest.Target, Value: value, Headers: headers})
			if len(batch) == kafkaBatchSize {
				if ferr := flush(); ferr != nil {
					return n, ferr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return n, err
		}
	}
	return n, flush()
}

func (s *KafkaSink) Close() error {
	s.client.Close()
	return nil
}
