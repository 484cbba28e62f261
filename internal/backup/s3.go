package backup

import (
	"context"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Sink uploads backups with PutObject. The stream is spooled to a
// temporary file first because request signing needs a seekable body.
type S3Sink struct {
	client *s3.Client
}

func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Sink{client: client}, nil
}

func (s *S3Sink) Write(ctx context.Context, dest Destination, r io.Reader) (int64, error) {
	f, err := os.CreateTemp("", "dbmcp-s3-*")
	if err != nil {
		return 0, err
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()
	n, err := io.Copy(f, ctxReader{ctx: ctx, r: r})
	if err != nil {
		return 0, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(dest.Target),
		Key:           aws.String(dest.Object),
		Body:          f,
		ContentLength: aws.Int64(n),
	}
	if dest.ContentType != "" {
		input.ContentType = aws.String(dest.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *S3Sink) Close() error {
	return nil
}
