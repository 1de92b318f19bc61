package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Options struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string // optional, for S3 compatible stores
}

type S3Source struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Source resolves credentials through the default AWS chain.
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	const op = "NewS3Source"

	if opts.Bucket == "" || opts.Key == "" {
		return nil, fmt.Errorf("%s: bucket and key are required", op)
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Source{client: client, bucket: opts.Bucket, key: opts.Key}, nil
}

func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	const op = "S3Source.Open"

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out.Body, nil
}

func (s *S3Source) String() string {
	return "s3://" + s.bucket + "/" + s.key
}
