package artifact

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOOptions struct {
	Endpoint  string
	Bucket    string
	Key       string
	AccessKey string
	SecretKey string
	UseTLS    bool
}

type MinIOSource struct {
	client *minio.Client
	bucket string
	key    string
}

func NewMinIOSource(opts MinIOOptions) (*MinIOSource, error) {
	const op = "NewMinIOSource"

	if opts.Endpoint == "" || opts.Bucket == "" || opts.Key == "" {
		return nil, fmt.Errorf("%s: endpoint, bucket and key are required", op)
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &MinIOSource{client: client, bucket: opts.Bucket, key: opts.Key}, nil
}

// Open stats the object first, since GetObject defers errors to the
// first read.
func (s *MinIOSource) Open(ctx context.Context) (io.ReadCloser, error) {
	const op = "MinIOSource.Open"

	_, err := s.client.StatObject(ctx, s.bucket, s.key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NotFound" {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, s.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return obj, nil
}

func (s *MinIOSource) String() string {
	return "minio://" + s.bucket + "/" + s.key
}
