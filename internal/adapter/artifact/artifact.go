// Package artifact opens similarity artifacts from the local filesystem,
// S3 or a MinIO compatible object store.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/niksmo/storefront/internal/similarity"
)

var ErrNotFound = errors.New("artifact not found")

var (
	_ similarity.Source = FileSource{}
	_ similarity.Source = (*S3Source)(nil)
	_ similarity.Source = (*MinIOSource)(nil)
)

type FileSource struct {
	path string
}

func NewFileSource(path string) FileSource {
	return FileSource{path}
}

func (s FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	const op = "FileSource.Open"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f, nil
}

func (s FileSource) String() string {
	return "file://" + s.path
}
