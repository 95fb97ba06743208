package ports

import (
	"context"
	"io"
)

type S3Client interface {
	// PutObject uploads an object and returns its public URL.
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}
