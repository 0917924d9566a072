package domain

import (
	"context"
	"io"
)

// BlobWriter stores one object of known size under key.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}
