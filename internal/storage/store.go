// Package storage puts attachment bytes into S3-compatible object storage.
package storage

import (
	"context"
	"io"
)

// ObjectStore is the subset of object storage the attachment flow needs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (url string, err error)
	Delete(ctx context.Context, key string) error
}
