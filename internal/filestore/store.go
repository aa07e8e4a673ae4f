// Package filestore is the object storage seam used for mapping snapshots.
// Callers depend on Store; the MinIO driver lives in the minio subpackage.
package filestore

import (
	"context"
	"io"
)

// Store is the subset of an S3-style object store the service writes to.
type Store interface {
	// Ping verifies the backend is reachable with the configured credentials.
	Ping(ctx context.Context) error

	Close() error

	// EnsureBucket creates bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	// PutObject uploads size bytes from r to key.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// ListObjects returns the objects under opts.Prefix.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) ([]ObjectInfo, error)

	// GetObject opens the object at key. The caller must close it.
	GetObject(ctx context.Context, bucket, key string) (Object, error)
}
