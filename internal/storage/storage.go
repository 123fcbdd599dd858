package storage

import (
	"context"
	"io"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
	// Metadata is attached to the object as user metadata.
	Metadata map[string]string
}

// ObjectStore holds archived query results. Keys are relative to the store's
// own prefix.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	// List returns the objects under prefix ordered by key. A missing bucket
	// yields an empty list.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
