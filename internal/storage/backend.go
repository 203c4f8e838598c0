// Package storage defines the Backend interface for file content.
//
// Content bytes live in a Backend keyed by the file path without its
// leading slash ("docs/guide.txt"). The folder tree and file records are
// kept separately by the metadata store.
package storage

import (
	"context"
	"io"
	"strings"
)

// Backend is the interface for content storage backends.
// A missing object is reported with an error wrapping fs.ErrNotExist.
type Backend interface {
	// GetObject returns the object's body and size.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// PutObject stores size bytes from body under key, replacing any
	// previous object.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object. Removing a missing object is not an
	// error.
	DeleteObject(ctx context.Context, key string) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// Key maps a file path ("/docs/guide.txt") to its object key.
func Key(filePath string) string {
	return strings.TrimPrefix(filePath, "/")
}
