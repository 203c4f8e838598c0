// Package backend defines the capability set every namespace adapter
// implements. The Explorer controller talks to this interface only; the
// choice between the in-memory demo tree and the remote service is made
// once, when the adapter is constructed.
package backend

import (
	"context"
	"io"

	"github.com/fruitsalade/explorer/pkg/models"
)

// Adapter modes.
const (
	ModeDemo   = "demo"
	ModeRemote = "remote"
)

// File is one local file handed to Upload.
type File struct {
	Name string
	Size int64 // -1 when unknown
	Body io.Reader
}

// ProgressFunc receives upload progress in percent (0-100). Calls are
// never concurrent, arrive in non-decreasing order and all happen before
// Upload returns.
type ProgressFunc func(percent int)

// Adapter is the namespace CRUD capability set.
//
// All paths are directories; they are normalized by the adapter, so
// callers may pass user input directly. Failures are *Error values.
type Adapter interface {
	// List returns the entry at path. Implementations may include
	// descendant entries as well; every key is a normalized path.
	List(ctx context.Context, path string) (models.Snapshot, error)

	// GetContent fetches the content of the file name inside path.
	GetContent(ctx context.Context, path, name string) (string, error)

	// Save replaces the content of a file and returns its updated record.
	Save(ctx context.Context, path, name, content string) (models.FileRecord, error)

	// Delete removes a file, or a folder and everything below it.
	Delete(ctx context.Context, path, name string, isFolder bool) error

	// Upload stores f inside path, replacing any file of the same name.
	Upload(ctx context.Context, path string, f File, progress ProgressFunc) (models.FileRecord, error)

	// Download opens the raw bytes of a file. The caller closes it.
	Download(ctx context.Context, path, name string) (io.ReadCloser, error)

	// CreateFolder creates the folder name inside path.
	CreateFolder(ctx context.Context, path, name string) error

	// Mode is "demo" or "remote", for display only.
	Mode() string
}

// Report calls progress if it is non-nil.
func (p ProgressFunc) Report(percent int) {
	if p != nil {
		p(percent)
	}
}
