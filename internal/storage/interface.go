package storage

import (
	"context"
	"io"
)

// BlobStorage is the durable box file store. Promotion is the only
// writer; downloads read, the sweeper never touches it. Paths are
// unique per (box, version, provider), so stored files are immutable:
// there is no overwrite path.
type BlobStorage interface {
	// Store writes content at the given path. The write must be atomic:
	// a reader never observes a partially written box file.
	Store(ctx context.Context, path string, content io.Reader) error

	// Retrieve opens the box file at the given path for reading.
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the box file at the given path. Deleting a missing
	// path is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a box file is present at the given path.
	Exists(ctx context.Context, path string) (bool, error)
}
