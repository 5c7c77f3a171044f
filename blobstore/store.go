// Package blobstore stores named, immutable blobs off the data directory.
//
// The persistence layer copies every snapshot to a Store after a checkpoint
// and pulls it back when a data directory is empty. Implementations exist
// for a local directory, memory (tests), MinIO and Amazon S3.
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error that satisfies errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// Store is a flat namespace of blobs. Names use '/' as separator.
type Store interface {
	// Put writes the blob atomically, replacing an existing one.
	// size is the number of bytes r yields, or -1 if unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get opens a blob for reading.
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the sorted names that start with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
