// Package blobstore is the object-store boundary of the engine.
//
// Chunks and manifests are immutable blobs; the engine reads them with range
// requests and never mutates them in place. BlobStore is the interface the
// core calls; the backing store itself (filesystem, MinIO, S3) is external.
//
// Implementations must be safe for concurrent use.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations must return an error that satisfies
// `errors.Is(err, ErrNotFound)`.
var ErrNotFound = errors.New("blob not found")

// ErrConcurrentCommit is returned by CommitStore implementations when a
// conditional pointer update lost the race against another writer.
var ErrConcurrentCommit = errors.New("concurrent commit detected")

// BlobStore is an abstraction for accessing immutable data blobs (chunks,
// manifests, index files).
type BlobStore interface {
	// Open opens an existing blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a new blob for streaming writes. The blob becomes
	// visible when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the names of all blobs with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over [off, off+length). Cloud backends
	// translate this to a ranged GET.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
	Close() error
}

// WritableBlob is a streaming write handle. Writes are not visible until
// Close returns nil.
type WritableBlob interface {
	io.Writer
	// Sync flushes buffered data to durable storage where the backend
	// supports it; a no-op otherwise.
	Sync() error
	Close() error
}

// CommitStore is an optional extension for stores that can update a small
// pointer blob with compare-and-swap semantics. The manifest layer uses it
// to serialize concurrent manifest commits; stores without CAS fall back to
// last-writer-wins Put, which is safe for single-writer deployments.
type CommitStore interface {
	// ReadPointer returns the pointer contents and its current version.
	// A missing pointer returns ErrNotFound with version 0.
	ReadPointer(ctx context.Context, name string) (contents []byte, version uint64, err error)
	// CommitPointer replaces the pointer contents iff its version still
	// equals expect. Returns ErrConcurrentCommit on a version mismatch.
	CommitPointer(ctx context.Context, name string, expect uint64, contents []byte) (version uint64, err error)
}
