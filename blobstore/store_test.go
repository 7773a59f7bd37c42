package blobstore

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]BlobStore {
	t.Helper()
	return map[string]BlobStore{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(filepath.Join(t.TempDir(), "blobs")),
	}
}

func TestBlobStoreRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte("hello immutable world")

			require.NoError(t, store.Put(ctx, "datasets/x/chunks/a", data))

			blob, err := store.Open(ctx, "datasets/x/chunks/a")
			require.NoError(t, err)
			defer blob.Close()

			assert.Equal(t, int64(len(data)), blob.Size())

			got := make([]byte, len(data))
			_, err = blob.ReadAt(ctx, got, 0)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestBlobRangedRead(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "blob", []byte("0123456789")))

			blob, err := store.Open(ctx, "blob")
			require.NoError(t, err)
			defer blob.Close()

			rc, err := blob.ReadRange(ctx, 3, 4)
			require.NoError(t, err)
			defer rc.Close()

			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, "3456", string(got))
		})
	}
}

func TestOpenMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Open(context.Background(), "nope")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCreateStreaming(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			w, err := store.Create(ctx, "streamed")
			require.NoError(t, err)
			_, err = w.Write([]byte("part one "))
			require.NoError(t, err)
			_, err = w.Write([]byte("part two"))
			require.NoError(t, err)

			// Not visible until Close.
			_, err = store.Open(ctx, "streamed")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, w.Close())

			blob, err := store.Open(ctx, "streamed")
			require.NoError(t, err)
			defer blob.Close()
			assert.Equal(t, int64(len("part one part two")), blob.Size())
		})
	}
}

func TestListPrefix(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "datasets/a/CURRENT", []byte("x")))
			require.NoError(t, store.Put(ctx, "datasets/a/chunks/1", []byte("x")))
			require.NoError(t, store.Put(ctx, "datasets/b/CURRENT", []byte("x")))

			names, err := store.List(ctx, "datasets/a/")
			require.NoError(t, err)
			assert.Equal(t, []string{"datasets/a/CURRENT", "datasets/a/chunks/1"}, names)
		})
	}
}

func TestDeleteIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Put(ctx, "gone", []byte("x")))
			require.NoError(t, store.Delete(ctx, "gone"))
			require.NoError(t, store.Delete(ctx, "gone"))

			_, err := store.Open(ctx, "gone")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryCommitStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, _, err := store.ReadPointer(ctx, "CURRENT")
	require.ErrorIs(t, err, ErrNotFound)

	v1, err := store.CommitPointer(ctx, "CURRENT", 0, []byte("MANIFEST-00000001"))
	require.NoError(t, err)

	contents, version, err := store.ReadPointer(ctx, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, []byte("MANIFEST-00000001"), contents)
	assert.Equal(t, v1, version)

	// Stale expectation loses the race.
	_, err = store.CommitPointer(ctx, "CURRENT", 0, []byte("MANIFEST-00000002"))
	require.ErrorIs(t, err, ErrConcurrentCommit)

	_, err = store.CommitPointer(ctx, "CURRENT", v1, []byte("MANIFEST-00000002"))
	require.NoError(t, err)
}
