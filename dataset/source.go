package dataset

import (
	"context"
	"fmt"

	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/core"
)

// recordingDoc is the blob layout of a stored recording: the partition it
// carries plus its chunks, codec-encoded.
type recordingDoc struct {
	Partition core.PartitionID `json:"partition"`
	Chunks    []*chunk.Chunk   `json:"chunks"`
}

// BlobOpener opens recordings stored as single codec-encoded blobs. It is
// the default SourceOpener; other recording formats plug in behind the
// SourceOpener interface.
type BlobOpener struct {
	blobs blobstore.BlobStore
	cd    codec.Codec
}

// NewBlobOpener creates an opener over the given blob store.
func NewBlobOpener(blobs blobstore.BlobStore, cd codec.Codec) *BlobOpener {
	if cd == nil {
		cd = codec.Default
	}
	return &BlobOpener{blobs: blobs, cd: cd}
}

// Open reads and decodes the recording at the given blob name.
func (o *BlobOpener) Open(ctx context.Context, storageURL string) (RecordingSource, error) {
	blob, err := o.blobs.Open(ctx, storageURL)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	data := make([]byte, blob.Size())
	if _, err := blob.ReadAt(ctx, data, 0); err != nil && len(data) > 0 {
		return nil, fmt.Errorf("read recording %s: %w", storageURL, err)
	}
	var doc recordingDoc
	if err := o.cd.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode recording %s: %w", storageURL, err)
	}
	return NewStaticSource(doc.Partition, doc.Chunks...), nil
}

// WriteRecording stores chunks as a recording blob readable by Open.
// Intended for tests and tooling that stage recordings for registration.
func (o *BlobOpener) WriteRecording(ctx context.Context, storageURL string, partition core.PartitionID, chunks ...*chunk.Chunk) error {
	data, err := o.cd.Marshal(recordingDoc{Partition: partition, Chunks: chunks})
	if err != nil {
		return fmt.Errorf("encode recording %s: %w", storageURL, err)
	}
	return o.blobs.Put(ctx, storageURL, data)
}

// StaticSource is an in-memory RecordingSource.
type StaticSource struct {
	partition core.PartitionID
	chunks    []*chunk.Chunk
	pos       int
}

// NewStaticSource creates a source that yields the given chunks in order.
func NewStaticSource(partition core.PartitionID, chunks ...*chunk.Chunk) *StaticSource {
	return &StaticSource{partition: partition, chunks: chunks}
}

// Partition returns the source's partition id.
func (s *StaticSource) Partition() core.PartitionID { return s.partition }

// Next returns the next chunk, or (nil, nil) at end of stream.
func (s *StaticSource) Next(ctx context.Context) (*chunk.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, nil
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// Close releases the source. No-op for in-memory sources.
func (s *StaticSource) Close() error { return nil }

// OpenerFunc adapts a function to the SourceOpener interface.
type OpenerFunc func(ctx context.Context, storageURL string) (RecordingSource, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, storageURL string) (RecordingSource, error) {
	return f(ctx, storageURL)
}
