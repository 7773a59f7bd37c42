package dataset

import (
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/manifest"
	"github.com/hupe1980/lakecat/query"
	"github.com/hupe1980/lakecat/resource"
)

// chunkPath returns the blob name of one chunk. Chunks live under the
// dataset's manifest prefix so a catalog-level Drop removes them too.
func (d *Dataset) chunkPath(id core.ChunkID) string {
	return manifest.Prefix(d.id) + "chunks/" + id.String()
}

// writeChunk encodes a chunk frame and streams it to the blob store under
// the IO limit, returning its storage ref. The seq is assigned by the caller
// under the writer lock.
func (d *Dataset) writeChunk(ctx context.Context, c *chunk.Chunk, seq uint64) (manifest.ChunkRef, error) {
	data, err := chunk.Encode(c, d.cd)
	if err != nil {
		return manifest.ChunkRef{}, fmt.Errorf("encode chunk %s: %w", c.ID, err)
	}
	path := d.chunkPath(c.ID)
	w, err := d.blobs.Create(ctx, path)
	if err != nil {
		return manifest.ChunkRef{}, fmt.Errorf("write chunk %s: %w", c.ID, err)
	}
	if _, err := resource.NewThrottledWriter(ctx, d.res, w).Write(data); err != nil {
		_ = w.Close()
		return manifest.ChunkRef{}, fmt.Errorf("write chunk %s: %w", c.ID, err)
	}
	if err := w.Close(); err != nil {
		return manifest.ChunkRef{}, fmt.Errorf("write chunk %s: %w", c.ID, err)
	}
	return manifest.ChunkRef{
		ID:          c.ID,
		StoragePath: path,
		ByteSize:    uint64(len(data)),
		Seq:         seq,
	}, nil
}

// LoadChunk reads and decodes the chunk a manifest row points at.
func (d *Dataset) LoadChunk(ctx context.Context, meta manifest.ChunkMeta) (*chunk.Chunk, error) {
	blob, err := d.blobs.Open(ctx, meta.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open chunk %s: %w", meta.ChunkID, err)
	}
	defer blob.Close()

	rr, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", meta.ChunkID, err)
	}
	defer rr.Close()

	data, err := io.ReadAll(resource.NewThrottledReader(ctx, d.res, rr))
	if err != nil {
		return nil, fmt.Errorf("read chunk %s: %w", meta.ChunkID, err)
	}
	c, err := chunk.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode chunk %s: %w", meta.ChunkID, err)
	}
	return c, nil
}

// ChunkStream streams decoded chunks in the order a query iterator yields
// their manifest rows.
type ChunkStream struct {
	d    *Dataset
	it   *query.Iterator
	cur  *chunk.Chunk
	meta manifest.ChunkMeta
	err  error
}

// GetChunks resolves a query and returns a stream over the matching chunk
// payloads, decoded in resolution order. The stream is pull-based: chunks
// are fetched one at a time as the consumer advances.
func (d *Dataset) GetChunks(q query.Query) (*ChunkStream, error) {
	it, err := d.Resolve(q)
	if err != nil {
		return nil, err
	}
	return &ChunkStream{d: d, it: it}, nil
}

// Next advances to the next chunk. It returns false at the end of the
// stream or on error; Err distinguishes the two.
func (s *ChunkStream) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if !s.it.Next(ctx) {
		s.err = s.it.Err()
		return false
	}
	s.meta = s.it.Chunk()
	s.cur, s.err = s.d.LoadChunk(ctx, s.meta)
	return s.err == nil
}

// Chunk returns the current decoded chunk.
func (s *ChunkStream) Chunk() *chunk.Chunk { return s.cur }

// Meta returns the manifest row of the current chunk.
func (s *ChunkStream) Meta() manifest.ChunkMeta { return s.meta }

// Err returns the first error the stream encountered.
func (s *ChunkStream) Err() error { return s.err }
