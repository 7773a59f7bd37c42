package dataset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/manifest"
	"github.com/hupe1980/lakecat/schema"
)

// ErrDuplicateLayer is returned under PolicyError when a source targets a
// (partition, layer) that already holds data.
var ErrDuplicateLayer = errors.New("partition layer already registered")

// DuplicatePolicy decides what happens when a registration targets a
// (partition, layer) that already exists.
type DuplicatePolicy uint8

const (
	// PolicyError rejects the duplicate source.
	PolicyError DuplicatePolicy = iota
	// PolicySkip leaves the existing layer untouched and drops the source.
	PolicySkip
	// PolicyOverwrite replaces the layer with the source's data. The layer
	// is swapped whole; old and new chunks are never mixed.
	PolicyOverwrite
)

// String returns the policy name.
func (p DuplicatePolicy) String() string {
	switch p {
	case PolicyError:
		return "error"
	case PolicySkip:
		return "skip"
	case PolicyOverwrite:
		return "overwrite"
	default:
		return "unknown"
	}
}

// DataSource names one recording to register: where it lives and which
// layer of its partition it lands in. An empty layer targets the default
// layer.
type DataSource struct {
	StorageURL string
	Layer      string
}

// RecordingSource is an opened recording: the partition it belongs to and
// a pull stream of its chunks. Next returns (nil, nil) at end of stream.
type RecordingSource interface {
	Partition() core.PartitionID
	Next(ctx context.Context) (*chunk.Chunk, error)
	Close() error
}

// SourceOpener resolves a storage URL into a readable recording. The
// ingestion format is pluggable behind this boundary.
type SourceOpener interface {
	Open(ctx context.Context, storageURL string) (RecordingSource, error)
}

// sourceBatch is one fully read and validated source, ready to commit.
type sourceBatch struct {
	src       DataSource
	partition core.PartitionID
	layer     string
	chunks    []*chunk.Chunk
	columns   schema.Schema
}

// RegisterResult reports the outcome for one source.
type RegisterResult struct {
	StorageURL string
	Partition  core.PartitionID
	Layer      string
	// Skipped is true when PolicySkip dropped the source.
	Skipped   bool
	NumChunks int
}

// Register ingests the given sources. Sources are read and validated
// concurrently; manifest mutation is serialized and each source commits
// atomically: a source either installs its whole layer or changes nothing.
// Sources already committed before a later source fails stay committed.
func (d *Dataset) Register(ctx context.Context, opener SourceOpener, sources []DataSource, policy DuplicatePolicy) ([]RegisterResult, error) {
	if opener == nil {
		return nil, errors.New("register requires a source opener")
	}

	batches := make([]*sourceBatch, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			b, err := d.readSource(gctx, opener, src)
			if err != nil {
				return fmt.Errorf("source %s: %w", src.StorageURL, err)
			}
			batches[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]RegisterResult, 0, len(batches))
	for _, b := range batches {
		res, err := d.commitSource(ctx, b, policy)
		if err != nil {
			return results, fmt.Errorf("source %s: %w", b.src.StorageURL, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// readSource drains one recording and validates its chunks against each
// other. Cross-dataset schema validation happens at commit time, against
// the state the commit actually applies to.
func (d *Dataset) readSource(ctx context.Context, opener SourceOpener, src DataSource) (*sourceBatch, error) {
	rs, err := opener.Open(ctx, src.StorageURL)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	layer := src.Layer
	if layer == "" {
		layer = core.DefaultLayer
	}
	b := &sourceBatch{
		src:       src,
		partition: rs.Partition(),
		layer:     layer,
		columns:   schema.Schema{},
	}
	if b.partition == "" {
		return nil, errors.New("recording has no partition id")
	}

	for {
		c, err := rs.Next(ctx)
		if err != nil {
			return nil, err
		}
		if c == nil {
			break
		}
		if c.Partition == "" {
			c.Partition = b.partition
		}
		if c.Partition != b.partition {
			return nil, fmt.Errorf("chunk %s belongs to partition %s, recording is %s", c.ID, c.Partition, b.partition)
		}
		c.Layer = layer
		if err := c.Validate(); err != nil {
			return nil, err
		}
		merged, err := schema.Union(b.columns, c.Schema())
		if err != nil {
			return nil, err
		}
		b.columns = merged
		b.chunks = append(b.chunks, c)
	}
	return b, nil
}

// commitSource applies one batch under the writer lock: duplicate policy,
// schema check against the live state, chunk writes, layer install.
func (d *Dataset) commitSource(ctx context.Context, b *sourceBatch, policy DuplicatePolicy) (RegisterResult, error) {
	res := RegisterResult{StorageURL: b.src.StorageURL, Partition: b.partition, Layer: b.layer}

	err := d.mutate(ctx, func(st *manifest.State) (bool, error) {
		pm := st.Partitions[b.partition]
		if pm != nil {
			if _, exists := pm.Layers[b.layer]; exists {
				switch policy {
				case PolicySkip:
					res.Skipped = true
					return false, nil
				case PolicyOverwrite:
					// fall through to replace below
				default:
					return false, fmt.Errorf("partition %s layer %s: %w", b.partition, b.layer, ErrDuplicateLayer)
				}
			}
		}

		// The new layer's schema must union cleanly with the rest of the
		// dataset. The replaced layer's columns are excluded: overwrite
		// may legitimately change a column's type.
		if err := d.checkSchema(st, b); err != nil {
			return false, err
		}

		refs := make([]manifest.ChunkRef, 0, len(b.chunks))
		metas := make(map[core.ChunkID]manifest.ChunkMeta, len(b.chunks))
		for _, c := range b.chunks {
			st.Seq++
			ref, err := d.writeChunk(ctx, c, st.Seq)
			if err != nil {
				return false, err
			}
			refs = append(refs, ref)
			metas[c.ID] = manifest.MetaFor(c, ref, b.layer)
		}

		if pm == nil {
			pm = &manifest.PartitionManifest{
				Partition: b.partition,
				Layers:    make(map[string]*manifest.LayerState),
			}
			st.Partitions[b.partition] = pm
		}
		pm.Layers[b.layer] = &manifest.LayerState{
			Name:         b.layer,
			SourceURL:    b.src.StorageURL,
			Chunks:       refs,
			Columns:      b.columns.Columns(),
			RegisteredAt: time.Now().UTC(),
			Seq:          st.Seq,
		}
		pm.UpdatedAt = time.Now().UTC()

		d.rebuildChunks(st, metas)
		markIndexesStale(st)
		res.NumChunks = len(refs)
		return true, nil
	})
	return res, err
}

// checkSchema verifies the batch unions cleanly with every layer except the
// one it replaces.
func (d *Dataset) checkSchema(st *manifest.State, b *sourceBatch) error {
	acc := b.columns.Clone()
	for pid, pm := range st.Partitions {
		for name, layer := range pm.Layers {
			if pid == b.partition && name == b.layer {
				continue
			}
			merged, err := schema.Union(acc, layer.Schema())
			if err != nil {
				return err
			}
			acc = merged
		}
	}
	return nil
}

// rebuildChunks rederives the default chunk manifest, sourcing metadata for
// pre-existing chunks from the previous manifest and for new chunks from
// the supplied map.
func (d *Dataset) rebuildChunks(st *manifest.State, fresh map[core.ChunkID]manifest.ChunkMeta) {
	known := make(map[core.ChunkID]manifest.ChunkMeta, len(st.Chunks.Rows)+len(fresh))
	for _, row := range st.Chunks.Rows {
		known[row.ChunkID] = row
	}
	for id, meta := range fresh {
		known[id] = meta
	}
	st.RebuildChunkManifest(func(p core.PartitionID, layer string, ref manifest.ChunkRef) (manifest.ChunkMeta, bool) {
		meta, ok := known[ref.ID]
		if !ok {
			return manifest.ChunkMeta{}, false
		}
		meta.Layer = layer
		meta.Seq = ref.Seq
		return meta, true
	})
}

// markIndexesStale flags every built index as behind the data.
func markIndexesStale(st *manifest.State) {
	for _, rec := range st.Indexes {
		if rec.State == stateReady {
			rec.State = stateStale
		}
	}
}

// WriteChunks is the direct write path: it appends chunks to their
// partitions' layers without going through a recording source. Layers are
// created on demand; appending to an existing layer is additive.
func (d *Dataset) WriteChunks(ctx context.Context, layer string, chunks []*chunk.Chunk) error {
	if layer == "" {
		layer = core.DefaultLayer
	}
	for _, c := range chunks {
		c.Layer = layer
		if err := c.Validate(); err != nil {
			return err
		}
	}

	return d.mutate(ctx, func(st *manifest.State) (bool, error) {
		// Validate the combined schema before writing any payload.
		acc, err := st.Schema()
		if err != nil {
			return false, err
		}
		for _, c := range chunks {
			merged, err := schema.Union(acc, c.Schema())
			if err != nil {
				return false, err
			}
			acc = merged
		}

		metas := make(map[core.ChunkID]manifest.ChunkMeta, len(chunks))
		now := time.Now().UTC()
		for _, c := range chunks {
			st.Seq++
			ref, err := d.writeChunk(ctx, c, st.Seq)
			if err != nil {
				return false, err
			}
			metas[c.ID] = manifest.MetaFor(c, ref, layer)

			pm := st.Partitions[c.Partition]
			if pm == nil {
				pm = &manifest.PartitionManifest{
					Partition: c.Partition,
					Layers:    make(map[string]*manifest.LayerState),
				}
				st.Partitions[c.Partition] = pm
			}
			ls := pm.Layers[layer]
			if ls == nil {
				ls = &manifest.LayerState{Name: layer, RegisteredAt: now}
				pm.Layers[layer] = ls
			}
			ls.Chunks = append(ls.Chunks, ref)
			ls.Seq = st.Seq
			merged, err := schema.Union(ls.Schema(), c.Schema())
			if err != nil {
				return false, err
			}
			ls.Columns = merged.Columns()
			pm.UpdatedAt = now
		}

		if len(metas) == 0 {
			return false, nil
		}
		d.rebuildChunks(st, metas)
		markIndexesStale(st)
		return true, nil
	})
}
