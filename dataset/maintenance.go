package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/index"
	"github.com/hupe1980/lakecat/manifest"
)

// defaultCompactionTargetBytes is the frame size below which temporal
// chunks are considered small enough to merge.
const defaultCompactionTargetBytes = 1 << 20

// MaintenanceOptions selects which maintenance tasks run.
type MaintenanceOptions struct {
	// Compact merges small temporal chunks within each (partition, layer).
	Compact bool
	// CompactionTargetBytes overrides the small-chunk threshold; 0 uses
	// the default.
	CompactionTargetBytes uint64
	// RebuildScalarIndexes re-indexes every stale scalar index.
	RebuildScalarIndexes bool
	// CleanupBefore removes layers registered before the cutoff and sweeps
	// chunk blobs nothing references anymore. Zero disables cleanup.
	CleanupBefore time.Time
}

// MaintenanceReport summarizes what a maintenance run did.
type MaintenanceReport struct {
	ChunksCompacted int
	IndexesRebuilt  int
	LayersRemoved   int
	BlobsSwept      int
}

// String renders the report as a human-readable summary.
func (r *MaintenanceReport) String() string {
	return fmt.Sprintf("compacted %d chunks, rebuilt %d indexes, removed %d layers, swept %d blobs",
		r.ChunksCompacted, r.IndexesRebuilt, r.LayersRemoved, r.BlobsSwept)
}

// DoMaintenance runs the selected tasks. Tasks are independent and run
// best-effort concurrently: one task failing does not stop the others, and
// the first error is returned alongside the report of what did complete.
func (d *Dataset) DoMaintenance(ctx context.Context, opts MaintenanceOptions) (*MaintenanceReport, error) {
	if d.res != nil {
		if err := d.res.AcquireBackground(ctx); err != nil {
			return nil, err
		}
		defer d.res.ReleaseBackground()
	}

	report := &MaintenanceReport{}
	var g errgroup.Group

	if opts.Compact {
		g.Go(func() error {
			n, err := d.compact(ctx, opts.CompactionTargetBytes)
			report.ChunksCompacted = n
			return err
		})
	}
	if opts.RebuildScalarIndexes {
		g.Go(func() error {
			n, err := d.rebuildStaleScalars(ctx)
			report.IndexesRebuilt = n
			return err
		})
	}
	if !opts.CleanupBefore.IsZero() {
		g.Go(func() error {
			layers, blobs, err := d.cleanup(ctx, opts.CleanupBefore)
			report.LayersRemoved = layers
			report.BlobsSwept = blobs
			return err
		})
	}

	err := g.Wait()
	d.logger.Info("maintenance finished",
		slog.Int("compacted", report.ChunksCompacted),
		slog.Int("reindexed", report.IndexesRebuilt),
		slog.Int("layers_removed", report.LayersRemoved),
		slog.Int("blobs_swept", report.BlobsSwept))
	return report, err
}

// compact merges runs of small temporal chunks that share a schema and
// timeline set within each (partition, layer). Static chunks are never
// merged: latest-at resolution depends on their per-chunk identity.
func (d *Dataset) compact(ctx context.Context, targetBytes uint64) (int, error) {
	if targetBytes == 0 {
		targetBytes = defaultCompactionTargetBytes
	}

	merged := 0
	err := d.mutate(ctx, func(st *manifest.State) (bool, error) {
		merged = 0
		metaByID := make(map[core.ChunkID]manifest.ChunkMeta, len(st.Chunks.Rows))
		for _, row := range st.Chunks.Rows {
			metaByID[row.ChunkID] = row
		}

		dirty := false
		fresh := make(map[core.ChunkID]manifest.ChunkMeta)
		for _, pid := range st.PartitionIDs() {
			pm := st.Partitions[pid]
			for _, layerName := range pm.LayerNames() {
				ls := pm.Layers[layerName]
				groups := groupCompactable(ls.Chunks, metaByID, targetBytes)
				for _, group := range groups {
					ref, meta, err := d.mergeGroup(ctx, group, metaByID, layerName)
					if err != nil {
						return false, err
					}
					ls.Chunks = replaceRefs(ls.Chunks, group, ref)
					fresh[ref.ID] = meta
					merged += len(group)
					dirty = true
				}
			}
		}
		if !dirty {
			return false, nil
		}
		d.rebuildChunks(st, fresh)
		return true, nil
	})
	return merged, err
}

// groupCompactable partitions a layer's refs into mergeable groups: two or
// more consecutive small temporal chunks with identical column sets and
// timelines.
func groupCompactable(refs []manifest.ChunkRef, metaByID map[core.ChunkID]manifest.ChunkMeta, targetBytes uint64) [][]manifest.ChunkRef {
	var groups [][]manifest.ChunkRef
	var run []manifest.ChunkRef

	flush := func() {
		if len(run) > 1 {
			groups = append(groups, run)
		}
		run = nil
	}

	for _, ref := range refs {
		meta, ok := metaByID[ref.ID]
		if !ok || meta.IsStatic || ref.ByteSize >= targetBytes {
			flush()
			continue
		}
		if len(run) > 0 {
			prev := metaByID[run[len(run)-1].ID]
			if chunkShape(meta) != chunkShape(prev) {
				flush()
			}
		}
		run = append(run, ref)
	}
	flush()
	return groups
}

// chunkShape fingerprints the merge compatibility of a chunk: its sorted
// column descriptors and timeline names.
func chunkShape(meta manifest.ChunkMeta) string {
	var b strings.Builder
	for _, col := range meta.Columns {
		b.WriteString(col.Desc.String())
		b.WriteByte('|')
		b.WriteString(col.Type.String())
		b.WriteByte(';')
	}
	b.WriteByte('@')
	for tl := range meta.Timelines {
		b.WriteString(string(tl))
		b.WriteByte(';')
	}
	return b.String()
}

// mergeGroup loads a group, concatenates it into one chunk and writes the
// merged frame. The merged chunk inherits the group's highest seq so
// latest-at tie-breaks are unchanged.
func (d *Dataset) mergeGroup(ctx context.Context, group []manifest.ChunkRef, metaByID map[core.ChunkID]manifest.ChunkMeta, layer string) (manifest.ChunkRef, manifest.ChunkMeta, error) {
	chunks := make([]*chunk.Chunk, 0, len(group))
	var maxSeq uint64
	for _, ref := range group {
		c, err := d.LoadChunk(ctx, metaByID[ref.ID])
		if err != nil {
			return manifest.ChunkRef{}, manifest.ChunkMeta{}, err
		}
		chunks = append(chunks, c)
		if ref.Seq > maxSeq {
			maxSeq = ref.Seq
		}
	}

	mergedChunk, err := chunk.Merge(chunks)
	if err != nil {
		return manifest.ChunkRef{}, manifest.ChunkMeta{}, err
	}
	mergedChunk.Layer = layer

	ref, err := d.writeChunk(ctx, mergedChunk, maxSeq)
	if err != nil {
		return manifest.ChunkRef{}, manifest.ChunkMeta{}, err
	}
	return ref, manifest.MetaFor(mergedChunk, ref, layer), nil
}

func replaceRefs(refs []manifest.ChunkRef, group []manifest.ChunkRef, replacement manifest.ChunkRef) []manifest.ChunkRef {
	inGroup := make(map[core.ChunkID]struct{}, len(group))
	for _, g := range group {
		inGroup[g.ID] = struct{}{}
	}
	out := make([]manifest.ChunkRef, 0, len(refs)-len(group)+1)
	inserted := false
	for _, ref := range refs {
		if _, ok := inGroup[ref.ID]; ok {
			if !inserted {
				out = append(out, replacement)
				inserted = true
			}
			continue
		}
		out = append(out, ref)
	}
	return out
}

// rebuildStaleScalars re-indexes every scalar index whose build trails the
// data. Rebuilds run synchronously inside the maintenance job.
func (d *Dataset) rebuildStaleScalars(ctx context.Context) (int, error) {
	st := d.snapshot()
	rebuilt := 0
	for name, rec := range st.Indexes {
		if index.ParseState(rec.State) != index.StateStale {
			continue
		}
		var cfg index.Config
		if err := d.cd.Unmarshal(rec.Config, &cfg); err != nil {
			return rebuilt, fmt.Errorf("decode index config %s: %w", name, err)
		}
		if cfg.Kind != index.KindScalar {
			continue
		}
		if err := d.buildIndex(ctx, name, cfg, true); err != nil {
			return rebuilt, err
		}
		rebuilt++
	}
	return rebuilt, nil
}

// cleanup removes layers registered before the cutoff, then sweeps chunk
// blobs no layer and no index manifest references anymore.
func (d *Dataset) cleanup(ctx context.Context, before time.Time) (layersRemoved, blobsSwept int, err error) {
	err = d.mutate(ctx, func(st *manifest.State) (bool, error) {
		layersRemoved = 0
		dirty := false
		for pid, pm := range st.Partitions {
			for name, ls := range pm.Layers {
				if ls.RegisteredAt.Before(before) {
					delete(pm.Layers, name)
					layersRemoved++
					dirty = true
				}
			}
			if len(pm.Layers) == 0 {
				delete(st.Partitions, pid)
			}
		}
		if !dirty {
			return false, nil
		}
		d.rebuildChunks(st, nil)
		markIndexesStale(st)
		return true, nil
	})
	if err != nil {
		return layersRemoved, 0, err
	}

	blobsSwept, err = d.sweepOrphans(ctx)
	return layersRemoved, blobsSwept, err
}

// sweepOrphans deletes chunk blobs that neither the partition manifests nor
// any index manifest reference. Index manifests pin their snapshot's chunks
// so a stale index keeps serving until its rebuild.
func (d *Dataset) sweepOrphans(ctx context.Context) (int, error) {
	st := d.snapshot()
	live := make(map[string]struct{})
	for _, pm := range st.Partitions {
		for _, ls := range pm.Layers {
			for _, ref := range ls.Chunks {
				live[ref.StoragePath] = struct{}{}
			}
		}
	}
	for _, rec := range st.Indexes {
		if rec.Manifest == nil {
			continue
		}
		for _, row := range rec.Manifest.Rows {
			live[row.StoragePath] = struct{}{}
		}
	}

	names, err := d.blobs.List(ctx, manifest.Prefix(d.id)+"chunks/")
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, name := range names {
		if _, ok := live[name]; ok {
			continue
		}
		if err := d.blobs.Delete(ctx, name); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}
