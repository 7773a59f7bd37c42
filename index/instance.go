package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/index/inverted"
	"github.com/hupe1980/lakecat/index/scalar"
	"github.com/hupe1980/lakecat/index/vector"
	"github.com/hupe1980/lakecat/manifest"
)

const defaultTopK = 10

// ChunkLoader resolves a chunk manifest row to its decoded chunk. The
// build path streams chunks through this hook so the index subsystem never
// touches storage directly.
type ChunkLoader func(ctx context.Context, meta manifest.ChunkMeta) (*chunk.Chunk, error)

// posting is one indexed instance: where it lives and what it holds. The
// dense slice position doubles as the uint32 id handed to the kind
// implementations.
type posting struct {
	partition  core.PartitionID
	time       core.TimeInt
	value      chunk.Value
	instanceID int
	chunkID    core.ChunkID
}

// Instance is a built index over one column: the postings plus exactly one
// kind-specific structure. Build-then-query; a failed build never yields
// an Instance.
type Instance struct {
	cfg      Config
	builtSeq uint64
	postings []posting

	inverted *inverted.Index
	scalar   *scalar.Index
	// vector search is resolved per partition, so the ANN structure is
	// sharded by partition id.
	vectors map[core.PartitionID]*partitionVectors
}

type partitionVectors struct {
	index *vector.Index
	// ids maps the shard-local vector position back to the posting id.
	ids []uint32
}

// BuiltSeq reports the dataset sequence number the build covered.
func (in *Instance) BuiltSeq() uint64 { return in.builtSeq }

// NumPostings reports how many instances the build indexed.
func (in *Instance) NumPostings() int { return len(in.postings) }

// Manifest returns the chunk manifest of this index: per partition, the
// chunk rows whose target column contributed postings.
func (in *Instance) Manifest(dataset core.EntryID, rows []manifest.ChunkMeta) *manifest.ChunkManifest {
	contributed := make(map[core.ChunkID]struct{}, len(rows))
	for _, p := range in.postings {
		contributed[p.chunkID] = struct{}{}
	}
	m := &manifest.ChunkManifest{Dataset: dataset, Index: in.cfg.Name(), BuiltSeq: in.builtSeq}
	for _, row := range rows {
		if _, ok := contributed[row.ChunkID]; ok {
			m.Rows = append(m.Rows, row)
		}
	}
	return m
}

// Build extracts the target column's instances from every chunk the
// manifest rows name and constructs the kind structure. Any chunk that
// fails to load or to index fails the whole build: a partial index is
// worse than none.
func Build(ctx context.Context, cfg Config, builtSeq uint64, rows []manifest.ChunkMeta, load ChunkLoader) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	in := &Instance{cfg: cfg, builtSeq: builtSeq}
	for _, meta := range rows {
		if !metaHasColumn(meta, cfg) {
			continue
		}
		c, err := load(ctx, meta)
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", meta.ChunkID, err)
		}
		if err := in.extract(c); err != nil {
			return nil, fmt.Errorf("index chunk %s: %w", meta.ChunkID, err)
		}
	}

	if err := in.construct(); err != nil {
		return nil, err
	}
	return in, nil
}

func metaHasColumn(meta manifest.ChunkMeta, cfg Config) bool {
	if !cfg.Timeline.IsStatic() {
		if _, ok := meta.Timelines[cfg.Timeline]; !ok && !meta.IsStatic {
			return false
		}
	}
	for _, desc := range meta.Columns {
		if desc.Desc == cfg.Column {
			return true
		}
	}
	return false
}

func (in *Instance) extract(c *chunk.Chunk) error {
	col, ok := c.ColumnByDesc(in.cfg.Column)
	if !ok {
		return nil
	}

	var times []core.TimeInt
	if !c.IsStatic() {
		tl, ok := c.TimesFor(in.cfg.Timeline)
		if !ok {
			// Temporal chunk without the target timeline contributes
			// nothing to a timeline-scoped index.
			if !in.cfg.Timeline.IsStatic() {
				return nil
			}
			return fmt.Errorf("static index over temporal chunk on column %s", in.cfg.Column)
		}
		times = tl
	}

	for row, v := range col.Values {
		if v.IsNull() {
			continue
		}
		var t core.TimeInt
		if times != nil {
			t = times[row]
		}
		for i, inst := range v.Instances() {
			if inst.IsNull() {
				continue
			}
			in.postings = append(in.postings, posting{
				partition:  c.Partition,
				time:       t,
				value:      inst,
				instanceID: i,
				chunkID:    c.ID,
			})
		}
	}
	return nil
}

func (in *Instance) construct() error {
	switch in.cfg.Kind {
	case KindInverted:
		name := ""
		if in.cfg.Inverted != nil {
			name = in.cfg.Inverted.Tokenizer
		}
		tok, err := inverted.NewTokenizer(name)
		if err != nil {
			return err
		}
		ix := inverted.New(tok)
		for id, p := range in.postings {
			if p.value.Kind != chunk.KindString {
				return fmt.Errorf("inverted index over non-string value kind %d", p.value.Kind)
			}
			ix.Add(uint32(id), p.value.S)
		}
		in.inverted = ix

	case KindVector:
		metric, err := vector.ParseMetric(in.cfg.Vector.Metric)
		if err != nil {
			return err
		}
		byPartition := make(map[core.PartitionID]*struct {
			vecs [][]float32
			ids  []uint32
		})
		for id, p := range in.postings {
			if p.value.Kind != chunk.KindFloatList {
				return fmt.Errorf("vector index over non-embedding value kind %d", p.value.Kind)
			}
			s := byPartition[p.partition]
			if s == nil {
				s = &struct {
					vecs [][]float32
					ids  []uint32
				}{}
				byPartition[p.partition] = s
			}
			s.vecs = append(s.vecs, p.value.F32s)
			s.ids = append(s.ids, uint32(id))
		}
		in.vectors = make(map[core.PartitionID]*partitionVectors, len(byPartition))
		for pid, s := range byPartition {
			ix, err := vector.Build(s.vecs, in.cfg.Vector.NumPartitions, metric)
			if err != nil {
				return fmt.Errorf("partition %s: %w", pid, err)
			}
			in.vectors[pid] = &partitionVectors{index: ix, ids: s.ids}
		}

	case KindScalar:
		ix := scalar.New()
		for id, p := range in.postings {
			if err := ix.Add(uint32(id), p.value); err != nil {
				return err
			}
		}
		in.scalar = ix
	}
	return nil
}

// Search runs the kind-specific query and returns uniform hit rows. Vector
// results are top-k per partition; inverted and scalar results cover every
// match. Hits are ordered by (partition, time, instance id).
func (in *Instance) Search(payload Payload, props QueryProps) ([]Hit, error) {
	var hits []Hit
	switch in.cfg.Kind {
	case KindInverted:
		if payload.Text == "" {
			return nil, fmt.Errorf("inverted index %s requires a text query", in.cfg.Name())
		}
		for _, id := range in.inverted.Search(payload.Text) {
			hits = append(hits, in.hitFor(id, 0))
		}

	case KindVector:
		if payload.Vector == nil {
			return nil, fmt.Errorf("vector index %s requires an embedding query", in.cfg.Name())
		}
		k := props.TopK
		if k <= 0 {
			k = defaultTopK
		}
		nprobe := props.NProbe
		if nprobe <= 0 {
			nprobe = in.cfg.Vector.NProbe
		}
		for _, shard := range in.vectors {
			results, err := shard.index.Search(payload.Vector, k, nprobe)
			if err != nil {
				return nil, err
			}
			for _, r := range results {
				hits = append(hits, in.hitFor(shard.ids[r.ID], r.Score))
			}
		}

	case KindScalar:
		if payload.Scalar == nil {
			return nil, fmt.Errorf("scalar index %s requires a predicate query", in.cfg.Name())
		}
		ids, err := in.scalar.Search(scalar.Predicate{
			Op:    scalar.Op(payload.Scalar.Op),
			Value: payload.Scalar.Value,
			Upper: payload.Scalar.Upper,
		})
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			hits = append(hits, in.hitFor(id, 0))
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Partition != hits[j].Partition {
			return hits[i].Partition < hits[j].Partition
		}
		if hits[i].Time != hits[j].Time {
			return hits[i].Time < hits[j].Time
		}
		return hits[i].InstanceID < hits[j].InstanceID
	})
	return hits, nil
}

func (in *Instance) hitFor(id uint32, score float32) Hit {
	p := in.postings[id]
	return Hit{
		Partition:  p.partition,
		Time:       p.time,
		Instance:   p.value,
		InstanceID: p.instanceID,
		Score:      score,
	}
}
