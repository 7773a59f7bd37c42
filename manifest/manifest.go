// Package manifest defines the persisted state of a dataset: the partition
// manifests recording which layers and chunks exist, and the chunk manifests
// carrying enough per-chunk metadata to plan queries and build indexes
// without reading chunk payloads.
//
// Manifests are the only mutable shared state in the engine. All mutation
// goes through registration, index lifecycle or maintenance; everything else
// reads them.
package manifest

import (
	"sort"
	"time"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/schema"
)

// ChunkRef locates one immutable chunk in object storage.
type ChunkRef struct {
	ID          core.ChunkID `json:"id"`
	StoragePath string       `json:"storage_path"`
	ByteSize    uint64       `json:"byte_size"`
	// Seq is the registration sequence number; latest-at ties are broken
	// by the highest Seq.
	Seq uint64 `json:"seq"`
}

// LayerState is the committed state of one layer of a partition. Layers are
// immutable-by-replacement: a LayerState is installed or swapped out whole,
// never edited in place.
type LayerState struct {
	Name         string          `json:"name"`
	SourceURL    string          `json:"source_url,omitempty"`
	Chunks       []ChunkRef      `json:"chunks"`
	Columns      []schema.Column `json:"columns"`
	RegisteredAt time.Time       `json:"registered_at"`
	Seq          uint64          `json:"seq"`
}

// Schema returns the layer's schema.
func (l *LayerState) Schema() schema.Schema {
	return schema.FromColumns(l.Columns)
}

// PartitionManifest is the authoritative record of what layers and data
// exist for one partition (segment) of a dataset.
type PartitionManifest struct {
	Partition core.PartitionID       `json:"partition"`
	Layers    map[string]*LayerState `json:"layers"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// LayerNames returns the partition's layer names, sorted.
func (m *PartitionManifest) LayerNames() []string {
	names := make([]string, 0, len(m.Layers))
	for n := range m.Layers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schema returns the partition's schema: the union of its layers' schemas.
func (m *PartitionManifest) Schema() (schema.Schema, error) {
	out := schema.Schema{}
	for _, name := range m.LayerNames() {
		merged, err := schema.Union(out, m.Layers[name].Schema())
		if err != nil {
			return nil, err
		}
		out = merged
	}
	return out, nil
}

// NumChunks returns the total chunk count across layers.
func (m *PartitionManifest) NumChunks() int {
	n := 0
	for _, l := range m.Layers {
		n += len(l.Chunks)
	}
	return n
}

// ChunkMeta is one row of a chunk manifest: derived metadata about a chunk,
// sufficient for query planning without touching the payload.
type ChunkMeta struct {
	ChunkID     core.ChunkID                    `json:"chunk_id"`
	Partition   core.PartitionID                `json:"partition"`
	Layer       string                          `json:"layer"`
	StoragePath string                          `json:"storage_path"`
	ByteSize    uint64                          `json:"byte_size"`
	RowCount    uint64                          `json:"row_count"`
	IsStatic    bool                            `json:"is_static"`
	Timelines   map[core.Timeline]core.TimeRange `json:"timelines,omitempty"`
	Columns     []schema.Column                 `json:"columns"`
	Seq         uint64                          `json:"seq"`
}

// Range returns the chunk's time range on the given timeline.
func (m *ChunkMeta) Range(tl core.Timeline) (core.TimeRange, bool) {
	r, ok := m.Timelines[tl]
	return r, ok
}

// MetaFor derives the manifest row for a chunk at the given storage ref.
func MetaFor(c *chunk.Chunk, ref ChunkRef, layer string) ChunkMeta {
	meta := ChunkMeta{
		ChunkID:     c.ID,
		Partition:   c.Partition,
		Layer:       layer,
		StoragePath: ref.StoragePath,
		ByteSize:    ref.ByteSize,
		RowCount:    uint64(c.NumRows()),
		IsStatic:    c.IsStatic(),
		Columns:     c.Schema().Columns(),
		Seq:         ref.Seq,
	}
	if !c.IsStatic() {
		meta.Timelines = make(map[core.Timeline]core.TimeRange, len(c.Times))
		for _, tc := range c.Times {
			if r, ok := c.TimeRange(tc.Timeline); ok {
				meta.Timelines[tc.Timeline] = r
			}
		}
	}
	return meta
}

// ChunkManifest is the queryable metadata about a dataset's chunks. The
// default manifest (Index == "") covers all data; index-specific manifests
// are restricted to the rows an index was built over.
type ChunkManifest struct {
	Dataset core.EntryID `json:"dataset"`
	// Index is the owning index name, or empty for the default manifest.
	Index string `json:"index,omitempty"`
	// BuiltSeq is the registration sequence the manifest was derived at.
	// A manifest older than the dataset's current sequence is stale, and
	// so is any index built on it.
	BuiltSeq uint64      `json:"built_seq"`
	Rows     []ChunkMeta `json:"rows"`
}

// RowsForPartition returns the manifest rows belonging to one partition.
func (m *ChunkManifest) RowsForPartition(p core.PartitionID) []ChunkMeta {
	var out []ChunkMeta
	for _, r := range m.Rows {
		if r.Partition == p {
			out = append(out, r)
		}
	}
	return out
}

// Partitions returns the sorted distinct partition ids in the manifest.
func (m *ChunkManifest) Partitions() []core.PartitionID {
	seen := make(map[core.PartitionID]struct{})
	for _, r := range m.Rows {
		seen[r.Partition] = struct{}{}
	}
	out := make([]core.PartitionID, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IndexRecord is the persisted definition and lifecycle state of one
// secondary index. Config is the codec-encoded kind-specific configuration;
// the index subsystem owns its shape.
type IndexRecord struct {
	Name     string         `json:"name"`
	State    string         `json:"state"`
	Config   []byte         `json:"config"`
	BuiltSeq uint64         `json:"built_seq"`
	Manifest *ChunkManifest `json:"manifest,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// State is the full persisted manifest state of one dataset.
type State struct {
	Version    int                                    `json:"version"`
	Dataset    core.EntryID                           `json:"dataset"`
	Commit     uint64                                 `json:"commit"`
	Seq        uint64                                 `json:"seq"`
	Partitions map[core.PartitionID]*PartitionManifest `json:"partitions"`
	Chunks     *ChunkManifest                         `json:"chunks"`
	Indexes    map[string]*IndexRecord                `json:"indexes,omitempty"`
}

// NewState returns an empty manifest state for a dataset.
func NewState(dataset core.EntryID) *State {
	return &State{
		Version:    CurrentVersion,
		Dataset:    dataset,
		Partitions: make(map[core.PartitionID]*PartitionManifest),
		Chunks:     &ChunkManifest{Dataset: dataset},
		Indexes:    make(map[string]*IndexRecord),
	}
}

// Clone returns a copy of the state that mutators can edit without
// touching snapshots held by readers. Partition manifests, layer states
// and index records are copied; chunk manifest rows are copied as a
// slice but share their column and timeline metadata, which is never
// edited after derivation.
func (s *State) Clone() *State {
	out := &State{
		Version:    s.Version,
		Dataset:    s.Dataset,
		Commit:     s.Commit,
		Seq:        s.Seq,
		Partitions: make(map[core.PartitionID]*PartitionManifest, len(s.Partitions)),
		Indexes:    make(map[string]*IndexRecord, len(s.Indexes)),
	}
	for pid, pm := range s.Partitions {
		out.Partitions[pid] = pm.clone()
	}
	for name, rec := range s.Indexes {
		cp := *rec
		out.Indexes[name] = &cp
	}
	if s.Chunks != nil {
		cm := *s.Chunks
		cm.Rows = append([]ChunkMeta(nil), s.Chunks.Rows...)
		out.Chunks = &cm
	}
	return out
}

func (m *PartitionManifest) clone() *PartitionManifest {
	out := *m
	out.Layers = make(map[string]*LayerState, len(m.Layers))
	for name, ls := range m.Layers {
		cp := *ls
		cp.Chunks = append([]ChunkRef(nil), ls.Chunks...)
		cp.Columns = append([]schema.Column(nil), ls.Columns...)
		out.Layers[name] = &cp
	}
	return &out
}

// PartitionIDs returns the sorted partition ids present in the state.
func (s *State) PartitionIDs() []core.PartitionID {
	out := make([]core.PartitionID, 0, len(s.Partitions))
	for p := range s.Partitions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Schema returns the dataset's schema-on-read: the union across partitions.
func (s *State) Schema() (schema.Schema, error) {
	out := schema.Schema{}
	for _, p := range s.PartitionIDs() {
		ps, err := s.Partitions[p].Schema()
		if err != nil {
			return nil, err
		}
		merged, err := schema.Union(out, ps)
		if err != nil {
			return nil, err
		}
		out = merged
	}
	return out, nil
}

// RebuildChunkManifest derives the default chunk manifest from the partition
// manifests and the given per-chunk metadata lookup. Rows are ordered by
// (partition, layer, seq) so repeated rebuilds of unchanged state are
// byte-identical.
func (s *State) RebuildChunkManifest(metaFor func(core.PartitionID, string, ChunkRef) (ChunkMeta, bool)) {
	rows := make([]ChunkMeta, 0, 64)
	for _, pid := range s.PartitionIDs() {
		pm := s.Partitions[pid]
		for _, layer := range pm.LayerNames() {
			for _, ref := range pm.Layers[layer].Chunks {
				if meta, ok := metaFor(pid, layer, ref); ok {
					rows = append(rows, meta)
				}
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Partition != b.Partition {
			return a.Partition < b.Partition
		}
		if a.Layer != b.Layer {
			return a.Layer < b.Layer
		}
		return a.Seq < b.Seq
	})
	s.Chunks = &ChunkManifest{Dataset: s.Dataset, BuiltSeq: s.Seq, Rows: rows}
}
