package query

import (
	"context"
	"sort"

	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/manifest"
	"github.com/hupe1980/lakecat/schema"
)

// Resolver turns a Query into the precise, ordered set of chunks that
// satisfy it, using only chunk-manifest metadata (payloads are never read).
type Resolver struct {
	m *manifest.ChunkManifest
}

// NewResolver creates a resolver over one chunk manifest snapshot. The
// snapshot is immutable, so resolution for a fixed manifest state is
// deterministic.
func NewResolver(m *manifest.ChunkManifest) *Resolver {
	return &Resolver{m: m}
}

// Resolve validates the query and returns a lazy iterator over matching
// chunks. Partitions are resolved one at a time as the caller pulls, so
// unbounded result sets are never materialized up front.
func (r *Resolver) Resolve(q *Query) (*Iterator, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	parts := r.m.Partitions()
	if len(q.Partitions) > 0 {
		want := make(map[core.PartitionID]struct{}, len(q.Partitions))
		for _, p := range q.Partitions {
			want[p] = struct{}{}
		}
		filtered := parts[:0]
		for _, p := range parts {
			if _, ok := want[p]; ok {
				filtered = append(filtered, p)
			}
		}
		parts = filtered
	}

	return &Iterator{
		r:          r,
		q:          q,
		partitions: parts,
		skip:       q.Scan.Offset,
		remaining:  q.Scan.Limit,
	}, nil
}

// resolvePartition computes the matching chunks of a single partition.
// Latest-at never looks outside the partition; ties on the index value are
// broken by the most recently registered chunk (highest sequence number).
func (r *Resolver) resolvePartition(q *Query, p core.PartitionID) []manifest.ChunkMeta {
	var rows []manifest.ChunkMeta
	for _, meta := range r.m.Rows {
		if meta.Partition != p {
			continue
		}
		if q.chunkMatchesContent(&meta) {
			rows = append(rows, meta)
		}
	}

	if q.LatestAt == nil && q.Range == nil {
		orderRows(rows, "")
		return rows
	}

	selected := make(map[core.ChunkID]manifest.ChunkMeta)

	if q.LatestAt != nil {
		resolveLatestAt(q, rows, selected)
	}
	if q.Range != nil {
		tl := q.Range.Timeline
		for _, meta := range rows {
			if meta.IsStatic {
				continue
			}
			if tr, ok := meta.Range(tl); ok && tr.Intersects(q.Range.Range) {
				selected[meta.ChunkID] = meta
			}
		}
	}

	out := make([]manifest.ChunkMeta, 0, len(selected))
	for _, meta := range selected {
		out = append(out, meta)
	}
	tl := core.Timeline("")
	if q.LatestAt != nil {
		tl = q.LatestAt.Timeline
	}
	if q.Range != nil {
		tl = q.Range.Timeline
	}
	orderRows(out, tl)
	return out
}

// resolveLatestAt adds the latest-at winners of one partition to selected.
// Static chunks are visible at all query times; the temporal winner is
// chosen per column so distinct entities resolve independently.
func resolveLatestAt(q *Query, rows []manifest.ChunkMeta, selected map[core.ChunkID]manifest.ChunkMeta) {
	for _, meta := range rows {
		if meta.IsStatic {
			selected[meta.ChunkID] = meta
		}
	}
	if q.LatestAt.Timeline.IsStatic() {
		return
	}

	type winner struct {
		meta   manifest.ChunkMeta
		effMax core.TimeInt
	}
	best := make(map[schema.ColumnDescriptor]winner)

	for _, meta := range rows {
		if meta.IsStatic {
			continue
		}
		tr, ok := meta.Range(q.LatestAt.Timeline)
		if !ok || tr.Min > q.LatestAt.At {
			continue
		}
		effMax := tr.Max
		if effMax > q.LatestAt.At {
			effMax = q.LatestAt.At
		}
		for _, col := range meta.Columns {
			if !q.columnMatches(col.Desc) {
				continue
			}
			cur, seen := best[col.Desc]
			if !seen || effMax > cur.effMax || (effMax == cur.effMax && meta.Seq > cur.meta.Seq) {
				best[col.Desc] = winner{meta: meta, effMax: effMax}
			}
		}
	}
	for _, w := range best {
		selected[w.meta.ChunkID] = w.meta
	}
}

// orderRows sorts chunks deterministically: static first, then temporal by
// ascending time on tl (registration order as tie-break).
func orderRows(rows []manifest.ChunkMeta, tl core.Timeline) {
	minOf := func(m *manifest.ChunkMeta) core.TimeInt {
		if tl != "" {
			if tr, ok := m.Range(tl); ok {
				return tr.Min
			}
		}
		lowest := core.TimeMax
		for _, tr := range m.Timelines {
			if tr.Min < lowest {
				lowest = tr.Min
			}
		}
		return lowest
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]
		if a.IsStatic != b.IsStatic {
			return a.IsStatic
		}
		if a.IsStatic {
			return a.Seq < b.Seq
		}
		am, bm := minOf(a), minOf(b)
		if am != bm {
			return am < bm
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ChunkID.String() < b.ChunkID.String()
	})
}

// Iterator streams resolved chunks with explicit backpressure: the next
// partition is resolved only when the current buffer drains.
//
// Usage follows the scanner pattern:
//
//	for it.Next(ctx) {
//	    meta := it.Chunk()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	r          *Resolver
	q          *Query
	partitions []core.PartitionID
	pi         int

	buf []manifest.ChunkMeta
	bi  int

	skip      int64
	remaining int64 // 0 means unlimited
	limited   bool

	cur manifest.ChunkMeta
	err error
}

// Next advances to the next chunk. It returns false at the end of the
// stream or on error/cancellation; check Err afterwards.
func (it *Iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.q.Scan.Limit > 0 && !it.limited {
		it.limited = true
	}
	for {
		if err := ctx.Err(); err != nil {
			it.err = err
			return false
		}
		if it.limited && it.remaining <= 0 {
			return false
		}
		if it.bi < len(it.buf) {
			meta := it.buf[it.bi]
			it.bi++
			if it.skip > 0 {
				it.skip--
				continue
			}
			it.cur = meta
			if it.limited {
				it.remaining--
			}
			return true
		}
		if it.pi >= len(it.partitions) {
			return false
		}
		it.buf = it.r.resolvePartition(it.q, it.partitions[it.pi])
		it.bi = 0
		it.pi++
	}
}

// Chunk returns the current chunk's manifest row.
func (it *Iterator) Chunk() manifest.ChunkMeta {
	return it.cur
}

// Err returns the terminal error, if any. A cancelled context surfaces
// here so interrupted streams end explicitly rather than truncating.
func (it *Iterator) Err() error {
	return it.err
}

// Collect drains the iterator. Intended for tests and small result sets;
// production callers should stream.
func (it *Iterator) Collect(ctx context.Context) ([]manifest.ChunkMeta, error) {
	var out []manifest.ChunkMeta
	for it.Next(ctx) {
		out = append(out, it.Chunk())
	}
	return out, it.Err()
}
