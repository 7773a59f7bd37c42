package chunk

import (
	"fmt"
	"sort"

	"github.com/hupe1980/lakecat/core"
)

// Merge concatenates chunks of identical shape (same partition, columns and
// timelines) into one new chunk with a fresh id. Row order follows the
// input order, so callers pass chunks in registration order. Used by
// compaction; static chunks cannot be merged because latest-at resolution
// keys on their per-chunk identity.
func Merge(chunks []*Chunk) (*Chunk, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("merge of zero chunks")
	}
	first := chunks[0]
	if first.IsStatic() {
		return nil, fmt.Errorf("chunk %s is static and cannot be merged", first.ID)
	}

	out := &Chunk{
		ID:        core.NewChunkID(),
		Partition: first.Partition,
		Layer:     first.Layer,
	}
	out.Times = make([]TimeColumn, len(first.Times))
	for i, tc := range first.Times {
		out.Times[i] = TimeColumn{Timeline: tc.Timeline}
	}
	out.Columns = make([]Column, len(first.Columns))
	for i, col := range first.Columns {
		out.Columns[i] = Column{Desc: col.Desc, Type: col.Type}
	}
	// Column order may differ between chunks; merge by descriptor.
	sort.Slice(out.Columns, func(i, j int) bool {
		return out.Columns[i].Desc.String() < out.Columns[j].Desc.String()
	})

	for _, c := range chunks {
		if c.Partition != first.Partition {
			return nil, fmt.Errorf("chunk %s belongs to partition %s, want %s", c.ID, c.Partition, first.Partition)
		}
		if len(c.Columns) != len(out.Columns) || len(c.Times) != len(out.Times) {
			return nil, fmt.Errorf("chunk %s has a different shape than %s", c.ID, first.ID)
		}
		for i := range out.Times {
			times, ok := c.TimesFor(out.Times[i].Timeline)
			if !ok {
				return nil, fmt.Errorf("chunk %s is missing timeline %q", c.ID, out.Times[i].Timeline)
			}
			out.Times[i].Times = append(out.Times[i].Times, times...)
		}
		for i := range out.Columns {
			col, ok := c.ColumnByDesc(out.Columns[i].Desc)
			if !ok {
				return nil, fmt.Errorf("chunk %s is missing column %s", c.ID, out.Columns[i].Desc)
			}
			if col.Type != out.Columns[i].Type {
				return nil, fmt.Errorf("chunk %s column %s has type %s, want %s", c.ID, col.Desc, col.Type, out.Columns[i].Type)
			}
			out.Columns[i].Values = append(out.Columns[i].Values, col.Values...)
		}
	}
	return out, nil
}
