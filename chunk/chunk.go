package chunk

import (
	"fmt"

	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/schema"
)

// TimeColumn carries one timeline's values for every row of a chunk.
type TimeColumn struct {
	Timeline core.Timeline  `json:"timeline"`
	Times    []core.TimeInt `json:"times"`
}

// Column is one data column of a chunk: its descriptor, physical type and a
// value per row. Cells may be null; a null cell means the column logged
// nothing at that row's timepoint.
type Column struct {
	Desc   schema.ColumnDescriptor `json:"desc"`
	Type   schema.PhysicalType     `json:"type"`
	Values []Value                 `json:"values"`
}

// Chunk is the atomic immutable unit of logged data: a columnar batch of
// rows for one or more (entity path, component) pairs plus the timeline
// columns indexing them. A chunk with no timeline columns is static.
//
// Chunks are never mutated after being written; updates happen by writing
// new chunks and re-pointing manifests at them.
type Chunk struct {
	ID        core.ChunkID     `json:"id"`
	Partition core.PartitionID `json:"partition"`
	Layer     string           `json:"layer"`
	Times     []TimeColumn     `json:"times,omitempty"`
	Columns   []Column         `json:"columns"`
}

// NumRows returns the number of rows in the chunk.
func (c *Chunk) NumRows() int {
	if len(c.Columns) == 0 {
		return 0
	}
	return len(c.Columns[0].Values)
}

// IsStatic reports whether the chunk carries static (time-less) data.
func (c *Chunk) IsStatic() bool {
	return len(c.Times) == 0
}

// Schema returns the chunk's schema: one entry per data column.
func (c *Chunk) Schema() schema.Schema {
	s := make(schema.Schema, len(c.Columns))
	for _, col := range c.Columns {
		s[col.Desc] = col.Type
	}
	return s
}

// TimeRange returns the inclusive min/max of the given timeline over the
// chunk's rows, and false if the chunk does not carry that timeline.
func (c *Chunk) TimeRange(tl core.Timeline) (core.TimeRange, bool) {
	for _, tc := range c.Times {
		if tc.Timeline != tl || len(tc.Times) == 0 {
			continue
		}
		r := core.TimeRange{Min: tc.Times[0], Max: tc.Times[0]}
		for _, t := range tc.Times[1:] {
			if t < r.Min {
				r.Min = t
			}
			if t > r.Max {
				r.Max = t
			}
		}
		return r, true
	}
	return core.TimeRange{}, false
}

// Validate checks structural invariants: equal column lengths, matching cell
// kinds, no duplicate descriptors.
func (c *Chunk) Validate() error {
	if c.ID.IsZero() {
		return fmt.Errorf("chunk has no id")
	}
	if c.Partition == "" {
		return fmt.Errorf("chunk %s has no partition", c.ID)
	}
	rows := c.NumRows()
	seen := make(map[schema.ColumnDescriptor]struct{}, len(c.Columns))
	for _, col := range c.Columns {
		if _, dup := seen[col.Desc]; dup {
			return fmt.Errorf("chunk %s: duplicate column %s", c.ID, col.Desc)
		}
		seen[col.Desc] = struct{}{}
		if len(col.Values) != rows {
			return fmt.Errorf("chunk %s: column %s has %d rows, want %d", c.ID, col.Desc, len(col.Values), rows)
		}
		for i, v := range col.Values {
			if v.IsNull() {
				continue
			}
			if got := v.PhysicalType(); got != col.Type {
				return fmt.Errorf("chunk %s: column %s row %d has type %s, want %s", c.ID, col.Desc, i, got, col.Type)
			}
		}
	}
	for _, tc := range c.Times {
		if tc.Timeline.IsStatic() {
			return fmt.Errorf("chunk %s: time column with empty timeline name", c.ID)
		}
		if len(tc.Times) != rows {
			return fmt.Errorf("chunk %s: timeline %q has %d rows, want %d", c.ID, tc.Timeline, len(tc.Times), rows)
		}
	}
	return nil
}

// ColumnByDesc returns the column with the given descriptor.
func (c *Chunk) ColumnByDesc(d schema.ColumnDescriptor) (*Column, bool) {
	for i := range c.Columns {
		if c.Columns[i].Desc == d {
			return &c.Columns[i], true
		}
	}
	return nil, false
}

// TimesFor returns the time column for the given timeline.
func (c *Chunk) TimesFor(tl core.Timeline) ([]core.TimeInt, bool) {
	for _, tc := range c.Times {
		if tc.Timeline == tl {
			return tc.Times, true
		}
	}
	return nil, false
}
