// Package query compiles declarative queries (content filters plus
// latest-at/range temporal selection) into the ordered set of chunks needed
// to answer them.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/manifest"
	"github.com/hupe1980/lakecat/schema"
)

// ErrInvalidQuery is returned for conflicting filter combinations. The
// query is rejected synchronously, before any resolution work happens.
var ErrInvalidQuery = errors.New("invalid query")

// LatestAt selects, per partition, the most recent data at or before At on
// the given timeline. Partitions never blend: each is resolved independently
// and results stay tagged with their partition. An empty Timeline selects
// static data (no time association).
type LatestAt struct {
	Timeline core.Timeline `json:"timeline"`
	At       core.TimeInt  `json:"at"`
}

// Range selects all chunks whose time range on Timeline intersects the
// inclusive [Min, Max] interval.
type Range struct {
	Timeline core.Timeline  `json:"timeline"`
	Range    core.TimeRange `json:"range"`
}

// Include force-includes result columns regardless of what the content
// filters would otherwise select.
type Include struct {
	Schema           bool `json:"schema,omitempty"`
	ChunkIDs         bool `json:"chunk_ids,omitempty"`
	ByteOffsets      bool `json:"byte_offsets,omitempty"`
	EntityPaths      bool `json:"entity_paths,omitempty"`
	StaticIndexes    bool `json:"static_indexes,omitempty"`
	TemporalIndexes  bool `json:"temporal_indexes,omitempty"`
	ComponentIndexes bool `json:"component_indexes,omitempty"`
}

// ScanParams is the opaque passthrough handed to the underlying execution
// engine. The resolver never interprets it beyond Limit/Offset.
type ScanParams struct {
	Projection []string `json:"projection,omitempty"`
	Filter     string   `json:"filter,omitempty"`
	OrderBy    string   `json:"order_by,omitempty"`
	Limit      int64    `json:"limit,omitempty"`
	Offset     int64    `json:"offset,omitempty"`
	Explain    bool     `json:"explain,omitempty"`
}

// Query is a declarative chunk query.
//
// Content selection and temporal selection compose as: the union of the
// latest-at and range results, intersected with the partition, chunk,
// entity path and component filters. With neither temporal clause set,
// all static and temporal data matching the content filters is selected.
type Query struct {
	// Partitions restricts to the listed partitions; empty means all.
	Partitions []core.PartitionID `json:"partitions,omitempty"`
	// ChunkIDs intersects with the rest of the query ("if exists"): empty
	// adds no restriction, non-empty drops chunks outside the list.
	ChunkIDs []core.ChunkID `json:"chunk_ids,omitempty"`
	// SelectAllEntityPaths selects every entity path. Mutually exclusive
	// with a non-empty EntityPaths list.
	SelectAllEntityPaths bool     `json:"select_all_entity_paths,omitempty"`
	EntityPaths          []string `json:"entity_paths,omitempty"`
	// FuzzyComponent is a case-sensitive substring matched against each
	// column's composite "Archetype:Component" descriptor.
	FuzzyComponent string `json:"fuzzy_component,omitempty"`
	// IncludeReserved opts reserved recording-property paths into the
	// result; they are excluded by default.
	IncludeReserved bool `json:"include_reserved,omitempty"`

	LatestAt *LatestAt `json:"latest_at,omitempty"`
	Range    *Range    `json:"range,omitempty"`

	Include Include `json:"include,omitzero"`
	// ExcludeStatic and ExcludeTemporal drop whole data kinds. Setting
	// both yields an empty result, which is valid.
	ExcludeStatic   bool `json:"exclude_static,omitempty"`
	ExcludeTemporal bool `json:"exclude_temporal,omitempty"`

	Scan ScanParams `json:"scan,omitzero"`
}

// Validate rejects conflicting filter combinations.
func (q *Query) Validate() error {
	if q.SelectAllEntityPaths && len(q.EntityPaths) > 0 {
		return fmt.Errorf("%w: select_all_entity_paths with an explicit entity path list", ErrInvalidQuery)
	}
	if q.Range != nil {
		if q.Range.Timeline.IsStatic() {
			return fmt.Errorf("%w: range query requires a timeline", ErrInvalidQuery)
		}
		if q.Range.Range.Min > q.Range.Range.Max {
			return fmt.Errorf("%w: range start %d after end %d", ErrInvalidQuery, q.Range.Range.Min, q.Range.Range.Max)
		}
	}
	return nil
}

// matchesEntityPath reports whether the column passes entity-path selection.
func (q *Query) matchesEntityPath(d schema.ColumnDescriptor) bool {
	if d.IsReserved() {
		if q.IncludeReserved {
			return true
		}
		// Explicitly listing a reserved path opts it in.
		for _, p := range q.EntityPaths {
			if p == d.EntityPath {
				return true
			}
		}
		return false
	}
	if q.SelectAllEntityPaths || len(q.EntityPaths) == 0 {
		return true
	}
	for _, p := range q.EntityPaths {
		if p == d.EntityPath {
			return true
		}
	}
	return false
}

// matchesComponent applies the fuzzy component filter.
func (q *Query) matchesComponent(d schema.ColumnDescriptor) bool {
	if q.FuzzyComponent == "" {
		return true
	}
	return strings.Contains(d.Display(), q.FuzzyComponent)
}

// columnMatches reports whether one column passes all column-level filters.
func (q *Query) columnMatches(d schema.ColumnDescriptor) bool {
	return q.matchesEntityPath(d) && q.matchesComponent(d)
}

// chunkMatchesContent applies all non-temporal filters to a manifest row.
func (q *Query) chunkMatchesContent(meta *manifest.ChunkMeta) bool {
	if meta.IsStatic && q.ExcludeStatic {
		return false
	}
	if !meta.IsStatic && q.ExcludeTemporal {
		return false
	}
	if len(q.Partitions) > 0 {
		found := false
		for _, p := range q.Partitions {
			if p == meta.Partition {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.ChunkIDs) > 0 {
		found := false
		for _, id := range q.ChunkIDs {
			if id == meta.ChunkID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, col := range meta.Columns {
		if q.columnMatches(col.Desc) {
			return true
		}
	}
	return false
}
