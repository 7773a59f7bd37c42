package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/query"
	"github.com/hupe1980/lakecat/schema"
)

// Partition table column names. The partition table is derived from the
// partition manifests on every scan; it is never stored.
const (
	ColPartitionID   = "partition_id"
	ColLayerNames    = "layer_names"
	ColNumChunks     = "num_chunks"
	ColNumRows       = "num_rows"
	ColSizeBytes     = "size_bytes"
	ColLastUpdatedAt = "last_updated_at"
)

// partitionTableColumns is the table's column order.
var partitionTableColumns = []struct {
	name string
	typ  schema.PhysicalType
}{
	{ColPartitionID, schema.TypeString},
	{ColLayerNames, schema.TypeString},
	{ColNumChunks, schema.TypeInt},
	{ColNumRows, schema.TypeInt},
	{ColSizeBytes, schema.TypeInt},
	{ColLastUpdatedAt, schema.TypeInt},
}

// TableColumn describes one partition-table column.
type TableColumn struct {
	Name string
	Type schema.PhysicalType
}

// Row is one partition-table row keyed by column name.
type Row map[string]chunk.Value

// PartitionTableSchema returns the partition table's columns in order.
func (d *Dataset) PartitionTableSchema() []TableColumn {
	out := make([]TableColumn, len(partitionTableColumns))
	for i, c := range partitionTableColumns {
		out[i] = TableColumn{Name: c.name, Type: c.typ}
	}
	return out
}

// ScanPartitionTable derives one row per partition and applies the scan
// parameters: an optional "column=value" equality filter, ordering,
// offset/limit and column projection.
func (d *Dataset) ScanPartitionTable(params query.ScanParams) ([]Row, error) {
	st := d.snapshot()

	rows := make([]Row, 0, len(st.Partitions))
	for _, pid := range st.PartitionIDs() {
		pm := st.Partitions[pid]
		var bytes, numRows int64
		for _, ls := range pm.Layers {
			for _, ref := range ls.Chunks {
				bytes += int64(ref.ByteSize)
			}
		}
		for _, meta := range st.Chunks.RowsForPartition(pid) {
			numRows += int64(meta.RowCount)
		}
		rows = append(rows, Row{
			ColPartitionID:   chunk.String(string(pid)),
			ColLayerNames:    chunk.String(strings.Join(pm.LayerNames(), ",")),
			ColNumChunks:     chunk.Int(int64(pm.NumChunks())),
			ColNumRows:       chunk.Int(numRows),
			ColSizeBytes:     chunk.Int(bytes),
			ColLastUpdatedAt: chunk.Int(pm.UpdatedAt.UnixNano()),
		})
	}

	if params.Filter != "" {
		name, want, ok := strings.Cut(params.Filter, "=")
		if !ok {
			return nil, fmt.Errorf("%w: filter %q is not column=value", query.ErrInvalidQuery, params.Filter)
		}
		filtered := rows[:0]
		for _, row := range rows {
			v, ok := row[name]
			if !ok {
				return nil, fmt.Errorf("%w: unknown filter column %q", query.ErrInvalidQuery, name)
			}
			if formatValue(v) == want {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}

	if params.OrderBy != "" {
		name := params.OrderBy
		if _, ok := columnType(name); !ok {
			return nil, fmt.Errorf("%w: unknown order column %q", query.ErrInvalidQuery, name)
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return lessValue(rows[i][name], rows[j][name])
		})
	}

	if params.Offset > 0 {
		if params.Offset >= int64(len(rows)) {
			rows = nil
		} else {
			rows = rows[params.Offset:]
		}
	}
	if params.Limit > 0 && int64(len(rows)) > params.Limit {
		rows = rows[:params.Limit]
	}

	if len(params.Projection) > 0 {
		for _, name := range params.Projection {
			if _, ok := columnType(name); !ok {
				return nil, fmt.Errorf("%w: unknown projected column %q", query.ErrInvalidQuery, name)
			}
		}
		projected := make([]Row, len(rows))
		for i, row := range rows {
			p := make(Row, len(params.Projection))
			for _, name := range params.Projection {
				p[name] = row[name]
			}
			projected[i] = p
		}
		rows = projected
	}
	return rows, nil
}

func columnType(name string) (schema.PhysicalType, bool) {
	for _, c := range partitionTableColumns {
		if c.name == name {
			return c.typ, true
		}
	}
	return schema.TypeInvalid, false
}

func formatValue(v chunk.Value) string {
	switch v.Kind {
	case chunk.KindString:
		return v.S
	case chunk.KindInt:
		return fmt.Sprintf("%d", v.I64)
	case chunk.KindFloat:
		return fmt.Sprintf("%g", v.F64)
	case chunk.KindBool:
		return fmt.Sprintf("%t", v.B)
	default:
		return ""
	}
}

func lessValue(a, b chunk.Value) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	switch a.Kind {
	case chunk.KindString:
		return a.S < b.S
	case chunk.KindInt:
		return a.I64 < b.I64
	case chunk.KindFloat:
		return a.F64 < b.F64
	case chunk.KindBool:
		return !a.B && b.B
	default:
		return false
	}
}
