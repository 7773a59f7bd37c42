package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/manifest"
	"github.com/hupe1980/lakecat/schema"
)

func desc(path, component string) schema.ColumnDescriptor {
	return schema.ColumnDescriptor{EntityPath: path, Archetype: "Points3D", Component: component}
}

var seqCounter uint64

func temporalMeta(p core.PartitionID, tl core.Timeline, min, max core.TimeInt, cols ...schema.ColumnDescriptor) manifest.ChunkMeta {
	seqCounter++
	if len(cols) == 0 {
		cols = []schema.ColumnDescriptor{desc("/robot/arm", "positions")}
	}
	columns := make([]schema.Column, len(cols))
	for i, d := range cols {
		columns[i] = schema.Column{Desc: d, Type: schema.TypeFloat}
	}
	return manifest.ChunkMeta{
		ChunkID:   core.NewChunkID(),
		Partition: p,
		Layer:     core.DefaultLayer,
		RowCount:  uint64(max - min + 1),
		Timelines: map[core.Timeline]core.TimeRange{tl: {Min: min, Max: max}},
		Columns:   columns,
		Seq:       seqCounter,
	}
}

func staticMeta(p core.PartitionID, cols ...schema.ColumnDescriptor) manifest.ChunkMeta {
	seqCounter++
	if len(cols) == 0 {
		cols = []schema.ColumnDescriptor{desc("/robot", "name")}
	}
	columns := make([]schema.Column, len(cols))
	for i, d := range cols {
		columns[i] = schema.Column{Desc: d, Type: schema.TypeString}
	}
	return manifest.ChunkMeta{
		ChunkID:   core.NewChunkID(),
		Partition: p,
		Layer:     core.DefaultLayer,
		RowCount:  1,
		IsStatic:  true,
		Columns:   columns,
		Seq:       seqCounter,
	}
}

func manifestOf(rows ...manifest.ChunkMeta) *manifest.ChunkManifest {
	return &manifest.ChunkManifest{Dataset: core.NewEntryID(), Rows: rows}
}

func collect(t *testing.T, m *manifest.ChunkManifest, q Query) []manifest.ChunkMeta {
	t.Helper()
	it, err := NewResolver(m).Resolve(&q)
	require.NoError(t, err)
	out, err := it.Collect(context.Background())
	require.NoError(t, err)
	return out
}

func ids(rows []manifest.ChunkMeta) []core.ChunkID {
	out := make([]core.ChunkID, len(rows))
	for i, r := range rows {
		out[i] = r.ChunkID
	}
	return out
}

func TestValidateRejectsConflicts(t *testing.T) {
	r := NewResolver(manifestOf())

	t.Run("select all with explicit paths", func(t *testing.T) {
		_, err := r.Resolve(&Query{
			SelectAllEntityPaths: true,
			EntityPaths:          []string{"/robot/arm"},
		})
		require.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("range without timeline", func(t *testing.T) {
		_, err := r.Resolve(&Query{
			Range: &Range{Range: core.TimeRange{Min: 0, Max: 10}},
		})
		require.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := r.Resolve(&Query{
			Range: &Range{Timeline: "log_time", Range: core.TimeRange{Min: 10, Max: 0}},
		})
		require.ErrorIs(t, err, ErrInvalidQuery)
	})
}

func TestLatestAtPartitionIsolation(t *testing.T) {
	// Partition A logged at t=1,2,3; partition B at t=2,4. A latest-at
	// query at t=3 must pick A's t=3 chunk and B's t=2 chunk; B never sees
	// A's data.
	a1 := temporalMeta("A", "log_time", 1, 1)
	a2 := temporalMeta("A", "log_time", 2, 2)
	a3 := temporalMeta("A", "log_time", 3, 3)
	b2 := temporalMeta("B", "log_time", 2, 2)
	b4 := temporalMeta("B", "log_time", 4, 4)

	got := collect(t, manifestOf(a1, a2, a3, b2, b4), Query{
		SelectAllEntityPaths: true,
		LatestAt:             &LatestAt{Timeline: "log_time", At: 3},
	})

	require.Len(t, got, 2)
	assert.ElementsMatch(t, []core.ChunkID{a3.ChunkID, b2.ChunkID}, ids(got))
}

func TestLatestAtSeqTieBreak(t *testing.T) {
	// Two chunks cover the same effective time; the most recently
	// registered one wins.
	first := temporalMeta("A", "log_time", 5, 5)
	second := temporalMeta("A", "log_time", 5, 5)

	got := collect(t, manifestOf(first, second), Query{
		SelectAllEntityPaths: true,
		LatestAt:             &LatestAt{Timeline: "log_time", At: 10},
	})

	require.Len(t, got, 1)
	assert.Equal(t, second.ChunkID, got[0].ChunkID)
}

func TestLatestAtIncludesStatic(t *testing.T) {
	st := staticMeta("A")
	tm := temporalMeta("A", "log_time", 1, 3)

	got := collect(t, manifestOf(st, tm), Query{
		SelectAllEntityPaths: true,
		LatestAt:             &LatestAt{Timeline: "log_time", At: 2},
	})

	require.Len(t, got, 2)
	// Static chunks order before temporal ones.
	assert.Equal(t, st.ChunkID, got[0].ChunkID)
	assert.Equal(t, tm.ChunkID, got[1].ChunkID)
}

func TestLatestAtPerColumnWinners(t *testing.T) {
	// Distinct entities resolve independently: an older chunk stays
	// selected for the column the newer chunk does not carry.
	arm := temporalMeta("A", "log_time", 1, 1, desc("/robot/arm", "positions"))
	cam := temporalMeta("A", "log_time", 3, 3, desc("/robot/cam", "blob"))

	got := collect(t, manifestOf(arm, cam), Query{
		SelectAllEntityPaths: true,
		LatestAt:             &LatestAt{Timeline: "log_time", At: 5},
	})

	assert.ElementsMatch(t, []core.ChunkID{arm.ChunkID, cam.ChunkID}, ids(got))
}

func TestRangeSelectsIntersecting(t *testing.T) {
	before := temporalMeta("A", "log_time", 0, 4)
	inside := temporalMeta("A", "log_time", 5, 7)
	after := temporalMeta("A", "log_time", 11, 20)

	got := collect(t, manifestOf(before, inside, after), Query{
		SelectAllEntityPaths: true,
		Range:                &Range{Timeline: "log_time", Range: core.TimeRange{Min: 5, Max: 10}},
	})

	require.Len(t, got, 1)
	assert.Equal(t, inside.ChunkID, got[0].ChunkID)
}

func TestLatestAtUnionRange(t *testing.T) {
	old := temporalMeta("A", "log_time", 1, 1)
	ranged := temporalMeta("A", "log_time", 10, 12)

	// Latest-at at t=2 picks old; the range picks ranged; the result is
	// their union.
	got := collect(t, manifestOf(old, ranged), Query{
		SelectAllEntityPaths: true,
		LatestAt:             &LatestAt{Timeline: "log_time", At: 2},
		Range:                &Range{Timeline: "log_time", Range: core.TimeRange{Min: 9, Max: 15}},
	})

	assert.ElementsMatch(t, []core.ChunkID{old.ChunkID, ranged.ChunkID}, ids(got))
}

func TestExcludeBothKindsIsEmptyAndValid(t *testing.T) {
	got := collect(t, manifestOf(staticMeta("A"), temporalMeta("A", "log_time", 1, 2)), Query{
		SelectAllEntityPaths: true,
		ExcludeStatic:        true,
		ExcludeTemporal:      true,
	})
	assert.Empty(t, got)
}

func TestChunkIDIntersection(t *testing.T) {
	a := temporalMeta("A", "log_time", 1, 1)
	b := temporalMeta("A", "log_time", 2, 2)

	t.Run("restricts", func(t *testing.T) {
		got := collect(t, manifestOf(a, b), Query{
			SelectAllEntityPaths: true,
			ChunkIDs:             []core.ChunkID{b.ChunkID},
		})
		require.Len(t, got, 1)
		assert.Equal(t, b.ChunkID, got[0].ChunkID)
	})

	t.Run("unknown id drops silently", func(t *testing.T) {
		got := collect(t, manifestOf(a, b), Query{
			SelectAllEntityPaths: true,
			ChunkIDs:             []core.ChunkID{core.NewChunkID()},
		})
		assert.Empty(t, got)
	})
}

func TestReservedPathsExcludedByDefault(t *testing.T) {
	props := staticMeta("A", desc(schema.ReservedPrefix, "episode"))
	data := temporalMeta("A", "log_time", 1, 1)

	t.Run("default excludes", func(t *testing.T) {
		got := collect(t, manifestOf(props, data), Query{SelectAllEntityPaths: true})
		require.Len(t, got, 1)
		assert.Equal(t, data.ChunkID, got[0].ChunkID)
	})

	t.Run("opt in includes", func(t *testing.T) {
		got := collect(t, manifestOf(props, data), Query{
			SelectAllEntityPaths: true,
			IncludeReserved:      true,
		})
		assert.Len(t, got, 2)
	})

	t.Run("explicit listing opts in", func(t *testing.T) {
		got := collect(t, manifestOf(props, data), Query{
			EntityPaths: []string{schema.ReservedPrefix},
		})
		require.Len(t, got, 1)
		assert.Equal(t, props.ChunkID, got[0].ChunkID)
	})
}

func TestFuzzyComponent(t *testing.T) {
	arm := temporalMeta("A", "log_time", 1, 1, desc("/robot/arm", "positions"))
	cam := temporalMeta("A", "log_time", 2, 2, desc("/robot/cam", "blob"))

	t.Run("substring matches", func(t *testing.T) {
		got := collect(t, manifestOf(arm, cam), Query{
			SelectAllEntityPaths: true,
			FuzzyComponent:       "pos",
		})
		require.Len(t, got, 1)
		assert.Equal(t, arm.ChunkID, got[0].ChunkID)
	})

	t.Run("case sensitive", func(t *testing.T) {
		got := collect(t, manifestOf(arm, cam), Query{
			SelectAllEntityPaths: true,
			FuzzyComponent:       "POS",
		})
		assert.Empty(t, got)
	})

	t.Run("matches archetype part", func(t *testing.T) {
		got := collect(t, manifestOf(arm, cam), Query{
			SelectAllEntityPaths: true,
			FuzzyComponent:       "Points3D:",
		})
		assert.Len(t, got, 2)
	})
}

func TestScanLimitOffset(t *testing.T) {
	a := temporalMeta("A", "log_time", 1, 1)
	b := temporalMeta("A", "log_time", 2, 2)
	c := temporalMeta("A", "log_time", 3, 3)

	got := collect(t, manifestOf(a, b, c), Query{
		SelectAllEntityPaths: true,
		Scan:                 ScanParams{Offset: 1, Limit: 1},
	})

	require.Len(t, got, 1)
	assert.Equal(t, b.ChunkID, got[0].ChunkID)
}

func TestIteratorCancellation(t *testing.T) {
	m := manifestOf(temporalMeta("A", "log_time", 1, 1))
	it, err := NewResolver(m).Resolve(&Query{SelectAllEntityPaths: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, it.Next(ctx))
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func TestDeterministicOrder(t *testing.T) {
	st := staticMeta("A")
	t1 := temporalMeta("A", "log_time", 3, 3)
	t2 := temporalMeta("A", "log_time", 1, 1)

	q := Query{SelectAllEntityPaths: true}
	first := collect(t, manifestOf(st, t1, t2), q)
	second := collect(t, manifestOf(st, t1, t2), q)

	require.Equal(t, ids(first), ids(second))
	// Static first, then ascending time.
	assert.Equal(t, st.ChunkID, first[0].ChunkID)
	assert.Equal(t, t2.ChunkID, first[1].ChunkID)
	assert.Equal(t, t1.ChunkID, first[2].ChunkID)
}
