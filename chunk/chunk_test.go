package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/schema"
)

func desc(path, component string) schema.ColumnDescriptor {
	return schema.ColumnDescriptor{EntityPath: path, Archetype: "Points3D", Component: component}
}

func temporalChunk(partition core.PartitionID, times ...core.TimeInt) *Chunk {
	values := make([]Value, len(times))
	for i, tm := range times {
		values[i] = Float(float64(tm))
	}
	return &Chunk{
		ID:        core.NewChunkID(),
		Partition: partition,
		Times:     []TimeColumn{{Timeline: "log_time", Times: times}},
		Columns:   []Column{{Desc: desc("/robot/arm", "positions"), Type: schema.TypeFloat, Values: values}},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, temporalChunk("rec-1", 1, 2, 3).Validate())
	})

	t.Run("missing partition", func(t *testing.T) {
		c := temporalChunk("rec-1", 1)
		c.Partition = ""
		require.Error(t, c.Validate())
	})

	t.Run("ragged columns", func(t *testing.T) {
		c := temporalChunk("rec-1", 1, 2)
		c.Columns = append(c.Columns, Column{
			Desc:   desc("/robot/cam", "blob"),
			Type:   schema.TypeBytes,
			Values: []Value{Bytes([]byte("x"))},
		})
		require.Error(t, c.Validate())
	})

	t.Run("cell type mismatch", func(t *testing.T) {
		c := temporalChunk("rec-1", 1, 2)
		c.Columns[0].Values[1] = String("oops")
		require.Error(t, c.Validate())
	})

	t.Run("duplicate descriptor", func(t *testing.T) {
		c := temporalChunk("rec-1", 1)
		c.Columns = append(c.Columns, c.Columns[0])
		require.Error(t, c.Validate())
	})

	t.Run("unnamed timeline", func(t *testing.T) {
		c := temporalChunk("rec-1", 1)
		c.Times[0].Timeline = ""
		require.Error(t, c.Validate())
	})

	t.Run("null cells allowed", func(t *testing.T) {
		c := temporalChunk("rec-1", 1, 2)
		c.Columns[0].Values[0] = Null()
		require.NoError(t, c.Validate())
	})
}

func TestTimeRange(t *testing.T) {
	c := temporalChunk("rec-1", 5, 2, 9)

	r, ok := c.TimeRange("log_time")
	require.True(t, ok)
	assert.Equal(t, core.TimeInt(2), r.Min)
	assert.Equal(t, core.TimeInt(9), r.Max)

	_, ok = c.TimeRange("frame")
	assert.False(t, ok)
}

func TestFrameRoundTrip(t *testing.T) {
	for _, cd := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
		t.Run(cd.Name(), func(t *testing.T) {
			c := temporalChunk("rec-1", 1, 2, 3)
			c.Columns = append(c.Columns, Column{
				Desc: desc("/robot/cam", "embedding"),
				Type: schema.TypeFloatList,
				Values: []Value{
					FloatList([]float32{1, 2}),
					Null(),
					FloatList([]float32{3, 4}),
				},
			})

			data, err := Encode(c, cd)
			require.NoError(t, err)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, c, got)

			// Encoding the decoded chunk reproduces the frame exactly.
			again, err := Encode(got, cd)
			require.NoError(t, err)
			assert.Equal(t, data, again)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not a chunk frame"))
	require.Error(t, err)

	var de *DecodeError
	assert.ErrorAs(t, err, &de)
}

func TestMerge(t *testing.T) {
	a := temporalChunk("rec-1", 1, 2)
	b := temporalChunk("rec-1", 3, 4, 5)

	merged, err := Merge([]*Chunk{a, b})
	require.NoError(t, err)
	require.NoError(t, merged.Validate())

	assert.Equal(t, 5, merged.NumRows())
	assert.Equal(t, a.Partition, merged.Partition)
	assert.NotEqual(t, a.ID, merged.ID)

	times, ok := merged.TimesFor("log_time")
	require.True(t, ok)
	assert.Equal(t, []core.TimeInt{1, 2, 3, 4, 5}, times)
}

func TestMergeRejectsMismatch(t *testing.T) {
	t.Run("different partitions", func(t *testing.T) {
		_, err := Merge([]*Chunk{temporalChunk("rec-1", 1), temporalChunk("rec-2", 2)})
		require.Error(t, err)
	})

	t.Run("static chunk", func(t *testing.T) {
		static := &Chunk{
			ID:        core.NewChunkID(),
			Partition: "rec-1",
			Columns:   []Column{{Desc: desc("/robot", "name"), Type: schema.TypeString, Values: []Value{String("r2d2")}}},
		}
		_, err := Merge([]*Chunk{static})
		require.Error(t, err)
	})

	t.Run("different columns", func(t *testing.T) {
		a := temporalChunk("rec-1", 1)
		b := temporalChunk("rec-1", 2)
		b.Columns[0].Desc = desc("/other", "positions")
		_, err := Merge([]*Chunk{a, b})
		require.Error(t, err)
	})
}

func TestValueInstances(t *testing.T) {
	batch := List(Float(1), Float(2), Float(3))
	assert.Len(t, batch.Instances(), 3)

	single := Float(7)
	inst := single.Instances()
	require.Len(t, inst, 1)
	assert.Equal(t, single, inst[0])
}
