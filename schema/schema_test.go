package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func desc(path, component string) ColumnDescriptor {
	return ColumnDescriptor{EntityPath: path, Archetype: "Points3D", Component: component}
}

func TestUnion(t *testing.T) {
	a := Schema{
		desc("/robot/arm", "positions"): TypeFloatList,
		desc("/robot/arm", "labels"):    TypeString,
	}
	b := Schema{
		desc("/robot/arm", "positions"): TypeFloatList,
		desc("/robot/cam", "blob"):      TypeBytes,
	}

	merged, err := Union(a, b)
	require.NoError(t, err)
	assert.Len(t, merged, 3)
	assert.Equal(t, TypeFloatList, merged[desc("/robot/arm", "positions")])
	assert.Equal(t, TypeBytes, merged[desc("/robot/cam", "blob")])
}

func TestUnionIdempotent(t *testing.T) {
	a := Schema{
		desc("/robot/arm", "positions"): TypeFloatList,
		desc("/robot/arm", "labels"):    TypeString,
	}

	once, err := Union(Schema{}, a)
	require.NoError(t, err)
	twice, err := Union(once, a)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, once.Columns(), twice.Columns())
}

func TestUnionConflict(t *testing.T) {
	a := Schema{desc("/robot/arm", "positions"): TypeFloatList}
	b := Schema{desc("/robot/arm", "positions"): TypeString}

	_, err := Union(a, b)
	require.Error(t, err)

	var inc *IncompatibleError
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, desc("/robot/arm", "positions"), inc.Desc)
	assert.Equal(t, TypeFloatList, inc.Existing)
	assert.Equal(t, TypeString, inc.Incoming)
}

func TestColumnsSorted(t *testing.T) {
	s := Schema{
		desc("/z", "c"): TypeInt,
		desc("/a", "b"): TypeFloat,
		desc("/a", "a"): TypeBool,
	}

	cols := s.Columns()
	require.Len(t, cols, 3)
	assert.Equal(t, "/a", cols[0].Desc.EntityPath)
	assert.Equal(t, "a", cols[0].Desc.Component)
	assert.Equal(t, "/z", cols[2].Desc.EntityPath)

	// Round trip through the serializable form.
	assert.Equal(t, s, FromColumns(cols))
}

func TestIsReserved(t *testing.T) {
	assert.True(t, desc(ReservedPrefix, "episode").IsReserved())
	assert.True(t, desc(ReservedPrefix+"/meta", "episode").IsReserved())
	assert.False(t, desc("/robot/arm", "positions").IsReserved())
}

func TestDisplay(t *testing.T) {
	d := desc("/robot/arm", "positions")
	assert.Equal(t, "Points3D:positions", d.Display())
	assert.Equal(t, "/robot/arm#Points3D:positions", d.String())
}
