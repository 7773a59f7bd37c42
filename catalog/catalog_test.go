package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/core"
)

func newCatalog(t *testing.T) (*Catalog, *blobstore.MemoryStore) {
	t.Helper()
	blobs := blobstore.NewMemoryStore()
	c, err := Load(context.Background(), blobs, codec.Default)
	require.NoError(t, err)
	return c, blobs
}

func TestCreateDataset(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	d, err := c.CreateDataset(ctx, "droid-logs", core.EntryID{})
	require.NoError(t, err)
	assert.False(t, d.ID.IsZero())
	assert.Equal(t, "droid-logs", d.Name)
	assert.Equal(t, KindDataset, d.Kind)
	assert.False(t, d.CreatedAt.IsZero())
}

func TestNameUniqueness(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	_, err := c.CreateDataset(ctx, "droid-logs", core.EntryID{})
	require.NoError(t, err)

	// Name collisions are rejected across kinds, not just within one.
	_, err = c.CreateDataset(ctx, "droid-logs", core.EntryID{})
	require.ErrorIs(t, err, ErrDuplicateName)

	_, err = c.RegisterTable(ctx, "droid-logs", "lance", nil, "")
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestCreateDatasetWithExplicitID(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()
	id := core.NewEntryID()

	d, err := c.CreateDataset(ctx, "droid-logs", id)
	require.NoError(t, err)
	assert.Equal(t, id, d.ID)

	_, err = c.CreateDataset(ctx, "other-name", id)
	require.Error(t, err)
}

func TestUpdateDataset(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	d, err := c.CreateDataset(ctx, "droid-logs", core.EntryID{})
	require.NoError(t, err)
	other, err := c.CreateDataset(ctx, "taken", core.EntryID{})
	require.NoError(t, err)

	renamed, err := c.UpdateDataset(ctx, d.ID, UpdatableFields{Name: "fleet-logs"})
	require.NoError(t, err)
	assert.Equal(t, "fleet-logs", renamed.Name)

	// Old name is free again.
	_, err = c.CreateDataset(ctx, "droid-logs", core.EntryID{})
	require.NoError(t, err)

	// Renaming onto a taken name fails.
	_, err = c.UpdateDataset(ctx, d.ID, UpdatableFields{Name: other.Name})
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestDeleteReturnsKind(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	d, err := c.CreateDataset(ctx, "droid-logs", core.EntryID{})
	require.NoError(t, err)

	kind, err := c.Delete(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, KindDataset, kind)

	_, err = c.ReadDataset(ctx, d.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Delete(ctx, d.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFind(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	d1, err := c.CreateDataset(ctx, "alpha", core.EntryID{})
	require.NoError(t, err)
	_, err = c.CreateDataset(ctx, "beta", core.EntryID{})
	require.NoError(t, err)
	tbl, err := c.RegisterTable(ctx, "annotations", "lance", map[string]string{"uri": "s3://x"}, "id")
	require.NoError(t, err)

	t.Run("all", func(t *testing.T) {
		assert.Len(t, c.Find(ctx, Filter{}), 3)
	})

	t.Run("by name", func(t *testing.T) {
		name := "alpha"
		got := c.Find(ctx, Filter{Name: &name})
		require.Len(t, got, 1)
		assert.Equal(t, d1.ID, got[0].ID)
	})

	t.Run("by kind", func(t *testing.T) {
		kind := KindTable
		got := c.Find(ctx, Filter{Kind: &kind})
		require.Len(t, got, 1)
		assert.Equal(t, tbl.ID, got[0].ID)
	})

	t.Run("no match", func(t *testing.T) {
		name := "nope"
		assert.Empty(t, c.Find(ctx, Filter{Name: &name}))
	})
}

func TestPersistenceAcrossLoads(t *testing.T) {
	c, blobs := newCatalog(t)
	ctx := context.Background()

	d, err := c.CreateDataset(ctx, "droid-logs", core.EntryID{})
	require.NoError(t, err)

	reloaded, err := Load(ctx, blobs, codec.Default)
	require.NoError(t, err)

	got, err := reloaded.ReadDataset(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)

	// Name uniqueness survives the reload.
	_, err = reloaded.CreateDataset(ctx, "droid-logs", core.EntryID{})
	require.ErrorIs(t, err, ErrDuplicateName)
}
