package lakecat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/catalog"
	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/dataset"
	"github.com/hupe1980/lakecat/index"
	"github.com/hupe1980/lakecat/manifest"
	"github.com/hupe1980/lakecat/query"
	"github.com/hupe1980/lakecat/testutil"
)

func newService(t *testing.T) (*Service, *blobstore.MemoryStore) {
	t.Helper()
	blobs := blobstore.NewMemoryStore()
	svc, err := Open(context.Background(), blobs, WithLogger(NoopLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, blobs
}

func stageRecording(t *testing.T, blobs blobstore.BlobStore, url string, partition core.PartitionID, chunks ...*chunk.Chunk) {
	t.Helper()
	opener := dataset.NewBlobOpener(blobs, codec.Default)
	require.NoError(t, opener.WriteRecording(context.Background(), url, partition, chunks...))
}

func TestCatalogEntries(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	e, err := svc.CreateDatasetEntry(ctx, "drive-logs", core.EntryID{})
	require.NoError(t, err)
	assert.NotEqual(t, core.EntryID{}, e.ID)
	assert.Equal(t, catalog.KindDataset, e.Kind)

	t.Run("names are unique", func(t *testing.T) {
		_, err := svc.CreateDatasetEntry(ctx, "drive-logs", core.EntryID{})
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.ReadDatasetEntry(ctx, core.NewEntryID())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("rename", func(t *testing.T) {
		got, err := svc.UpdateDatasetEntry(ctx, e.ID, catalog.UpdatableFields{Name: "drive-logs-v2"})
		require.NoError(t, err)
		assert.Equal(t, "drive-logs-v2", got.Name)
	})

	t.Run("find by kind", func(t *testing.T) {
		kind := catalog.KindDataset
		entries, err := svc.FindEntries(ctx, catalog.Filter{Kind: &kind})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, e.ID, entries[0].ID)
	})
}

func TestEndToEnd(t *testing.T) {
	svc, blobs := newService(t)
	ctx := context.Background()

	posDesc := testutil.Desc("/robot/arm", "positions")
	capDesc := testutil.Desc("/robot/cam", "caption")

	e, err := svc.CreateDatasetEntry(ctx, "drive-logs", core.EntryID{})
	require.NoError(t, err)

	stageRecording(t, blobs, "recordings/rec-1.bin", "rec-1",
		testutil.TemporalChunk("rec-1", "log_time", posDesc, 1, 2, 3),
		testutil.TextChunk("rec-1", "log_time", capDesc,
			[]core.TimeInt{1, 2}, []string{"pedestrian crossing", "empty street"}))
	stageRecording(t, blobs, "recordings/rec-2.bin", "rec-2",
		testutil.TemporalChunk("rec-2", "log_time", posDesc, 5))

	results, err := svc.RegisterWithDataset(ctx, e.ID, []dataset.DataSource{
		{StorageURL: "recordings/rec-1.bin"},
		{StorageURL: "recordings/rec-2.bin"},
	}, dataset.PolicyError)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].NumChunks)
	assert.Equal(t, 1, results[1].NumChunks)

	t.Run("schema", func(t *testing.T) {
		sc, err := svc.GetDatasetSchema(ctx, e.ID)
		require.NoError(t, err)
		assert.Contains(t, sc, posDesc)
		assert.Contains(t, sc, capDesc)
	})

	t.Run("query streams chunks", func(t *testing.T) {
		stream, err := svc.GetChunks(ctx, e.ID, query.Query{SelectAllEntityPaths: true})
		require.NoError(t, err)
		var n int
		for stream.Next(ctx) {
			n++
		}
		require.NoError(t, stream.Err())
		assert.Equal(t, 3, n)
	})

	t.Run("latest-at", func(t *testing.T) {
		it, err := svc.QueryDataset(ctx, e.ID, query.Query{
			SelectAllEntityPaths: true,
			Partitions:           []core.PartitionID{"rec-1"},
			LatestAt:             &query.LatestAt{Timeline: "log_time", At: 2},
		})
		require.NoError(t, err)
		var ids []core.ChunkID
		for it.Next(ctx) {
			ids = append(ids, it.Chunk().ChunkID)
		}
		require.NoError(t, it.Err())
		// One winner per column: the positions chunk and the caption chunk.
		assert.Len(t, ids, 2)
	})

	t.Run("selector conflict is rejected", func(t *testing.T) {
		_, err := svc.QueryDataset(ctx, e.ID, query.Query{
			SelectAllEntityPaths: true,
			EntityPaths:          []string{"/robot/arm"},
		})
		require.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("partition table", func(t *testing.T) {
		cols, err := svc.GetPartitionTableSchema(ctx, e.ID)
		require.NoError(t, err)
		require.NotEmpty(t, cols)

		rows, err := svc.ScanPartitionTable(ctx, e.ID, query.ScanParams{OrderBy: dataset.ColPartitionID})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "rec-1", rows[0][dataset.ColPartitionID].S)
		assert.Equal(t, "rec-2", rows[1][dataset.ColPartitionID].S)
	})

	t.Run("manifests", func(t *testing.T) {
		pm, err := svc.FetchPartitionManifest(ctx, e.ID, "rec-1")
		require.NoError(t, err)
		assert.Equal(t, 2, pm.NumChunks())

		cm, err := svc.FetchChunkManifest(ctx, e.ID, "")
		require.NoError(t, err)
		assert.Len(t, cm.Rows, 3)

		_, err = svc.FetchPartitionManifest(ctx, e.ID, "rec-9")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("index search", func(t *testing.T) {
		cfg := index.Config{Kind: index.KindInverted, Column: capDesc, Timeline: "log_time"}
		jobID, err := svc.CreateIndex(ctx, e.ID, cfg, dataset.PolicyError)
		require.NoError(t, err)

		st, err := svc.WaitJob(ctx, jobID)
		require.NoError(t, err)
		require.Equal(t, dataset.JobDone, st.State)

		infos, err := svc.ListIndexes(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, infos, 1)
		assert.Equal(t, index.StateReady, infos[0].State)

		res, err := svc.SearchDataset(ctx, e.ID, cfg.Name(), index.Payload{Text: "pedestrian"}, index.QueryProps{})
		require.NoError(t, err)
		require.Len(t, res.Hits, 1)
		assert.Equal(t, core.PartitionID("rec-1"), res.Hits[0].Partition)

		cm, err := svc.FetchChunkManifest(ctx, e.ID, cfg.Name())
		require.NoError(t, err)
		assert.Len(t, cm.Rows, 1)
	})

	t.Run("schema manifest", func(t *testing.T) {
		cols, err := svc.FetchSchemaManifest(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, cols, 2)
		assert.Equal(t, posDesc, cols[0].Desc)
		assert.Equal(t, capDesc, cols[1].Desc)
	})

	t.Run("maintenance", func(t *testing.T) {
		report, err := svc.DoMaintenance(ctx, e.ID, dataset.MaintenanceOptions{Compact: true})
		require.NoError(t, err)
		assert.NotEmpty(t, report.String())
	})

	t.Run("background maintenance", func(t *testing.T) {
		jobID, err := svc.StartMaintenance(ctx, e.ID, dataset.MaintenanceOptions{Compact: true})
		require.NoError(t, err)
		st, err := svc.WaitJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, dataset.JobDone, st.State)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, svc.DeleteEntry(ctx, e.ID))

		_, err := svc.ReadDatasetEntry(ctx, e.ID)
		require.ErrorIs(t, err, ErrNotFound)

		names, err := blobs.List(ctx, manifest.Prefix(e.ID))
		require.NoError(t, err)
		assert.Empty(t, names)
	})
}

func TestStartRegistration(t *testing.T) {
	svc, blobs := newService(t)
	ctx := context.Background()
	desc := testutil.Desc("/robot/arm", "positions")

	e, err := svc.CreateDatasetEntry(ctx, "drive-logs", core.EntryID{})
	require.NoError(t, err)

	stageRecording(t, blobs, "recordings/rec-1.bin", "rec-1",
		testutil.TemporalChunk("rec-1", "log_time", desc, 1, 2))

	jobID, err := svc.StartRegistration(ctx, e.ID, []dataset.DataSource{
		{StorageURL: "recordings/rec-1.bin"},
	}, dataset.PolicyError)
	require.NoError(t, err)

	st, err := svc.WaitJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, dataset.JobDone, st.State)

	pm, err := svc.FetchPartitionManifest(ctx, e.ID, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, pm.NumChunks())

	t.Run("failure lands on the job status", func(t *testing.T) {
		jobID, err := svc.StartRegistration(ctx, e.ID, []dataset.DataSource{
			{StorageURL: "recordings/missing.bin"},
		}, dataset.PolicyError)
		require.NoError(t, err)

		st, err := svc.WaitJob(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, dataset.JobFailed, st.State)
		assert.Error(t, st.Err)
	})
}

func TestWriteChunksSchemaConflict(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	desc := testutil.Desc("/robot/arm", "positions")

	e, err := svc.CreateDatasetEntry(ctx, "drive-logs", core.EntryID{})
	require.NoError(t, err)

	require.NoError(t, svc.WriteChunks(ctx, e.ID, "", []*chunk.Chunk{
		testutil.TemporalChunk("rec-1", "log_time", desc, 1),
	}))

	err = svc.WriteChunks(ctx, e.ID, "", []*chunk.Chunk{
		testutil.TextChunk("rec-2", "log_time", desc, []core.TimeInt{1}, []string{"oops"}),
	})
	var inc *ErrSchemaIncompatible
	require.ErrorAs(t, err, &inc)
	assert.Equal(t, desc, inc.Column)
	assert.Error(t, errors.Unwrap(inc))
}

func TestTableEntries(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	te, err := svc.RegisterTable(ctx, "runs", "lance", map[string]string{"url": "s3://tables/runs"}, "run_id")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindTable, te.Kind)

	require.NoError(t, svc.AppendTableRows(ctx, te.ID, []catalog.Row{
		{"run_id": chunk.String("r1"), "score": chunk.Float(0.4)},
	}))
	require.NoError(t, svc.UpsertTableRows(ctx, te.ID, []catalog.Row{
		{"run_id": chunk.String("r1"), "score": chunk.Float(0.9)},
	}))

	got, err := svc.ReadTableEntry(ctx, te.ID)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, 0.9, got.Rows[0]["score"].F64)

	_, err = svc.ReadTableEntry(ctx, core.NewEntryID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestJobStatusUnknown(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.JobStatus("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServicePersistsAcrossOpens(t *testing.T) {
	blobs := blobstore.NewMemoryStore()
	ctx := context.Background()
	desc := testutil.Desc("/robot/arm", "positions")

	svc, err := Open(ctx, blobs, WithLogger(NoopLogger()))
	require.NoError(t, err)
	e, err := svc.CreateDatasetEntry(ctx, "drive-logs", core.EntryID{})
	require.NoError(t, err)
	require.NoError(t, svc.WriteChunks(ctx, e.ID, "", []*chunk.Chunk{
		testutil.TemporalChunk("rec-1", "log_time", desc, 1, 2),
	}))
	require.NoError(t, svc.Close())

	reopened, err := Open(ctx, blobs, WithLogger(NoopLogger()))
	require.NoError(t, err)
	got, err := reopened.ReadDatasetEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "drive-logs", got.Name)

	sc, err := reopened.GetDatasetSchema(ctx, e.ID)
	require.NoError(t, err)
	assert.Contains(t, sc, desc)
}
