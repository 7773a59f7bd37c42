package lakecat_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/lakecat"
	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/dataset"
	"github.com/hupe1980/lakecat/index"
	"github.com/hupe1980/lakecat/query"
	"github.com/hupe1980/lakecat/schema"
)

func captionChunk(partition core.PartitionID, time core.TimeInt, text string) *chunk.Chunk {
	return &chunk.Chunk{
		ID:        core.NewChunkID(),
		Partition: partition,
		Times: []chunk.TimeColumn{
			{Timeline: "log_time", Times: []core.TimeInt{time}},
		},
		Columns: []chunk.Column{
			{
				Desc:   schema.ColumnDescriptor{EntityPath: "/camera", Archetype: "TextLog", Component: "caption"},
				Type:   schema.TypeString,
				Values: []chunk.Value{chunk.String(text)},
			},
		},
	}
}

// Example_query demonstrates writing chunks and resolving a latest-at query.
func Example_query() {
	ctx := context.Background()

	svc, err := lakecat.Open(ctx, blobstore.NewMemoryStore(), lakecat.WithLogger(lakecat.NoopLogger()))
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	entry, err := svc.CreateDatasetEntry(ctx, "droid-logs", core.EntryID{})
	if err != nil {
		log.Fatal(err)
	}

	err = svc.WriteChunks(ctx, entry.ID, "", []*chunk.Chunk{
		captionChunk("rec-1", 10, "door opened"),
		captionChunk("rec-1", 20, "door closed"),
	})
	if err != nil {
		log.Fatal(err)
	}

	it, err := svc.QueryDataset(ctx, entry.ID, query.Query{
		SelectAllEntityPaths: true,
		LatestAt:             &query.LatestAt{Timeline: "log_time", At: 15},
	})
	if err != nil {
		log.Fatal(err)
	}

	count := 0
	for it.Next(ctx) {
		count++
	}
	if err := it.Err(); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%d chunk at t=15\n", count)
	// Output: 1 chunk at t=15
}

// Example_search demonstrates building a full-text index and querying it.
func Example_search() {
	ctx := context.Background()

	svc, err := lakecat.Open(ctx, blobstore.NewMemoryStore(), lakecat.WithLogger(lakecat.NoopLogger()))
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	entry, err := svc.CreateDatasetEntry(ctx, "droid-logs", core.EntryID{})
	if err != nil {
		log.Fatal(err)
	}

	err = svc.WriteChunks(ctx, entry.ID, "", []*chunk.Chunk{
		captionChunk("rec-1", 10, "pedestrian at the crossing"),
		captionChunk("rec-2", 30, "empty street"),
	})
	if err != nil {
		log.Fatal(err)
	}

	cfg := index.Config{
		Kind:     index.KindInverted,
		Column:   schema.ColumnDescriptor{EntityPath: "/camera", Archetype: "TextLog", Component: "caption"},
		Timeline: "log_time",
	}
	jobID, err := svc.CreateIndex(ctx, entry.ID, cfg, dataset.PolicyError)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := svc.WaitJob(ctx, jobID); err != nil {
		log.Fatal(err)
	}

	res, err := svc.SearchDataset(ctx, entry.ID, cfg.Name(), index.Payload{Text: "pedestrian"}, index.QueryProps{})
	if err != nil {
		log.Fatal(err)
	}
	for _, hit := range res.Hits {
		fmt.Printf("%s t=%d\n", hit.Partition, hit.Time)
	}
	// Output: rec-1 t=10
}
