// Package lakecat is an embedded dataset catalog and chunk query engine
// over object storage.
//
// A catalog holds entries: datasets of recorded, timeline-indexed columnar
// data, and external table references. Each dataset is split into
// partitions (one per recording), each partition into named layers, and
// each layer into immutable chunk blobs. Manifests over the chunks carry
// enough metadata to plan queries without touching payloads.
//
// Reads go through declarative queries: latest-at and range temporal
// selection composed with content filters, resolved into an ordered chunk
// stream. Secondary indexes (full-text, vector ANN, scalar range) answer
// value-level searches with a uniform result shape and an explicit
// staleness contract.
//
// Basic usage:
//
//	store := blobstore.NewMemoryStore()
//	svc, err := lakecat.Open(ctx, store)
//	if err != nil { ... }
//
//	entry, err := svc.CreateDatasetEntry(ctx, "droid-logs", core.EntryID{})
//	if err != nil { ... }
//
//	err = svc.WriteChunks(ctx, entry.ID, "", chunks)
//
//	it, err := svc.QueryDataset(ctx, entry.ID, query.Query{
//		SelectAllEntityPaths: true,
//		LatestAt:             &query.LatestAt{Timeline: "log_time", At: 42},
//	})
//	for it.Next(ctx) {
//		meta := it.Chunk()
//		...
//	}
package lakecat
