package lakecat

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/catalog"
	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/dataset"
	"github.com/hupe1980/lakecat/index"
	"github.com/hupe1980/lakecat/manifest"
	"github.com/hupe1980/lakecat/query"
	"github.com/hupe1980/lakecat/schema"
)

// Service is the top-level catalog and query engine: a catalog of entries
// (datasets and tables) over one blob store, with per-dataset engines
// created on demand.
//
// All methods are safe for concurrent use.
type Service struct {
	blobs blobstore.BlobStore
	cat   *catalog.Catalog
	store *manifest.Store
	jobs  *dataset.Jobs
	opts  options

	mu       sync.Mutex
	datasets map[core.EntryID]*dataset.Dataset
}

// Open loads the catalog from the blob store and returns a ready Service.
func Open(ctx context.Context, blobs blobstore.BlobStore, optFns ...Option) (*Service, error) {
	opts := options{
		codec:  codec.Default,
		logger: NewLogger(nil),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.opener == nil {
		opts.opener = dataset.NewBlobOpener(blobs, opts.codec)
	}

	cat, err := catalog.Load(ctx, blobs, opts.codec)
	if err != nil {
		return nil, translateError(fmt.Errorf("load catalog: %w", err))
	}
	store, err := manifest.NewStore(blobs, opts.codec)
	if err != nil {
		return nil, translateError(err)
	}

	return &Service{
		blobs:    blobs,
		cat:      cat,
		store:    store,
		jobs:     dataset.NewJobs(),
		opts:     opts,
		datasets: make(map[core.EntryID]*dataset.Dataset),
	}, nil
}

// Close releases the service. Background jobs already running keep their
// goroutines until they finish.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets = make(map[core.EntryID]*dataset.Dataset)
	return nil
}

// engine returns (or creates) the per-dataset engine for a dataset entry.
func (s *Service) engine(ctx context.Context, id core.EntryID) (*dataset.Dataset, error) {
	if _, err := s.cat.ReadDataset(ctx, id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.datasets[id]; ok {
		return d, nil
	}
	d, err := dataset.Open(ctx, id, s.blobs, s.store, dataset.Options{
		Codec:    s.opts.codec,
		Logger:   s.opts.logger.Logger,
		Resource: s.opts.res,
		Jobs:     s.jobs,
	})
	if err != nil {
		return nil, err
	}
	s.datasets[id] = d
	return d, nil
}

// --- Catalog operations ---

// FindEntries returns the catalog entries matching the filter, ordered by
// id.
func (s *Service) FindEntries(ctx context.Context, f catalog.Filter) ([]catalog.Entry, error) {
	return s.cat.Find(ctx, f), nil
}

// CreateDatasetEntry creates a dataset entry. A zero id lets the catalog
// assign one; names are unique across the catalog.
func (s *Service) CreateDatasetEntry(ctx context.Context, name string, id core.EntryID) (*catalog.DatasetEntry, error) {
	e, err := s.cat.CreateDataset(ctx, name, id)
	return e, translateError(err)
}

// ReadDatasetEntry returns a dataset entry by id.
func (s *Service) ReadDatasetEntry(ctx context.Context, id core.EntryID) (*catalog.DatasetEntry, error) {
	e, err := s.cat.ReadDataset(ctx, id)
	return e, translateError(err)
}

// UpdateDatasetEntry applies the updatable fields to a dataset entry.
func (s *Service) UpdateDatasetEntry(ctx context.Context, id core.EntryID, fields catalog.UpdatableFields) (*catalog.DatasetEntry, error) {
	e, err := s.cat.UpdateDataset(ctx, id, fields)
	return e, translateError(err)
}

// DeleteEntry removes an entry from the catalog. Deleting a dataset also
// drops its manifests, chunks and indexes; the operation is irreversible.
func (s *Service) DeleteEntry(ctx context.Context, id core.EntryID) error {
	kind, err := s.cat.Delete(ctx, id)
	if err != nil {
		return translateError(err)
	}
	if kind != catalog.KindDataset {
		return nil
	}

	s.mu.Lock()
	delete(s.datasets, id)
	s.mu.Unlock()
	if err := s.store.Drop(ctx, id); err != nil {
		return translateError(fmt.Errorf("drop dataset %s: %w", id, err))
	}
	return nil
}

// RegisterTable creates a table entry for an external table provider.
func (s *Service) RegisterTable(ctx context.Context, name, provider string, descriptor map[string]string, indexColumn string) (*catalog.TableEntry, error) {
	t, err := s.cat.RegisterTable(ctx, name, provider, descriptor, indexColumn)
	return t, translateError(err)
}

// ReadTableEntry returns a table entry by id.
func (s *Service) ReadTableEntry(ctx context.Context, id core.EntryID) (*catalog.TableEntry, error) {
	t, err := s.cat.ReadTable(ctx, id)
	return t, translateError(err)
}

// AppendTableRows appends rows to a table entry.
func (s *Service) AppendTableRows(ctx context.Context, id core.EntryID, rows []catalog.Row) error {
	return translateError(s.cat.AppendRows(ctx, id, rows))
}

// OverwriteTableRows replaces a table entry's rows.
func (s *Service) OverwriteTableRows(ctx context.Context, id core.EntryID, rows []catalog.Row) error {
	return translateError(s.cat.OverwriteRows(ctx, id, rows))
}

// UpsertTableRows inserts or replaces rows keyed by the table's index
// column.
func (s *Service) UpsertTableRows(ctx context.Context, id core.EntryID, rows []catalog.Row) error {
	return translateError(s.cat.UpsertRows(ctx, id, rows))
}

// --- Write path ---

// RegisterWithDataset ingests recordings into a dataset. Sources are read
// concurrently and each commits atomically; the duplicate policy decides
// what happens when a source targets an existing (partition, layer).
func (s *Service) RegisterWithDataset(ctx context.Context, id core.EntryID, sources []dataset.DataSource, policy dataset.DuplicatePolicy) ([]dataset.RegisterResult, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	results, err := d.Register(ctx, s.opts.opener, sources, policy)
	chunks := 0
	for _, r := range results {
		chunks += r.NumChunks
	}
	s.opts.logger.WithEntry(id).LogRegister(ctx, len(sources), chunks, err)
	return results, translateError(err)
}

// StartRegistration runs RegisterWithDataset as a background job and
// returns the job id. Per-source outcomes are visible in the manifests once
// the job completes; failures are recorded on the job status.
func (s *Service) StartRegistration(ctx context.Context, id core.EntryID, sources []dataset.DataSource, policy dataset.DuplicatePolicy) (string, error) {
	if _, err := s.engine(ctx, id); err != nil {
		return "", translateError(err)
	}
	return s.jobs.Spawn("register", func() error {
		_, err := s.RegisterWithDataset(context.Background(), id, sources, policy)
		return err
	}), nil
}

// WriteChunks appends chunks directly to a dataset layer.
func (s *Service) WriteChunks(ctx context.Context, id core.EntryID, layer string, chunks []*chunk.Chunk) error {
	d, err := s.engine(ctx, id)
	if err != nil {
		return translateError(err)
	}
	return translateError(d.WriteChunks(ctx, layer, chunks))
}

// --- Read path ---

// GetDatasetSchema returns the dataset's schema-on-read: the union of all
// its partitions' schemas.
func (s *Service) GetDatasetSchema(ctx context.Context, id core.EntryID) (schema.Schema, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	sc, err := d.Schema()
	return sc, translateError(err)
}

// GetPartitionTableSchema returns the columns of the derived partition
// table.
func (s *Service) GetPartitionTableSchema(ctx context.Context, id core.EntryID) ([]dataset.TableColumn, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	return d.PartitionTableSchema(), nil
}

// ScanPartitionTable returns one row per partition, shaped by the scan
// parameters.
func (s *Service) ScanPartitionTable(ctx context.Context, id core.EntryID, params query.ScanParams) ([]dataset.Row, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	rows, err := d.ScanPartitionTable(params)
	return rows, translateError(err)
}

// QueryDataset resolves a query into the ordered chunk iterator. The
// iterator is pull-based; resolution work happens as the caller advances.
func (s *Service) QueryDataset(ctx context.Context, id core.EntryID, q query.Query) (*query.Iterator, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	it, err := d.Resolve(q)
	return it, translateError(err)
}

// GetChunks resolves a query and streams the matching chunk payloads.
func (s *Service) GetChunks(ctx context.Context, id core.EntryID, q query.Query) (*dataset.ChunkStream, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	stream, err := d.GetChunks(q)
	return stream, translateError(err)
}

// --- Indexes ---

// CreateIndex records an index definition and starts its build as a
// background job, returning the job id. Under PolicySkip with an existing
// index the returned job id is empty.
func (s *Service) CreateIndex(ctx context.Context, id core.EntryID, cfg index.Config, policy dataset.DuplicatePolicy) (string, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return "", translateError(err)
	}
	jobID, err := d.CreateIndex(ctx, cfg, policy)
	return jobID, translateError(err)
}

// ReIndex rebuilds an existing index over current data as a background
// job.
func (s *Service) ReIndex(ctx context.Context, id core.EntryID, name string) (string, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return "", translateError(err)
	}
	jobID, err := d.ReIndex(ctx, name)
	return jobID, translateError(err)
}

// ListIndexes returns the dataset's index records and their staleness.
func (s *Service) ListIndexes(ctx context.Context, id core.EntryID) ([]dataset.IndexInfo, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	return d.Indexes(), nil
}

// SearchDataset queries a secondary index. Stale indexes answer from
// their built snapshot and say so in the result.
func (s *Service) SearchDataset(ctx context.Context, id core.EntryID, name string, payload index.Payload, props index.QueryProps) (*dataset.SearchResult, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	res, err := d.Search(ctx, name, payload, props)
	return res, translateError(err)
}

// --- Manifests ---

// FetchPartitionManifest returns the partition manifest of one partition.
func (s *Service) FetchPartitionManifest(ctx context.Context, id core.EntryID, p core.PartitionID) (*manifest.PartitionManifest, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	pm, err := d.PartitionManifest(p)
	return pm, translateError(err)
}

// FetchChunkManifest returns the dataset's default chunk manifest, or an
// index's restricted manifest when name is non-empty.
func (s *Service) FetchChunkManifest(ctx context.Context, id core.EntryID, name string) (*manifest.ChunkManifest, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	cm, err := d.ChunkManifest(name)
	return cm, translateError(err)
}

// FetchSchemaManifest returns the dataset's schema as sorted column rows,
// the form the manifests persist it in.
func (s *Service) FetchSchemaManifest(ctx context.Context, id core.EntryID) ([]schema.Column, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	sc, err := d.Schema()
	if err != nil {
		return nil, translateError(err)
	}
	return sc.Columns(), nil
}

// --- Maintenance and jobs ---

// DoMaintenance runs the selected maintenance tasks on a dataset.
func (s *Service) DoMaintenance(ctx context.Context, id core.EntryID, opts dataset.MaintenanceOptions) (*dataset.MaintenanceReport, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return nil, translateError(err)
	}
	report, err := d.DoMaintenance(ctx, opts)
	return report, translateError(err)
}

// StartMaintenance runs DoMaintenance as a background job and returns the
// job id. Task failures are recorded on the job status.
func (s *Service) StartMaintenance(ctx context.Context, id core.EntryID, opts dataset.MaintenanceOptions) (string, error) {
	d, err := s.engine(ctx, id)
	if err != nil {
		return "", translateError(err)
	}
	return s.jobs.Spawn("maintenance", func() error {
		_, err := d.DoMaintenance(context.Background(), opts)
		return err
	}), nil
}

// JobStatus returns the current status of a background job.
func (s *Service) JobStatus(id string) (dataset.JobStatus, error) {
	st, err := s.jobs.Status(id)
	return st, translateError(err)
}

// WaitJob blocks until a background job completes, then returns its final
// status.
func (s *Service) WaitJob(ctx context.Context, id string) (dataset.JobStatus, error) {
	st, err := s.jobs.Wait(ctx, id)
	return st, translateError(err)
}
