// Package dataset implements the per-dataset engine: the registration write
// path, chunk storage, secondary-index lifecycle, queries and maintenance,
// all over one manifest state persisted through the manifest store.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/index"
	"github.com/hupe1980/lakecat/manifest"
	"github.com/hupe1980/lakecat/query"
	"github.com/hupe1980/lakecat/resource"
	"github.com/hupe1980/lakecat/schema"
)

// saveRetries bounds how often a manifest commit is retried after losing a
// CAS race before the error is surfaced.
const saveRetries = 3

// Dataset is the engine for one dataset entry: it owns the dataset's
// manifest state and serializes all mutation through one writer lock.
// Reads snapshot the state and run lock-free.
type Dataset struct {
	id     core.EntryID
	blobs  blobstore.BlobStore
	store  *manifest.Store
	cd     codec.Codec
	logger *slog.Logger
	res    *resource.Controller
	jobs   *Jobs

	mu    sync.RWMutex
	state *manifest.State
	// built caches in-memory index instances by index name. Instances are
	// rebuilt lazily from their persisted manifests after a restart.
	built map[string]*index.Instance
}

// Options configures a Dataset.
type Options struct {
	Codec    codec.Codec
	Logger   *slog.Logger
	Resource *resource.Controller
	Jobs     *Jobs
}

// Open loads (or initializes) the manifest state for a dataset.
func Open(ctx context.Context, id core.EntryID, blobs blobstore.BlobStore, store *manifest.Store, opts Options) (*Dataset, error) {
	st, err := store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", id, err)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Jobs == nil {
		opts.Jobs = NewJobs()
	}
	return &Dataset{
		id:     id,
		blobs:  blobs,
		store:  store,
		cd:     opts.Codec,
		logger: opts.Logger.With(slog.String("dataset", id.String())),
		res:    opts.Resource,
		jobs:   opts.Jobs,
		state:  st,
		built:  make(map[string]*index.Instance),
	}, nil
}

// ID returns the dataset's entry id.
func (d *Dataset) ID() core.EntryID { return d.id }

// Jobs returns the dataset's background job registry.
func (d *Dataset) Jobs() *Jobs { return d.jobs }

// snapshot returns the current state for lock-free reads. Mutators replace
// d.state wholesale, so a snapshot stays internally consistent.
func (d *Dataset) snapshot() *manifest.State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Schema returns the dataset's schema-on-read: the union of all partition
// schemas.
func (d *Dataset) Schema() (schema.Schema, error) {
	return d.snapshot().Schema()
}

// PartitionIDs returns the dataset's partition ids, sorted.
func (d *Dataset) PartitionIDs() []core.PartitionID {
	return d.snapshot().PartitionIDs()
}

// PartitionManifest returns the partition manifest for one partition.
func (d *Dataset) PartitionManifest(p core.PartitionID) (*manifest.PartitionManifest, error) {
	pm, ok := d.snapshot().Partitions[p]
	if !ok {
		return nil, fmt.Errorf("partition %s: %w", p, ErrPartitionNotFound)
	}
	return pm, nil
}

// ChunkManifest returns the dataset's default chunk manifest, or an index's
// restricted manifest when name is non-empty.
func (d *Dataset) ChunkManifest(name string) (*manifest.ChunkManifest, error) {
	st := d.snapshot()
	if name == "" {
		return st.Chunks, nil
	}
	rec, ok := st.Indexes[name]
	if !ok {
		return nil, fmt.Errorf("index %s: %w", name, ErrIndexNotFound)
	}
	if rec.Manifest == nil {
		return nil, fmt.Errorf("index %s has no built manifest: %w", name, ErrIndexNotReady)
	}
	return rec.Manifest, nil
}

// Resolve plans a query against the current chunk manifest and returns the
// ordered chunk iterator.
func (d *Dataset) Resolve(q query.Query) (*query.Iterator, error) {
	return query.NewResolver(d.snapshot().Chunks).Resolve(&q)
}

// ErrPartitionNotFound is returned when a partition id is not registered.
var ErrPartitionNotFound = errors.New("partition not found")

// mutate runs fn against a clone of the current state and commits the
// result. d.state is only swapped after a successful save, so snapshots
// held by readers are never edited and a failed fn changes nothing. On a
// lost CAS race the state is reloaded and fn is replayed against a fresh
// clone, so fn must be a pure function of the state it is given.
// fn returns false to abort without committing.
func (d *Dataset) mutate(ctx context.Context, fn func(st *manifest.State) (bool, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for attempt := 0; ; attempt++ {
		st := d.state.Clone()
		dirty, err := fn(st)
		if err != nil {
			return err
		}
		if !dirty {
			return nil
		}

		err = d.store.Save(ctx, st)
		if err == nil {
			d.state = st
			return nil
		}
		if !errors.Is(err, blobstore.ErrConcurrentCommit) || attempt >= saveRetries {
			return err
		}

		d.logger.Warn("manifest commit lost race, retrying",
			slog.Int("attempt", attempt+1))
		fresh, lerr := d.store.Load(ctx, d.id)
		if lerr != nil {
			return fmt.Errorf("reload after lost commit: %w", lerr)
		}
		d.state = fresh
	}
}
