// Package catalog manages the namespace of named Entries (datasets and
// tables): id assignment, name uniqueness, lookup and the narrow updatable
// projection.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/codec"
	"github.com/hupe1980/lakecat/core"
)

// snapshotName is the blob holding the serialized catalog.
const snapshotName = "catalog/ENTRIES"

var (
	// ErrNotFound is returned for lookups of unknown entry ids.
	ErrNotFound = errors.New("entry not found")
	// ErrDuplicateName is returned when an entry name is already in use.
	// The failed call leaves the catalog unchanged.
	ErrDuplicateName = errors.New("entry name already in use")
)

// Kind discriminates entry kinds.
type Kind uint8

const (
	// KindDataset marks a dataset entry.
	KindDataset Kind = iota + 1
	// KindTable marks a table entry.
	KindTable
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDataset:
		return "dataset"
	case KindTable:
		return "table"
	default:
		return "unknown"
	}
}

// Entry is the common header of every catalog entry. The id is immutable;
// the name is the only updatable field.
type Entry struct {
	ID        core.EntryID `json:"id"`
	Name      string       `json:"name"`
	Kind      Kind         `json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// DatasetEntry is a dataset in the catalog. The optional blueprint fields
// associate a viewer-configuration dataset and its default partition.
type DatasetEntry struct {
	Entry
	BlueprintDataset          core.EntryID     `json:"blueprint_dataset,omitzero"`
	DefaultBlueprintPartition core.PartitionID `json:"default_blueprint_partition,omitempty"`
}

// UpdatableFields is the projection of an entry a caller may update.
type UpdatableFields struct {
	Name string `json:"name"`
}

// Filter selects entries in FindEntries. Nil fields match everything.
type Filter struct {
	ID   *core.EntryID
	Name *string
	Kind *Kind
}

type snapshot struct {
	Datasets []*DatasetEntry `json:"datasets"`
	Tables   []*TableEntry   `json:"tables"`
}

// Catalog is the top-level namespace of named entries. It is an in-memory
// view persisted to the blob store on every mutation; name uniqueness is
// enforced catalog-wide at write time.
type Catalog struct {
	mu       sync.RWMutex
	datasets map[core.EntryID]*DatasetEntry
	tables   map[core.EntryID]*TableEntry
	byName   map[string]core.EntryID

	blobs blobstore.BlobStore
	cd    codec.Codec
	now   func() time.Time
}

// Load opens the catalog persisted in the blob store, or an empty one.
func Load(ctx context.Context, blobs blobstore.BlobStore, cd codec.Codec) (*Catalog, error) {
	if cd == nil {
		cd = codec.Default
	}
	c := &Catalog{
		datasets: make(map[core.EntryID]*DatasetEntry),
		tables:   make(map[core.EntryID]*TableEntry),
		byName:   make(map[string]core.EntryID),
		blobs:    blobs,
		cd:       cd,
		now:      time.Now,
	}

	blob, err := blobs.Open(ctx, snapshotName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return c, nil
		}
		return nil, err
	}
	defer blob.Close()

	data := make([]byte, blob.Size())
	if _, err := blob.ReadAt(ctx, data, 0); err != nil && len(data) > 0 {
		return nil, err
	}
	var snap snapshot
	if err := cd.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for _, d := range snap.Datasets {
		c.datasets[d.ID] = d
		c.byName[d.Name] = d.ID
	}
	for _, t := range snap.Tables {
		c.tables[t.ID] = t
		c.byName[t.Name] = t.ID
	}
	return c, nil
}

func (c *Catalog) persistLocked(ctx context.Context) error {
	snap := snapshot{}
	for _, d := range c.datasets {
		snap.Datasets = append(snap.Datasets, d)
	}
	for _, t := range c.tables {
		snap.Tables = append(snap.Tables, t)
	}
	data, err := c.cd.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return c.blobs.Put(ctx, snapshotName, data)
}

// CreateDataset creates a dataset entry. id may be the zero value, in which
// case a fresh time-ordered id is assigned.
func (c *Catalog) CreateDataset(ctx context.Context, name string, id core.EntryID) (*DatasetEntry, error) {
	if name == "" {
		return nil, errors.New("dataset name must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.byName[name]; taken {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	if id.IsZero() {
		id = core.NewEntryID()
	} else if _, exists := c.datasets[id]; exists {
		return nil, fmt.Errorf("dataset id %s already exists", id)
	}

	now := c.now().UTC()
	d := &DatasetEntry{
		Entry: Entry{ID: id, Name: name, Kind: KindDataset, CreatedAt: now, UpdatedAt: now},
	}
	c.datasets[id] = d
	c.byName[name] = id

	if err := c.persistLocked(ctx); err != nil {
		delete(c.datasets, id)
		delete(c.byName, name)
		return nil, err
	}
	return cloneDataset(d), nil
}

// ReadDataset returns the dataset entry with the given id.
func (c *Catalog) ReadDataset(_ context.Context, id core.EntryID) (*DatasetEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %s", ErrNotFound, id)
	}
	return cloneDataset(d), nil
}

// UpdateDataset applies the updatable projection to a dataset entry.
func (c *Catalog) UpdateDataset(ctx context.Context, id core.EntryID, fields UpdatableFields) (*DatasetEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %s", ErrNotFound, id)
	}
	if fields.Name == "" || fields.Name == d.Name {
		return cloneDataset(d), nil
	}
	if _, taken := c.byName[fields.Name]; taken {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, fields.Name)
	}

	oldName := d.Name
	delete(c.byName, oldName)
	d.Name = fields.Name
	d.UpdatedAt = c.now().UTC()
	c.byName[d.Name] = id

	if err := c.persistLocked(ctx); err != nil {
		delete(c.byName, d.Name)
		d.Name = oldName
		c.byName[oldName] = id
		return nil, err
	}
	return cloneDataset(d), nil
}

// Delete removes the entry with the given id and returns its kind so the
// caller can cascade (datasets drop their segments, layers and manifests).
// Deletion is irreversible.
func (c *Catalog) Delete(ctx context.Context, id core.EntryID) (Kind, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.datasets[id]; ok {
		delete(c.datasets, id)
		delete(c.byName, d.Name)
		if err := c.persistLocked(ctx); err != nil {
			c.datasets[id] = d
			c.byName[d.Name] = id
			return 0, err
		}
		return KindDataset, nil
	}
	if t, ok := c.tables[id]; ok {
		delete(c.tables, id)
		delete(c.byName, t.Name)
		if err := c.persistLocked(ctx); err != nil {
			c.tables[id] = t
			c.byName[t.Name] = id
			return 0, err
		}
		return KindTable, nil
	}
	return 0, fmt.Errorf("%w: entry %s", ErrNotFound, id)
}

// Find returns the entry headers matching the filter, sorted by id.
func (c *Catalog) Find(_ context.Context, f Filter) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Entry
	match := func(e Entry) bool {
		if f.ID != nil && e.ID != *f.ID {
			return false
		}
		if f.Name != nil && e.Name != *f.Name {
			return false
		}
		if f.Kind != nil && e.Kind != *f.Kind {
			return false
		}
		return true
	}
	for _, d := range c.datasets {
		if match(d.Entry) {
			out = append(out, d.Entry)
		}
	}
	for _, t := range c.tables {
		if match(t.Entry) {
			out = append(out, t.Entry)
		}
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID.String() < entries[j].ID.String()
	})
}

func cloneDataset(d *DatasetEntry) *DatasetEntry {
	out := *d
	return &out
}
