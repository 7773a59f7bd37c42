package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
)

// TableEntry is a mutable, schema-on-write tabular entry. Tables are peer
// entry kinds next to datasets; they do not participate in the segment/layer
// model.
type TableEntry struct {
	Entry
	// Provider names the execution engine the table is registered against;
	// Descriptor is its provider-specific configuration, passed through
	// opaquely.
	Provider   string            `json:"provider"`
	Descriptor map[string]string `json:"descriptor,omitempty"`
	// IndexColumn is the column Upsert keys on.
	IndexColumn string `json:"index_column,omitempty"`
	Rows        []Row  `json:"rows,omitempty"`
}

// Row is one table row.
type Row map[string]chunk.Value

// RegisterTable creates a table entry backed by a provider descriptor.
func (c *Catalog) RegisterTable(ctx context.Context, name, provider string, descriptor map[string]string, indexColumn string) (*TableEntry, error) {
	if name == "" {
		return nil, errors.New("table name must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.byName[name]; taken {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	now := c.now().UTC()
	t := &TableEntry{
		Entry:       Entry{ID: core.NewEntryID(), Name: name, Kind: KindTable, CreatedAt: now, UpdatedAt: now},
		Provider:    provider,
		Descriptor:  descriptor,
		IndexColumn: indexColumn,
	}
	c.tables[t.ID] = t
	c.byName[name] = t.ID

	if err := c.persistLocked(ctx); err != nil {
		delete(c.tables, t.ID)
		delete(c.byName, name)
		return nil, err
	}
	return cloneTable(t), nil
}

// ReadTable returns the table entry with the given id.
func (c *Catalog) ReadTable(_ context.Context, id core.EntryID) (*TableEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: table %s", ErrNotFound, id)
	}
	return cloneTable(t), nil
}

// AppendRows appends rows to a table.
func (c *Catalog) AppendRows(ctx context.Context, id core.EntryID, rows []Row) error {
	return c.mutateTable(ctx, id, func(t *TableEntry) error {
		t.Rows = append(t.Rows, rows...)
		return nil
	})
}

// OverwriteRows replaces a table's rows wholesale.
func (c *Catalog) OverwriteRows(ctx context.Context, id core.EntryID, rows []Row) error {
	return c.mutateTable(ctx, id, func(t *TableEntry) error {
		t.Rows = rows
		return nil
	})
}

// UpsertRows inserts or replaces rows keyed by the table's index column.
func (c *Catalog) UpsertRows(ctx context.Context, id core.EntryID, rows []Row) error {
	return c.mutateTable(ctx, id, func(t *TableEntry) error {
		if t.IndexColumn == "" {
			return fmt.Errorf("table %s has no index column", t.Name)
		}
		for _, row := range rows {
			key, ok := row[t.IndexColumn]
			if !ok {
				return fmt.Errorf("row missing index column %q", t.IndexColumn)
			}
			replaced := false
			for i, existing := range t.Rows {
				if v, ok := existing[t.IndexColumn]; ok && valueEqual(v, key) {
					t.Rows[i] = row
					replaced = true
					break
				}
			}
			if !replaced {
				t.Rows = append(t.Rows, row)
			}
		}
		return nil
	})
}

func (c *Catalog) mutateTable(ctx context.Context, id core.EntryID, fn func(*TableEntry) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tables[id]
	if !ok {
		return fmt.Errorf("%w: table %s", ErrNotFound, id)
	}
	prev := t.Rows
	if err := fn(t); err != nil {
		t.Rows = prev
		return err
	}
	t.UpdatedAt = c.now().UTC()
	if err := c.persistLocked(ctx); err != nil {
		t.Rows = prev
		return err
	}
	return nil
}

func valueEqual(a, b chunk.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case chunk.KindBool:
		return a.B == b.B
	case chunk.KindInt:
		return a.I64 == b.I64
	case chunk.KindFloat:
		return a.F64 == b.F64
	case chunk.KindString:
		return a.S == b.S
	default:
		return false
	}
}

func cloneTable(t *TableEntry) *TableEntry {
	out := *t
	out.Rows = append([]Row(nil), t.Rows...)
	return &out
}
