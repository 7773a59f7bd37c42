package lakecat

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lakecat/blobstore"
	"github.com/hupe1980/lakecat/catalog"
	"github.com/hupe1980/lakecat/dataset"
	"github.com/hupe1980/lakecat/query"
	"github.com/hupe1980/lakecat/schema"
)

var (
	// ErrNotFound is returned when an entry, partition, index or job does
	// not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a create collides with an existing
	// name, layer or index under the error duplicate policy.
	ErrDuplicate = errors.New("already exists")
	// ErrInvalidQuery is returned for queries rejected before resolution.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrBackingStore is returned when the object store or commit store
	// fails underneath an operation.
	ErrBackingStore = errors.New("backing store failure")
)

// ErrSchemaIncompatible indicates that a registration or write would give
// one column two different physical types.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrSchemaIncompatible struct {
	Column   schema.ColumnDescriptor
	Existing schema.PhysicalType
	Incoming schema.PhysicalType
	cause    error
}

func (e *ErrSchemaIncompatible) Error() string {
	return fmt.Sprintf("schema incompatible: column %s is %s, incoming %s", e.Column, e.Existing, e.Incoming)
}

func (e *ErrSchemaIncompatible) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, catalog.ErrNotFound) ||
		errors.Is(err, blobstore.ErrNotFound) ||
		errors.Is(err, dataset.ErrPartitionNotFound) ||
		errors.Is(err, dataset.ErrIndexNotFound) ||
		errors.Is(err, dataset.ErrJobNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Duplicate unification.
	if errors.Is(err, catalog.ErrDuplicateName) ||
		errors.Is(err, dataset.ErrDuplicateLayer) ||
		errors.Is(err, dataset.ErrDuplicateIndex) {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}

	if errors.Is(err, query.ErrInvalidQuery) {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	var inc *schema.IncompatibleError
	if errors.As(err, &inc) {
		return &ErrSchemaIncompatible{
			Column:   inc.Desc,
			Existing: inc.Existing,
			Incoming: inc.Incoming,
			cause:    err,
		}
	}

	if errors.Is(err, blobstore.ErrConcurrentCommit) {
		return fmt.Errorf("%w: %w", ErrBackingStore, err)
	}

	return err
}
