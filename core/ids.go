// Package core defines the identifier and time primitives shared by every
// other package: entry/chunk identifiers, partition identities and timeline
// (index column) selectors.
package core

import (
	"fmt"

	"github.com/google/uuid"
)

// EntryID uniquely identifies an Entry in a catalog.
//
// EntryIDs are UUIDv7: a 48-bit millisecond timestamp followed by random
// bits, so lexicographic order roughly follows creation order. An EntryID is
// immutable once assigned.
type EntryID struct {
	uuid.UUID
}

// NewEntryID returns a fresh time-ordered EntryID.
func NewEntryID() EntryID {
	return EntryID{UUID: newV7()}
}

// ParseEntryID parses the canonical string form of an EntryID.
func ParseEntryID(s string) (EntryID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return EntryID{}, fmt.Errorf("invalid entry id %q: %w", s, err)
	}
	return EntryID{UUID: u}, nil
}

// IsZero reports whether the id is the zero value (unassigned).
func (id EntryID) IsZero() bool {
	return id.UUID == uuid.Nil
}

// ChunkID uniquely identifies an immutable chunk of logged data.
//
// Like EntryID, ChunkIDs are time-ordered UUIDv7 values; the registration
// tie-break rule for latest-at queries relies on a separate sequence number,
// not on ChunkID ordering.
type ChunkID struct {
	uuid.UUID
}

// NewChunkID returns a fresh time-ordered ChunkID.
func NewChunkID() ChunkID {
	return ChunkID{UUID: newV7()}
}

// ParseChunkID parses the canonical string form of a ChunkID.
func ParseChunkID(s string) (ChunkID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ChunkID{}, fmt.Errorf("invalid chunk id %q: %w", s, err)
	}
	return ChunkID{UUID: u}, nil
}

// IsZero reports whether the id is the zero value.
func (id ChunkID) IsZero() bool {
	return id.UUID == uuid.Nil
}

// newV7 returns a UUIDv7, falling back to v4 if the system clock/entropy
// source fails (uuid.NewV7 only errors when crypto/rand does).
func newV7() uuid.UUID {
	u, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return u
}

// PartitionID identifies one segment (registered recording) within a
// dataset. Its value equals the source recording's own identifier, so it is
// caller-supplied rather than generated.
type PartitionID string

// DefaultLayer is the layer name used when a data source does not name one.
const DefaultLayer = "base"
