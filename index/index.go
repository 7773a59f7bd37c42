// Package index is the secondary-index subsystem: a closed set of index
// kinds (inverted, vector, scalar) over one column of a dataset, each with
// its own build configuration and query payload, sharing one lifecycle
// state machine and a uniform four-column result shape.
package index

import (
	"errors"
	"fmt"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/schema"
)

// Kind discriminates index kinds. The set is closed: each kind has a
// genuinely different config and query shape, so dispatch is by switch, not
// by interface.
type Kind uint8

const (
	// KindInverted is a tokenized full-text index.
	KindInverted Kind = iota + 1
	// KindVector is an approximate-nearest-neighbor index.
	KindVector
	// KindScalar is a btree range index.
	KindScalar
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInverted:
		return "inverted"
	case KindVector:
		return "vector"
	case KindScalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of an index instance.
//
// Requested → Building → Ready, Ready → Stale on new data,
// Stale → Rebuilding → Ready, or Failed from any build. A partially built
// index is never Ready.
type State uint8

const (
	// StateRequested means the index was created but the build has not started.
	StateRequested State = iota
	// StateBuilding means the initial build is running.
	StateBuilding
	// StateReady means the index covers all registered data.
	StateReady
	// StateStale means data was registered after the index was built;
	// queries serve the built snapshot until a re-index.
	StateStale
	// StateRebuilding means a re-index is running.
	StateRebuilding
	// StateFailed means the last build failed; the index never serves
	// partial results.
	StateFailed
)

// String returns the state name used in persisted records.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateStale:
		return "stale"
	case StateRebuilding:
		return "rebuilding"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseState parses a persisted state name. Unknown names parse as
// Requested so a truncated record degrades to "build me again".
func ParseState(s string) State {
	switch s {
	case "building":
		return StateBuilding
	case "ready":
		return StateReady
	case "stale":
		return StateStale
	case "rebuilding":
		return StateRebuilding
	case "failed":
		return StateFailed
	default:
		return StateRequested
	}
}

// InvertedConfig configures a full-text index.
type InvertedConfig struct {
	// Tokenizer names a built-in tokenizer ("simple", "whitespace").
	// Empty selects "simple".
	Tokenizer string `json:"tokenizer,omitempty"`
}

// VectorConfig configures an approximate-nearest-neighbor index.
type VectorConfig struct {
	// Metric is the distance metric name ("l2", "cosine", "dot").
	Metric string `json:"metric,omitempty"`
	// NumPartitions is the IVF list count; <= 1 builds a flat index.
	NumPartitions int `json:"num_partitions,omitempty"`
	// NProbe is the default number of lists probed per query.
	NProbe int `json:"nprobe,omitempty"`
}

// ScalarConfig configures a scalar range index. It has no properties; the
// type exists so a Config can name the kind explicitly.
type ScalarConfig struct{}

// Config defines one index: the target column, the time index it is built
// against (empty for static columns) and exactly one kind-specific
// property block.
type Config struct {
	Kind     Kind                    `json:"kind"`
	Column   schema.ColumnDescriptor `json:"column"`
	Timeline core.Timeline           `json:"timeline,omitempty"`

	Inverted *InvertedConfig `json:"inverted,omitempty"`
	Vector   *VectorConfig   `json:"vector,omitempty"`
	Scalar   *ScalarConfig   `json:"scalar,omitempty"`
}

// Name returns the stable identity of the index definition. Two creation
// requests for the same (kind, column, timeline) address the same index;
// the duplicate policy arbitrates between them.
func (c Config) Name() string {
	return fmt.Sprintf("%s/%s@%s", c.Kind, c.Column, c.Timeline)
}

// Validate checks the config names a known kind with exactly its own
// property block.
func (c Config) Validate() error {
	if c.Column.EntityPath == "" {
		return errors.New("index config requires a target column")
	}
	switch c.Kind {
	case KindInverted:
		if c.Vector != nil || c.Scalar != nil {
			return errors.New("inverted index config carries foreign properties")
		}
	case KindVector:
		if c.Vector == nil {
			return errors.New("vector index requires vector properties")
		}
		if c.Inverted != nil || c.Scalar != nil {
			return errors.New("vector index config carries foreign properties")
		}
		if c.Vector.NumPartitions < 0 || c.Vector.NProbe < 0 {
			return errors.New("vector partition and probe counts must be non-negative")
		}
	case KindScalar:
		if c.Inverted != nil || c.Vector != nil {
			return errors.New("scalar index config carries foreign properties")
		}
	default:
		return fmt.Errorf("unknown index kind %d", c.Kind)
	}
	return nil
}

// Payload is the kind-specific query input. Exactly one field must be set:
// Text for inverted, Vector for vector, Scalar for scalar indexes.
type Payload struct {
	Text   string
	Vector []float32
	Scalar *ScalarPredicate
}

// ScalarOp enumerates scalar predicate operators.
type ScalarOp uint8

const (
	// ScalarEq matches values equal to the operand.
	ScalarEq ScalarOp = iota
	// ScalarLt matches values strictly below the operand.
	ScalarLt
	// ScalarLe matches values at or below the operand.
	ScalarLe
	// ScalarGt matches values strictly above the operand.
	ScalarGt
	// ScalarGe matches values at or above the operand.
	ScalarGe
	// ScalarRange matches values inside the inclusive [Value, Upper] interval.
	ScalarRange
)

// ScalarPredicate is a point or range condition on the indexed column.
type ScalarPredicate struct {
	Op    ScalarOp
	Value chunk.Value
	Upper chunk.Value
}

// QueryProps carries kind-specific query tuning.
type QueryProps struct {
	// TopK bounds vector results per partition; 0 means 10.
	TopK int
	// NProbe overrides the build-time IVF probe count for this query.
	NProbe int
}

// Hit is one row of the uniform search result: the partition the match
// came from, its timepoint (zero for static data), the matched instance
// and the instance's position within its batch.
type Hit struct {
	Partition  core.PartitionID
	Time       core.TimeInt
	Instance   chunk.Value
	InstanceID int
	// Score is kind-specific: ANN distance for vector hits, 0 otherwise.
	Score float32
}
