// Package testutil provides deterministic fixtures for engine tests:
// seeded random data and chunk builders with sensible defaults.
package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/lakecat/chunk"
	"github.com/hupe1980/lakecat/core"
	"github.com/hupe1980/lakecat/schema"
)

// RNG is a seeded, thread-safe random source for reproducible fixtures.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// UniformVectors generates num random embeddings of the given dimension
// with values in [0, 1), backed by one allocation.
func (r *RNG) UniformVectors(num, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)
	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		for j := range vec {
			vec[j] = r.rand.Float32()
		}
		vectors[i] = vec
	}
	return vectors
}

// Desc returns a column descriptor for the common test archetype.
func Desc(entityPath, component string) schema.ColumnDescriptor {
	return schema.ColumnDescriptor{
		EntityPath: entityPath,
		Archetype:  "Points3D",
		Component:  component,
	}
}

// TemporalChunk builds a single-column temporal chunk: one row per time
// value, with float cells equal to the times.
func TemporalChunk(partition core.PartitionID, timeline core.Timeline, desc schema.ColumnDescriptor, times ...core.TimeInt) *chunk.Chunk {
	values := make([]chunk.Value, len(times))
	for i, t := range times {
		values[i] = chunk.Float(float64(t))
	}
	return &chunk.Chunk{
		ID:        core.NewChunkID(),
		Partition: partition,
		Times: []chunk.TimeColumn{
			{Timeline: timeline, Times: times},
		},
		Columns: []chunk.Column{
			{Desc: desc, Type: schema.TypeFloat, Values: values},
		},
	}
}

// StaticChunk builds a single-row static chunk holding one value.
func StaticChunk(partition core.PartitionID, desc schema.ColumnDescriptor, v chunk.Value) *chunk.Chunk {
	return &chunk.Chunk{
		ID:        core.NewChunkID(),
		Partition: partition,
		Columns: []chunk.Column{
			{Desc: desc, Type: v.PhysicalType(), Values: []chunk.Value{v}},
		},
	}
}

// TextChunk builds a temporal chunk of string cells, one per time value.
func TextChunk(partition core.PartitionID, timeline core.Timeline, desc schema.ColumnDescriptor, times []core.TimeInt, texts []string) *chunk.Chunk {
	values := make([]chunk.Value, len(texts))
	for i, s := range texts {
		values[i] = chunk.String(s)
	}
	return &chunk.Chunk{
		ID:        core.NewChunkID(),
		Partition: partition,
		Times: []chunk.TimeColumn{
			{Timeline: timeline, Times: times},
		},
		Columns: []chunk.Column{
			{Desc: desc, Type: schema.TypeString, Values: values},
		},
	}
}

// EmbeddingChunk builds a temporal chunk of embedding cells.
func EmbeddingChunk(partition core.PartitionID, timeline core.Timeline, desc schema.ColumnDescriptor, times []core.TimeInt, vectors [][]float32) *chunk.Chunk {
	values := make([]chunk.Value, len(vectors))
	for i, v := range vectors {
		values[i] = chunk.FloatList(v)
	}
	return &chunk.Chunk{
		ID:        core.NewChunkID(),
		Partition: partition,
		Times: []chunk.TimeColumn{
			{Timeline: timeline, Times: times},
		},
		Columns: []chunk.Column{
			{Desc: desc, Type: schema.TypeFloatList, Values: values},
		},
	}
}
