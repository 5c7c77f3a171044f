package engine

import "github.com/hupe1980/aether/model"

// Store holds the vectors of one shard.
//
// Implementations must be safe for concurrent readers alongside a writer and
// must never expose a partially written vector to Score or Get.
type Store interface {
	// Put inserts or replaces the vector stored under id.
	Put(id string, vector []float32) error

	// Get returns a copy of the vector stored under id.
	Get(id string) ([]float32, bool)

	// Len returns the number of stored vectors.
	Len() int

	// Dimension returns the vector length, or 0 while the store is empty
	// and unpinned.
	Dimension() int

	// ToMap returns a copy of all data (for serialization).
	ToMap() model.Shard

	// Score returns the cosine similarity of query with every stored
	// vector, in storage order. queryNorm may be negative to have it
	// computed.
	Score(query []float32, queryNorm float32) []model.Match
}
