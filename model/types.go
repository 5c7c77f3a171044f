package model

import (
	"maps"
	"slices"
)

// Match is a scored search hit.
type Match struct {
	// ID is the identifier returned by Insert.
	ID string

	// Score is the cosine similarity in [-1, 1]. Degenerate vectors score 0.
	Score float32
}

// Shard maps vector IDs to their values.
type Shard map[string][]float32

// ShardSet is the complete persisted state of an engine: a fixed number of
// shards, the pinned dimension and the last log sequence number applied.
//
// The position of a shard in Shards is its routing index. Changing the number
// of shards of an existing ShardSet breaks the placement of every stored ID.
type ShardSet struct {
	// Dimension is the vector length shared by all records (0 while empty).
	Dimension int

	// LSN is the sequence number of the last insert reflected in Shards.
	LSN uint64

	Shards []Shard
}

// NewShardSet returns an empty set with n shards.
func NewShardSet(n, dimension int) *ShardSet {
	shards := make([]Shard, n)
	for i := range shards {
		shards[i] = make(Shard)
	}
	return &ShardSet{
		Dimension: dimension,
		Shards:    shards,
	}
}

// Len returns the total number of records across all shards.
func (s *ShardSet) Len() int {
	n := 0
	for _, sh := range s.Shards {
		n += len(sh)
	}
	return n
}

// SortedIDs returns the IDs of shard i in ascending order.
func (s *ShardSet) SortedIDs(i int) []string {
	return slices.Sorted(maps.Keys(s.Shards[i]))
}
