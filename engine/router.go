package engine

import "github.com/hupe1980/aether/internal/hash"

// Route returns the shard index in [0, shardCount) that owns id.
//
// The index is the SHA-256 digest of id, read as an unsigned big-endian
// integer, modulo shardCount. It depends on nothing but the two arguments, so
// the placement of an ID is stable across restarts as long as the shard count
// does not change. shardCount must be positive.
func Route(id string, shardCount int) int {
	if shardCount == 1 {
		return 0
	}
	return hash.Mod(id, shardCount)
}
