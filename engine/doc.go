// Package engine implements the in-process sharded vector store.
//
// A [Sharded] coordinator owns a fixed number of [MapStore] shards. Every
// vector gets a random UUID and lives in exactly one shard, chosen by
// [Route] from the ID alone, so point lookups never broadcast. Search scatters
// the query to all shards on a [WorkerPool], scores each shard with a single
// BLAS call and merges the partial results into a global top-K.
//
// Durability is pluggable through the [Durability] hook: an insert is logged
// before it becomes visible, so a failed log write leaves nothing behind.
// Persistence itself (write-ahead log, snapshots, recovery) lives in the
// persistence package.
package engine
