// Package aether is an embedded, sharded vector similarity store.
//
// Vectors are stored under random UUIDs, partitioned across a fixed number
// of in-memory shards by hashing the ID, and searched by cosine similarity
// with a scatter-gather top-K merge.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := aether.Open(ctx, aether.WithDataDir("./data"))
//	defer db.Close()
//
//	id, _ := db.Insert(ctx, []float32{1, 1, 1})
//	matches, _ := db.Search(ctx, []float32{1, 1, 0.9}, 3)
//	for _, m := range matches {
//	    fmt.Println(m.ID, m.Score)
//	}
//
// Without WithDataDir the store lives in memory only.
//
// # Durability
//
// Every insert is appended to a write-ahead log before it becomes visible.
// By default Insert returns once the record is fsynced, and a failed write
// fails the insert. WithBestEffortDurability keeps inserts succeeding in
// memory when the log cannot be written.
//
// The log is compacted into a snapshot when it grows past
// WithCheckpointBytes, after WithCheckpointEvery inserts, on Checkpoint and
// on Close. Snapshots can be copied to a backup store with WithBackup and
// are restored from it when the data directory is empty.
//
// # Dimension
//
// All vectors share one dimension. It is set with WithDimension or pinned by
// the first insert (or by the recovered data). Vectors of another length
// are rejected with *ErrDimensionMismatch.
//
// # Scores
//
// Scores are cosine similarities in [-1, 1]. A zero vector, either stored
// or as the query, scores exactly 0.
package aether
