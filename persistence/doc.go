// Package persistence keeps a data directory in sync with the in-memory
// shards.
//
// A data directory holds three files:
//
//	aether.snap  snapshot of every shard at some LSN
//	aether.wal   inserts logged after that snapshot
//	LOCK         held while a Manager has the directory open
//
// Every insert is appended to the WAL before it becomes visible. A checkpoint
// writes a fresh snapshot and empties the WAL. Recovery loads the snapshot and
// replays the WAL records it does not cover yet.
//
// When a backup blobstore.Store is configured, every checkpoint is copied to
// it in the background, and a directory without a snapshot is seeded from the
// backup on recovery.
package persistence
