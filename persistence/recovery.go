package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/aether/blobstore"
	"github.com/hupe1980/aether/engine"
	afs "github.com/hupe1980/aether/internal/fs"
	"github.com/hupe1980/aether/model"
	"github.com/hupe1980/aether/snapshot"
	"github.com/hupe1980/aether/wal"
)

// RecoveryStats describes what Recover found.
type RecoveryStats struct {
	// ShardCount and Dimension of the recovered set.
	ShardCount int
	Dimension  int

	SnapshotLoaded     bool
	RestoredFromBackup bool
	SnapshotLSN        uint64
	SnapshotRecords    int

	// Quarantined is the new name of an unreadable snapshot, if any.
	Quarantined string

	Replayed int
	// Skipped counts WAL records already covered by the snapshot.
	Skipped int
	// Rejected counts WAL records whose dimension does not match.
	Rejected int

	WALTruncatedBytes int64
}

// Recover rebuilds the persisted state.
//
// Unreadable persisted state never fails recovery: a corrupt snapshot is
// quarantined and recovery continues without it. Recover only fails if
// dimension is non-zero and differs from the persisted dimension, or if an
// unreadable snapshot cannot be moved aside.
//
// When the snapshot was written with a different shard count than
// shardCount, the persisted count wins.
func (m *Manager) Recover(ctx context.Context, shardCount, dimension int) (*model.ShardSet, RecoveryStats, error) {
	var st RecoveryStats
	if m.closed.Load() {
		return nil, st, ErrClosed
	}
	if shardCount <= 0 {
		return nil, st, fmt.Errorf("%w: %d", engine.ErrInvalidShardCount, shardCount)
	}

	set, err := m.loadSnapshot(ctx, &st)
	if err != nil {
		return nil, st, err
	}

	if set == nil {
		set = model.NewShardSet(shardCount, 0)
	} else if n := len(set.Shards); n != shardCount {
		m.logger.Warn("persisted shard count differs from configuration, keeping persisted layout",
			"persisted", n,
			"configured", shardCount,
		)
	}

	st.SnapshotLSN = set.LSN
	st.SnapshotRecords = set.Len()
	m.wal.AdvanceLSN(set.LSN)

	if err := m.replay(ctx, set, &st); err != nil {
		return nil, st, err
	}

	// The persisted dimension is pinned by the snapshot or the first
	// replayed record. A configured one may only confirm it.
	if dimension != 0 {
		if set.Dimension != 0 && set.Dimension != dimension {
			return nil, st, &engine.ErrDimensionMismatch{Expected: dimension, Actual: set.Dimension}
		}
		set.Dimension = dimension
	}

	st.ShardCount = len(set.Shards)
	st.Dimension = set.Dimension
	st.WALTruncatedBytes = m.wal.Stats().TruncatedBytes

	m.logger.Info("recovery completed",
		"records", set.Len(),
		"shards", st.ShardCount,
		"dimension", st.Dimension,
		"lsn", set.LSN,
		"replayed", st.Replayed,
	)
	return set, st, nil
}

// loadSnapshot returns the local snapshot, the backup copy if there is no
// local one, or nil if neither can be read.
func (m *Manager) loadSnapshot(ctx context.Context, st *RecoveryStats) (*model.ShardSet, error) {
	path := m.path(SnapshotFile)

	set, err := snapshot.ReadFile(m.fs, path)
	if errors.Is(err, os.ErrNotExist) && m.opts.Backup != nil {
		restored, rerr := m.restoreBackup(ctx, path)
		if rerr != nil {
			m.logger.Warn("backup restore failed", "error", rerr)
			return nil, nil
		}
		if !restored {
			return nil, nil
		}
		st.RestoredFromBackup = true
		set, err = snapshot.ReadFile(m.fs, path)
	}

	switch {
	case err == nil:
		st.SnapshotLoaded = true
		return set, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	}

	moved, qerr := m.quarantine(path)
	if qerr != nil {
		return nil, fmt.Errorf("persistence: snapshot unreadable (%w) and cannot be moved aside: %w", err, qerr)
	}
	st.Quarantined = moved
	st.RestoredFromBackup = false
	m.logger.Error("snapshot unreadable, starting without it",
		"path", path,
		"quarantined", moved,
		"error", err,
	)
	return nil, nil
}

// restoreBackup copies the backup snapshot to path. It reports false if the
// backup store has none.
func (m *Manager) restoreBackup(ctx context.Context, path string) (bool, error) {
	rc, err := m.opts.Backup.Get(ctx, SnapshotFile)
	if errors.Is(err, blobstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer rc.Close()

	err = afs.WriteFileAtomic(m.fs, path, func(w io.Writer) error {
		_, err := io.Copy(w, rc)
		return err
	})
	if err != nil {
		return false, err
	}
	m.logger.Info("snapshot restored from backup", "path", path)
	return true, nil
}

func (m *Manager) replay(ctx context.Context, set *model.ShardSet, st *RecoveryStats) error {
	snapLSN := set.LSN
	n := len(set.Shards)

	err := m.wal.Replay(func(rec *wal.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.LSN <= snapLSN {
			st.Skipped++
			return nil
		}
		if len(rec.Vector) == 0 {
			st.Rejected++
			return nil
		}
		if set.Dimension == 0 {
			set.Dimension = len(rec.Vector)
		}
		if len(rec.Vector) != set.Dimension {
			st.Rejected++
			m.logger.Warn("wal record dimension mismatch, skipped",
				"id", rec.ID,
				"lsn", rec.LSN,
				"dimension", len(rec.Vector),
				"expected", set.Dimension,
			)
			return nil
		}
		set.Shards[engine.Route(rec.ID, n)][rec.ID] = rec.Vector
		set.LSN = max(set.LSN, rec.LSN)
		st.Replayed++
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Open already cut the log at the last intact record, so this is a
		// read error on a valid log. Keep what was replayed.
		m.logger.Error("wal replay stopped early", "replayed", st.Replayed, "error", err)
	}
	return nil
}
