package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aether/blobstore"
	"github.com/hupe1980/aether/engine"
	afs "github.com/hupe1980/aether/internal/fs"
	"github.com/hupe1980/aether/internal/lock"
	"github.com/hupe1980/aether/model"
	"github.com/hupe1980/aether/snapshot"
)

func openManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	m, err := Open(opts)
	require.NoError(t, err)
	return m
}

// logN logs n inserts and mirrors them into set.
func logN(t *testing.T, m *Manager, set *model.ShardSet, n int) {
	t.Helper()
	for i := range n {
		id := fmt.Sprintf("id-%03d-%d", i, set.Len())
		vec := []float32{float32(i), 1, 2}
		require.NoError(t, m.LogInsert(id, vec))
		set.Shards[engine.Route(id, len(set.Shards))][id] = vec
	}
	set.Dimension = 3
}

func TestManager_RecoverEmpty(t *testing.T) {
	m := openManager(t, Options{Dir: t.TempDir()})
	defer m.Close()

	set, st, err := m.Recover(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Len(t, set.Shards, 2)
	assert.Zero(t, set.Len())
	assert.Zero(t, set.Dimension)
	assert.False(t, st.SnapshotLoaded)
	assert.Zero(t, st.Replayed)
}

func TestManager_ReplayWAL(t *testing.T) {
	dir := t.TempDir()

	m := openManager(t, Options{Dir: dir})
	want := model.NewShardSet(2, 0)
	logN(t, m, want, 5)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m = openManager(t, Options{Dir: dir})
	defer m.Close()

	set, st, err := m.Recover(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Replayed)
	assert.Equal(t, 3, set.Dimension)
	assert.Equal(t, uint64(5), set.LSN)
	assert.Equal(t, want.Shards, set.Shards)
}

func TestManager_CheckpointThenReplayTail(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := openManager(t, Options{Dir: dir, Compression: snapshot.CompressionZstd})
	want := model.NewShardSet(2, 0)
	logN(t, m, want, 3)

	require.NoError(t, m.Checkpoint(ctx, cloneSet(want)))
	st := m.Stats()
	assert.Zero(t, st.WALRecords)
	assert.Equal(t, uint64(3), st.LastLSN)
	assert.Equal(t, uint64(1), st.Checkpoints)
	assert.False(t, st.LastCheckpoint.IsZero())

	logN(t, m, want, 2)
	require.NoError(t, m.Close())

	m = openManager(t, Options{Dir: dir})
	defer m.Close()

	set, rst, err := m.Recover(ctx, 2, 0)
	require.NoError(t, err)
	assert.True(t, rst.SnapshotLoaded)
	assert.Equal(t, 3, rst.SnapshotRecords)
	assert.Equal(t, uint64(3), rst.SnapshotLSN)
	assert.Equal(t, 2, rst.Replayed)
	assert.Equal(t, uint64(5), set.LSN)
	assert.Equal(t, want.Shards, set.Shards)

	// New records continue the LSN sequence.
	require.NoError(t, m.LogInsert("next", []float32{1, 1, 1}))
	assert.Equal(t, uint64(6), m.Stats().LastLSN)
}

func TestManager_CheckpointFailureKeepsWAL(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	faulty := afs.NewFaultyFS(nil)
	faulty.AddRule(SnapshotFile, afs.Fault{FailAfterBytes: -1, FailOnRename: true})

	m := openManager(t, Options{Dir: dir, FS: faulty})
	want := model.NewShardSet(2, 0)
	logN(t, m, want, 4)

	err := m.Checkpoint(ctx, cloneSet(want))
	require.ErrorIs(t, err, afs.ErrInjected)
	assert.Equal(t, 4, m.Stats().WALRecords)
	assert.Zero(t, m.Stats().Checkpoints)
	require.NoError(t, m.Close())

	_, err = os.Stat(filepath.Join(dir, SnapshotFile))
	assert.ErrorIs(t, err, os.ErrNotExist)

	m = openManager(t, Options{Dir: dir})
	defer m.Close()

	set, _, err := m.Recover(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, want.Shards, set.Shards)
}

func TestManager_LogInsertFailure(t *testing.T) {
	faulty := afs.NewFaultyFS(nil)
	// The 12 byte header fits, the first record does not.
	faulty.AddRule(WALFile, afs.Fault{FailAfterBytes: 12})

	m := openManager(t, Options{Dir: t.TempDir(), FS: faulty})
	defer m.Close()

	err := m.LogInsert("a", []float32{1, 2})
	require.ErrorIs(t, err, afs.ErrInjected)
}

func TestManager_SyncFailure(t *testing.T) {
	dir := t.TempDir()
	m := openManager(t, Options{Dir: dir})
	require.NoError(t, m.Close())

	faulty := afs.NewFaultyFS(nil)
	faulty.AddRule(WALFile, afs.Fault{FailAfterBytes: -1, FailOnSync: true})

	m = openManager(t, Options{Dir: dir, FS: faulty})
	defer m.Close()

	err := m.LogInsert("a", []float32{1, 2})
	require.ErrorIs(t, err, afs.ErrInjected)
}

func TestManager_ShardCountPersistedWins(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := openManager(t, Options{Dir: dir})
	want := model.NewShardSet(3, 0)
	logN(t, m, want, 6)
	require.NoError(t, m.Checkpoint(ctx, cloneSet(want)))
	require.NoError(t, m.Close())

	m = openManager(t, Options{Dir: dir})
	defer m.Close()

	set, st, err := m.Recover(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ShardCount)
	assert.Equal(t, want.Shards, set.Shards)
}

func TestManager_DimensionConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot", func(t *testing.T) {
		dir := t.TempDir()
		m := openManager(t, Options{Dir: dir})
		set := model.NewShardSet(2, 0)
		logN(t, m, set, 2)
		require.NoError(t, m.Checkpoint(ctx, cloneSet(set)))
		require.NoError(t, m.Close())

		m = openManager(t, Options{Dir: dir})
		defer m.Close()

		_, _, err := m.Recover(ctx, 2, 4)
		var dm *engine.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
		assert.Equal(t, 4, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
	})

	t.Run("wal", func(t *testing.T) {
		dir := t.TempDir()
		m := openManager(t, Options{Dir: dir})
		logN(t, m, model.NewShardSet(2, 0), 2)
		require.NoError(t, m.Close())

		m = openManager(t, Options{Dir: dir})
		defer m.Close()

		_, _, err := m.Recover(ctx, 2, 8)
		var dm *engine.ErrDimensionMismatch
		require.ErrorAs(t, err, &dm)
	})

	t.Run("matching", func(t *testing.T) {
		m := openManager(t, Options{Dir: t.TempDir()})
		defer m.Close()

		set, _, err := m.Recover(ctx, 2, 5)
		require.NoError(t, err)
		assert.Equal(t, 5, set.Dimension)
	})
}

func TestManager_CorruptSnapshotQuarantined(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, SnapshotFile), []byte("definitely not a snapshot"), 0o644))

	m := openManager(t, Options{Dir: dir})
	defer m.Close()

	set, st, err := m.Recover(ctx, 2, 0)
	require.NoError(t, err)
	assert.Zero(t, set.Len())
	assert.False(t, st.SnapshotLoaded)
	require.NotEmpty(t, st.Quarantined)
	assert.True(t, strings.HasPrefix(filepath.Base(st.Quarantined), SnapshotFile+".corrupt-"))

	_, err = os.Stat(st.Quarantined)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, SnapshotFile))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestManager_TornWALTail(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := openManager(t, Options{Dir: dir})
	want := model.NewShardSet(2, 0)
	logN(t, m, want, 3)
	require.NoError(t, m.Close())

	f, err := os.OpenFile(filepath.Join(dir, WALFile), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	m = openManager(t, Options{Dir: dir})
	defer m.Close()

	set, st, err := m.Recover(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Replayed)
	assert.Equal(t, int64(6), st.WALTruncatedBytes)
	assert.Equal(t, want.Shards, set.Shards)
}

func TestManager_InvalidWALHeaderQuarantined(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, WALFile), []byte("NOTAWALFILE!trailing"), 0o644))

	m := openManager(t, Options{Dir: dir})
	defer m.Close()

	matches, err := filepath.Glob(filepath.Join(dir, WALFile+".corrupt-*"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	require.NoError(t, m.LogInsert("a", []float32{1}))
}

func TestManager_DirectoryLocked(t *testing.T) {
	dir := t.TempDir()

	m := openManager(t, Options{Dir: dir})

	_, err := Open(Options{Dir: dir})
	require.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, m.Close())

	m = openManager(t, Options{Dir: dir})
	require.NoError(t, m.Close())
}

func TestManager_NeedsCheckpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("records", func(t *testing.T) {
		m := openManager(t, Options{Dir: t.TempDir(), CheckpointEvery: 2, CheckpointBytes: -1})
		defer m.Close()

		set := model.NewShardSet(2, 0)
		logN(t, m, set, 1)
		assert.False(t, m.NeedsCheckpoint())
		logN(t, m, set, 1)
		assert.True(t, m.NeedsCheckpoint())

		require.NoError(t, m.Checkpoint(ctx, cloneSet(set)))
		assert.False(t, m.NeedsCheckpoint())
	})

	t.Run("bytes", func(t *testing.T) {
		m := openManager(t, Options{Dir: t.TempDir(), CheckpointBytes: 64})
		defer m.Close()

		assert.False(t, m.NeedsCheckpoint())
		logN(t, m, model.NewShardSet(2, 0), 3)
		assert.True(t, m.NeedsCheckpoint())
	})
}

func TestManager_Closed(t *testing.T) {
	m := openManager(t, Options{Dir: t.TempDir()})
	require.NoError(t, m.Close())

	assert.ErrorIs(t, m.LogInsert("a", []float32{1}), ErrClosed)
	assert.ErrorIs(t, m.Checkpoint(context.Background(), model.NewShardSet(1, 0)), ErrClosed)
	_, _, err := m.Recover(context.Background(), 1, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, m.NeedsCheckpoint())
}

func TestManager_BackupRestore(t *testing.T) {
	ctx := context.Background()
	backup := blobstore.NewMemoryStore()

	m := openManager(t, Options{Dir: t.TempDir(), Backup: backup, Compression: snapshot.CompressionLZ4})
	want := model.NewShardSet(2, 0)
	logN(t, m, want, 4)
	require.NoError(t, m.Checkpoint(ctx, cloneSet(want)))
	// Close waits for the background upload.
	require.NoError(t, m.Close())
	assert.Equal(t, uint64(1), m.Stats().Uploads)

	names, err := backup.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{SnapshotFile}, names)

	// A fresh directory is seeded from the backup.
	m = openManager(t, Options{Dir: t.TempDir(), Backup: backup})
	defer m.Close()

	set, st, err := m.Recover(ctx, 2, 0)
	require.NoError(t, err)
	assert.True(t, st.RestoredFromBackup)
	assert.True(t, st.SnapshotLoaded)
	assert.Equal(t, want.Shards, set.Shards)
	assert.Equal(t, uint64(4), set.LSN)
}

func TestManager_BackupEmptyStore(t *testing.T) {
	m := openManager(t, Options{Dir: t.TempDir(), Backup: blobstore.NewMemoryStore()})
	defer m.Close()

	set, st, err := m.Recover(context.Background(), 2, 0)
	require.NoError(t, err)
	assert.False(t, st.RestoredFromBackup)
	assert.Zero(t, set.Len())
}

func TestManager_ExplicitBackup(t *testing.T) {
	ctx := context.Background()

	m := openManager(t, Options{Dir: t.TempDir()})
	assert.ErrorIs(t, m.Backup(ctx), ErrNoBackup)
	require.NoError(t, m.Close())

	backup := blobstore.NewLocalStore(t.TempDir())
	m = openManager(t, Options{Dir: t.TempDir(), Backup: backup})
	defer m.Close()

	// Nothing to upload before the first checkpoint.
	require.Error(t, m.Backup(ctx))
	assert.Equal(t, uint64(1), m.Stats().UploadFailures)

	require.NoError(t, m.Checkpoint(ctx, model.NewShardSet(2, 0)))
	require.NoError(t, m.Backup(ctx))

	rc, err := backup.Get(ctx, SnapshotFile)
	require.NoError(t, err)
	defer rc.Close()
	h, err := snapshot.ReadHeader(rc)
	require.NoError(t, err)
	assert.Equal(t, 2, h.ShardCount)
}

func cloneSet(s *model.ShardSet) *model.ShardSet {
	out := model.NewShardSet(len(s.Shards), s.Dimension)
	out.LSN = s.LSN
	for i, shard := range s.Shards {
		for id, v := range shard {
			out.Shards[i][id] = append([]float32(nil), v...)
		}
	}
	return out
}
