package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/aether/blobstore"
	afs "github.com/hupe1980/aether/internal/fs"
	"github.com/hupe1980/aether/internal/lock"
	"github.com/hupe1980/aether/model"
	"github.com/hupe1980/aether/resource"
	"github.com/hupe1980/aether/snapshot"
	"github.com/hupe1980/aether/wal"
)

const (
	// SnapshotFile is the snapshot name, in the data directory and in the
	// backup store.
	SnapshotFile = "aether.snap"

	// WALFile is the write-ahead log name.
	WALFile = "aether.wal"

	// DefaultCheckpointBytes is the WAL size that triggers a checkpoint.
	DefaultCheckpointBytes = 64 << 20
)

// ErrClosed is returned by operations on a closed Manager.
var ErrClosed = errors.New("persistence: manager is closed")

// Options configures a Manager.
type Options struct {
	// Dir is the data directory. Required.
	Dir string

	// FS is the file system. Default: afs.Default.
	FS afs.FileSystem

	// Durability of WAL appends. Default: wal.DurabilitySync.
	Durability wal.Durability

	// Compression of snapshots. Default: snapshot.CompressionNone.
	Compression snapshot.Compression

	// CheckpointBytes triggers a checkpoint once the WAL grows past it.
	// 0 uses DefaultCheckpointBytes, a negative value disables it.
	CheckpointBytes int64

	// CheckpointEvery triggers a checkpoint after that many logged inserts.
	// 0 disables it.
	CheckpointEvery int

	// Backup receives a copy of every snapshot. Optional.
	Backup blobstore.Store

	// Resources throttles backup uploads. Optional.
	Resources *resource.Controller

	Logger *slog.Logger
}

// Stats describes the persisted state.
type Stats struct {
	WALBytes       int64
	WALRecords     int
	LastLSN        uint64
	Checkpoints    uint64
	LastCheckpoint time.Time
	Uploads        uint64
	UploadFailures uint64
}

// Manager owns a locked data directory.
type Manager struct {
	opts   Options
	fs     afs.FileSystem
	logger *slog.Logger
	lock   *lock.Lock
	wal    *wal.WAL

	// mu serializes checkpoints and Close.
	mu     sync.Mutex
	closed atomic.Bool

	checkpoints    atomic.Uint64
	lastCheckpoint atomic.Int64

	uploads        errgroup.Group
	uploadMu       sync.Mutex
	uploadedLSN    uint64
	uploadCount    atomic.Uint64
	uploadFailures atomic.Uint64
	uploadCtx      context.Context
	uploadCancel   context.CancelFunc
}

// Open locks opts.Dir, creating it if needed, and opens the WAL.
//
// A WAL whose header cannot be read is moved aside and replaced with an
// empty one.
func Open(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, errors.New("persistence: data directory is required")
	}
	if opts.FS == nil {
		opts.FS = afs.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.CheckpointBytes == 0 {
		opts.CheckpointBytes = DefaultCheckpointBytes
	}

	if err := opts.FS.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create data directory: %w", err)
	}

	lk, err := lock.Acquire(opts.FS, opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("persistence: lock %s: %w", opts.Dir, err)
	}

	m := &Manager{
		opts:   opts,
		fs:     opts.FS,
		logger: opts.Logger,
		lock:   lk,
	}

	w, err := m.openWAL()
	if err != nil {
		_ = lk.Release()
		return nil, err
	}
	m.wal = w
	m.uploadCtx, m.uploadCancel = context.WithCancel(context.Background())
	return m, nil
}

func (m *Manager) openWAL() (*wal.WAL, error) {
	path := m.path(WALFile)
	walOpts := wal.Options{
		Durability: m.opts.Durability,
		FS:         m.fs,
		Logger:     m.logger,
	}

	w, err := wal.Open(path, walOpts)
	if errors.Is(err, wal.ErrInvalidHeader) || errors.Is(err, wal.ErrIncompatibleVersion) {
		moved, qerr := m.quarantine(path)
		if qerr != nil {
			return nil, fmt.Errorf("persistence: quarantine wal: %w", qerr)
		}
		m.logger.Error("wal unreadable, starting a new log", "path", moved, "error", err)
		w, err = wal.Open(path, walOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: open wal: %w", err)
	}
	return w, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.opts.Dir, name)
}

// quarantine renames path out of the way and returns the new name.
func (m *Manager) quarantine(path string) (string, error) {
	moved := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := m.fs.Rename(path, moved); err != nil {
		return "", err
	}
	_ = afs.SyncDir(m.fs, m.opts.Dir)
	return moved, nil
}

// LogInsert appends an insert to the WAL. In sync mode it returns once the
// record is on stable storage.
func (m *Manager) LogInsert(id string, vector []float32) error {
	if m.closed.Load() {
		return ErrClosed
	}
	_, err := m.wal.Append(&wal.Record{
		Type:   wal.RecordTypeInsert,
		ID:     id,
		Vector: vector,
	})
	return err
}

// NeedsCheckpoint reports whether the WAL grew past a checkpoint threshold.
func (m *Manager) NeedsCheckpoint() bool {
	if m.closed.Load() {
		return false
	}
	if m.opts.CheckpointEvery > 0 && m.wal.Records() >= m.opts.CheckpointEvery {
		return true
	}
	return m.opts.CheckpointBytes > 0 && m.wal.Size() >= m.opts.CheckpointBytes
}

// Checkpoint writes set as the new snapshot and empties the WAL.
//
// set must reflect every record logged so far, and no insert may be logged
// until Checkpoint returns. set.LSN is overwritten with the last logged LSN.
// If the snapshot cannot be written the WAL is kept.
func (m *Manager) Checkpoint(ctx context.Context, set *model.ShardSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	set.LSN = m.wal.LastLSN()
	records := m.wal.Records()

	path := m.path(SnapshotFile)
	if err := snapshot.WriteFile(m.fs, path, set, m.opts.Compression); err != nil {
		m.logger.Error("checkpoint failed", "path", path, "lsn", set.LSN, "error", err)
		return fmt.Errorf("persistence: write snapshot: %w", err)
	}
	if err := m.wal.Reset(); err != nil {
		// The snapshot covers every record, so replaying them again is
		// harmless. The WAL itself is now unusable.
		m.logger.Error("wal reset failed", "path", m.wal.Path(), "error", err)
		return fmt.Errorf("persistence: reset wal: %w", err)
	}

	m.checkpoints.Add(1)
	m.lastCheckpoint.Store(time.Now().UnixNano())
	m.logger.Info("checkpoint completed",
		"path", path,
		"lsn", set.LSN,
		"records", set.Len(),
		"wal_records", records,
		"duration", time.Since(start),
	)

	if m.opts.Backup != nil {
		lsn := set.LSN
		m.uploads.Go(func() error {
			return m.upload(m.uploadCtx, lsn, false)
		})
	}
	return nil
}

// Stats returns a snapshot of the persistence counters.
func (m *Manager) Stats() Stats {
	st := Stats{
		WALBytes:       m.wal.Size(),
		WALRecords:     m.wal.Records(),
		LastLSN:        m.wal.LastLSN(),
		Checkpoints:    m.checkpoints.Load(),
		Uploads:        m.uploadCount.Load(),
		UploadFailures: m.uploadFailures.Load(),
	}
	if ns := m.lastCheckpoint.Load(); ns != 0 {
		st.LastCheckpoint = time.Unix(0, ns)
	}
	return st
}

// Close waits for background uploads, syncs and closes the WAL and releases
// the directory lock. It returns the first upload failure, if any.
// Closing twice is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	uploadErr := m.uploads.Wait()
	m.uploadCancel()

	return errors.Join(
		uploadErr,
		m.wal.Close(),
		m.lock.Release(),
	)
}
