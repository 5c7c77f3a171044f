package persistence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hupe1980/aether/resource"
	"github.com/hupe1980/aether/snapshot"
)

// ErrNoBackup is returned by Backup when no backup store is configured.
var ErrNoBackup = errors.New("persistence: no backup store configured")

// Backup uploads the current snapshot to the backup store and waits for it.
func (m *Manager) Backup(ctx context.Context) error {
	if m.opts.Backup == nil {
		return ErrNoBackup
	}
	if m.closed.Load() {
		return ErrClosed
	}
	return m.upload(ctx, 0, true)
}

// upload copies the snapshot file to the backup store. Uploads run one at a
// time. Unless force is set, an upload for an LSN that is already backed up
// is skipped, so an older checkpoint never overwrites a newer one.
func (m *Manager) upload(ctx context.Context, lsn uint64, force bool) error {
	if err := m.opts.Resources.AcquireBackground(ctx); err != nil {
		return err
	}
	defer m.opts.Resources.ReleaseBackground()

	m.uploadMu.Lock()
	defer m.uploadMu.Unlock()

	if !force && lsn <= m.uploadedLSN && m.uploadCount.Load() > 0 {
		return nil
	}

	start := time.Now()
	path := m.path(SnapshotFile)
	f, err := m.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return m.uploadFailed(path, err)
	}
	defer f.Close()

	h, err := snapshot.ReadHeader(f)
	if err != nil {
		return m.uploadFailed(path, err)
	}
	// Another checkpoint may have replaced the file since it was scheduled.
	if !force && h.LSN <= m.uploadedLSN && m.uploadCount.Load() > 0 {
		return nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return m.uploadFailed(path, err)
	}
	info, err := f.Stat()
	if err != nil {
		return m.uploadFailed(path, err)
	}

	r := resource.NewRateLimitedReader(ctx, f, m.opts.Resources)
	if err := m.opts.Backup.Put(ctx, SnapshotFile, r, info.Size()); err != nil {
		return m.uploadFailed(path, err)
	}

	m.uploadedLSN = h.LSN
	m.uploadCount.Add(1)
	m.logger.Info("snapshot uploaded",
		"path", path,
		"lsn", h.LSN,
		"bytes", info.Size(),
		"duration", time.Since(start),
	)
	return nil
}

func (m *Manager) uploadFailed(path string, err error) error {
	m.uploadFailures.Add(1)
	m.logger.Error("snapshot upload failed", "path", path, "error", err)
	return fmt.Errorf("persistence: upload snapshot: %w", err)
}
