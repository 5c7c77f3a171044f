// Package wal implements the append-only write-ahead log of inserts.
//
// A log file starts with a 12 byte header (magic "AETHRWAL" and a format
// version) followed by checksummed records. Each record gets the next log
// sequence number (LSN) when it is appended.
//
// In DurabilitySync mode Append returns only after the record is fsynced.
// Concurrent appenders share fsyncs: a background syncer flushes everything
// written so far and wakes every waiter covered by it (group commit).
//
// Opening an existing log validates every record. The log is cut back to the
// last intact record if the tail is torn or fails its checksum, so a crash in
// the middle of an append never blocks recovery.
package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	afs "github.com/hupe1980/aether/internal/fs"
)

// Durability controls when Append returns.
type Durability int

const (
	// DurabilitySync waits for fsync (group commit). Default.
	DurabilitySync Durability = iota
	// DurabilityAsync returns once the record reached the OS page cache.
	DurabilityAsync
)

func (d Durability) String() string {
	switch d {
	case DurabilitySync:
		return "sync"
	case DurabilityAsync:
		return "async"
	}
	return fmt.Sprintf("Durability(%d)", int(d))
}

// ParseDurability parses "sync" or "async".
func ParseDurability(s string) (Durability, error) {
	switch s {
	case "", "sync":
		return DurabilitySync, nil
	case "async":
		return DurabilityAsync, nil
	}
	return 0, fmt.Errorf("wal: unknown durability %q", s)
}

const (
	magic      = "AETHRWAL"
	version    = 1
	headerSize = 12
)

var (
	ErrIncompatibleVersion = errors.New("wal: incompatible version")
	ErrInvalidHeader       = errors.New("wal: invalid header")
)

// Options configures a WAL.
type Options struct {
	Durability Durability
	FS         afs.FileSystem
	Logger     *slog.Logger
}

// OpenStats describes what Open found in an existing log.
type OpenStats struct {
	Records        int
	LastLSN        uint64
	TruncatedBytes int64
	// TailErr is the decode error that ended the scan early, if any.
	TailErr error
}

// WAL is an open log file.
type WAL struct {
	mu      sync.Mutex
	fs      afs.FileSystem
	file    afs.File
	path    string
	opts    Options
	logger  *slog.Logger
	buf     *bufio.Writer
	scratch []byte

	size    int64 // end of the last appended record
	records int
	lastLSN uint64
	stats   OpenStats

	// Group commit.
	synced   int64
	syncCond *sync.Cond // wakes the syncer
	doneCond *sync.Cond // wakes waiters after a sync
	closed   bool
	lastErr  error // terminal; set when a sync fails
	wg       sync.WaitGroup
}

// Open opens or creates the log at path.
func Open(path string, opts Options) (*WAL, error) {
	if opts.FS == nil {
		opts.FS = afs.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	f, err := opts.FS.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	w := &WAL{
		fs:     opts.FS,
		file:   f,
		path:   path,
		opts:   opts,
		logger: opts.Logger,
	}
	if err := w.init(); err != nil {
		_ = f.Close()
		return nil, err
	}

	w.buf = bufio.NewWriter(f)
	w.synced = w.size
	w.syncCond = sync.NewCond(&w.mu)
	w.doneCond = sync.NewCond(&w.mu)

	if opts.Durability == DurabilitySync {
		w.wg.Add(1)
		go w.runSyncer()
	}
	return w, nil
}

// init validates the header and scans the existing records.
func (w *WAL) init() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}

	if info.Size() < headerSize {
		// New file, or a crash before the header reached disk.
		if err := w.file.Truncate(0); err != nil {
			return err
		}
		var header [headerSize]byte
		copy(header[:8], magic)
		binary.LittleEndian.PutUint32(header[8:], version)
		if _, err := w.file.Write(header[:]); err != nil {
			return err
		}
		if err := w.file.Sync(); err != nil {
			return err
		}
		w.size = headerSize
		return nil
	}

	var header [headerSize]byte
	if _, err := w.file.ReadAt(header[:], 0); err != nil {
		return err
	}
	if string(header[:8]) != magic {
		return fmt.Errorf("%w: magic %q", ErrInvalidHeader, header[:8])
	}
	if v := binary.LittleEndian.Uint32(header[8:]); v != version {
		return fmt.Errorf("%w: %d (expected %d)", ErrIncompatibleVersion, v, version)
	}

	valid := int64(headerSize)
	r := bufio.NewReader(io.NewSectionReader(w.file, headerSize, info.Size()-headerSize))
	for {
		rec, n, err := Decode(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.stats.TailErr = err
			}
			break
		}
		valid += n
		w.records++
		w.lastLSN = max(w.lastLSN, rec.LSN)
	}

	if valid < info.Size() {
		w.stats.TruncatedBytes = info.Size() - valid
		w.logger.Warn("wal tail truncated",
			"path", w.path,
			"offset", valid,
			"bytes", w.stats.TruncatedBytes,
			"error", w.stats.TailErr,
		)
		if err := w.file.Truncate(valid); err != nil {
			return err
		}
		if err := w.file.Sync(); err != nil {
			return err
		}
	}

	w.size = valid
	w.stats.Records = w.records
	w.stats.LastLSN = w.lastLSN
	return nil
}

// Stats reports what Open found.
func (w *WAL) Stats() OpenStats { return w.stats }

// Path returns the file path.
func (w *WAL) Path() string { return w.path }

// Size returns the current size of the log in bytes, header included.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Records returns the number of records in the log.
func (w *WAL) Records() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records
}

// LastLSN returns the highest LSN handed out so far.
func (w *WAL) LastLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastLSN
}

// AdvanceLSN makes sure the next record gets an LSN above lsn.
func (w *WAL) AdvanceLSN(lsn uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastLSN = max(w.lastLSN, lsn)
}

func (w *WAL) runSyncer() {
	defer w.wg.Done()
	w.mu.Lock()
	defer w.mu.Unlock()

	for {
		for w.size <= w.synced && !w.closed {
			w.syncCond.Wait()
		}
		if w.closed && w.size <= w.synced {
			return
		}

		target := w.size
		w.mu.Unlock()
		err := w.file.Sync()
		w.mu.Lock()

		if err != nil {
			w.lastErr = fmt.Errorf("wal: sync: %w", err)
			w.doneCond.Broadcast()
			return
		}
		w.synced = max(w.synced, target)
		w.doneCond.Broadcast()
	}
}

// Append assigns the next LSN to rec, writes it and, in sync mode, waits
// until it is on stable storage. It returns the assigned LSN.
func (w *WAL) Append(rec *Record) (uint64, error) {
	lsn, end, err := w.append(rec)
	if err != nil {
		return 0, err
	}
	if w.opts.Durability == DurabilitySync {
		if err := w.waitFor(end); err != nil {
			return 0, err
		}
	}
	return lsn, nil
}

func (w *WAL) append(rec *Record) (uint64, int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, 0, os.ErrClosed
	}
	if w.lastErr != nil {
		return 0, 0, w.lastErr
	}

	if rec.Type == 0 {
		rec.Type = RecordTypeInsert
	}
	rec.LSN = w.lastLSN + 1

	var err error
	w.scratch, err = rec.AppendBinary(w.scratch[:0])
	if err != nil {
		return 0, 0, err
	}
	if _, err := w.buf.Write(w.scratch); err != nil {
		return 0, 0, w.fail(err)
	}
	if err := w.buf.Flush(); err != nil {
		return 0, 0, w.fail(err)
	}

	w.lastLSN = rec.LSN
	w.size += int64(len(w.scratch))
	w.records++

	if w.opts.Durability == DurabilitySync {
		w.syncCond.Signal()
	}
	return rec.LSN, w.size, nil
}

// fail makes a write error terminal. A partially written record would
// otherwise be followed by valid ones and hide them from replay.
func (w *WAL) fail(err error) error {
	w.lastErr = fmt.Errorf("wal: write: %w", err)
	return w.lastErr
}

func (w *WAL) waitFor(offset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.synced < offset && !w.closed && w.lastErr == nil {
		w.doneCond.Wait()
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if w.synced < offset {
		return os.ErrClosed
	}
	return nil
}

// Sync forces everything appended so far to stable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return os.ErrClosed
	}
	if w.lastErr != nil {
		w.mu.Unlock()
		return w.lastErr
	}
	if w.opts.Durability == DurabilityAsync {
		defer w.mu.Unlock()
		if err := w.file.Sync(); err != nil {
			return err
		}
		w.synced = w.size
		return nil
	}
	target := w.size
	w.syncCond.Signal()
	w.mu.Unlock()
	return w.waitFor(target)
}

// Reset drops every record, keeping the header and the LSN counter. It is
// called once the records are covered by a snapshot. The caller must make
// sure no Append runs concurrently.
func (w *WAL) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return os.ErrClosed
	}
	if w.lastErr != nil {
		return w.lastErr
	}
	if err := w.file.Truncate(headerSize); err != nil {
		return w.fail(err)
	}
	if err := w.file.Sync(); err != nil {
		return w.fail(err)
	}
	w.buf.Reset(w.file)
	w.size = headerSize
	w.synced = headerSize
	w.records = 0
	return nil
}

// Replay calls fn for every record in the log, in append order.
func (w *WAL) Replay(fn func(rec *Record) error) error {
	w.mu.Lock()
	end := w.size
	w.mu.Unlock()

	f, err := w.fs.OpenFile(w.path, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(io.NewSectionReader(f, headerSize, end-headerSize))
	for {
		rec, _, err := Decode(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Close syncs and closes the log. Closing twice returns os.ErrClosed.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return os.ErrClosed
	}
	w.closed = true
	w.syncCond.Signal()
	w.mu.Unlock()

	w.wg.Wait()

	var syncErr error
	if w.lastErr == nil {
		syncErr = w.file.Sync()
	}
	return errors.Join(syncErr, w.file.Close())
}
