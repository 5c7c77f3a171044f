package wal

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/aether/internal/fs"
)

func openTest(t *testing.T, path string, opts Options) *WAL {
	t.Helper()
	w, err := Open(path, opts)
	require.NoError(t, err)
	return w
}

func collect(t *testing.T, w *WAL) []*Record {
	t.Helper()
	var out []*Record
	require.NoError(t, w.Replay(func(rec *Record) error {
		out = append(out, rec)
		return nil
	}))
	return out
}

func TestWAL_AppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aether.wal")
	w := openTest(t, path, Options{})

	lsn, err := w.Append(&Record{ID: "a", Vector: []float32{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lsn)
	lsn, err = w.Append(&Record{ID: "b", Vector: []float32{0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), lsn)

	assert.Equal(t, 2, w.Records())
	assert.Greater(t, w.Size(), int64(headerSize))
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), os.ErrClosed)

	w = openTest(t, path, Options{})
	defer w.Close()

	st := w.Stats()
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, uint64(2), st.LastLSN)
	assert.Zero(t, st.TruncatedBytes)

	recs := collect(t, w)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID)
	assert.Equal(t, []float32{1, 2, 3}, recs[0].Vector)
	assert.Equal(t, uint64(2), recs[1].LSN)

	lsn, err = w.Append(&Record{ID: "c", Vector: []float32{1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), lsn)
}

func TestWAL_TornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aether.wal")
	w := openTest(t, path, Options{})
	for _, id := range []string{"a", "b", "c"} {
		_, err := w.Append(&Record{ID: id, Vector: []float32{1, 2}})
		require.NoError(t, err)
	}
	full := w.Size()
	require.NoError(t, w.Close())

	// Cut the last record in half.
	require.NoError(t, os.Truncate(path, full-5))

	w = openTest(t, path, Options{})
	defer w.Close()

	st := w.Stats()
	assert.Equal(t, 2, st.Records)
	assert.Greater(t, st.TruncatedBytes, int64(0))
	assert.ErrorIs(t, st.TailErr, io.ErrUnexpectedEOF)

	recs := collect(t, w)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[1].ID)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, w.Size(), info.Size())

	// New records follow the intact ones.
	lsn, err := w.Append(&Record{ID: "d", Vector: []float32{3, 4}})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), lsn)
	assert.Len(t, collect(t, w), 3)
}

func TestWAL_ChecksumMismatchStopsReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aether.wal")
	w := openTest(t, path, Options{})
	_, err := w.Append(&Record{ID: "a", Vector: []float32{1}})
	require.NoError(t, err)
	second := w.Size()
	_, err = w.Append(&Record{ID: "b", Vector: []float32{2}})
	require.NoError(t, err)
	_, err = w.Append(&Record{ID: "c", Vector: []float32{3}})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[second+recordHeaderSize+2] ^= 0xFF // inside the ID of "b"
	require.NoError(t, os.WriteFile(path, data, 0644))

	w = openTest(t, path, Options{})
	defer w.Close()

	assert.ErrorIs(t, w.Stats().TailErr, ErrInvalidCRC)
	recs := collect(t, w)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)
}

func TestWAL_InvalidHeader(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.wal")
	require.NoError(t, os.WriteFile(bad, []byte("NOTAWALFILE!!!!"), 0644))
	_, err := Open(bad, Options{})
	assert.ErrorIs(t, err, ErrInvalidHeader)

	old := filepath.Join(dir, "old.wal")
	require.NoError(t, os.WriteFile(old, append([]byte(magic), 9, 0, 0, 0), 0644))
	_, err = Open(old, Options{})
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	// A header cut short by a crash is rewritten.
	short := filepath.Join(dir, "short.wal")
	require.NoError(t, os.WriteFile(short, []byte("AETH"), 0644))
	w := openTest(t, short, Options{})
	assert.Equal(t, int64(headerSize), w.Size())
	require.NoError(t, w.Close())
}

func TestWAL_Reset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aether.wal")
	w := openTest(t, path, Options{})

	for i := 0; i < 5; i++ {
		_, err := w.Append(&Record{ID: "x", Vector: []float32{float32(i)}})
		require.NoError(t, err)
	}
	require.NoError(t, w.Reset())
	assert.Equal(t, int64(headerSize), w.Size())
	assert.Equal(t, 0, w.Records())
	assert.Empty(t, collect(t, w))

	// LSNs keep counting.
	lsn, err := w.Append(&Record{ID: "y", Vector: []float32{1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), lsn)
	require.NoError(t, w.Close())

	w = openTest(t, path, Options{})
	defer w.Close()
	recs := collect(t, w)
	require.Len(t, recs, 1)
	assert.Equal(t, "y", recs[0].ID)
}

func TestWAL_AdvanceLSN(t *testing.T) {
	w := openTest(t, filepath.Join(t.TempDir(), "aether.wal"), Options{})
	defer w.Close()

	w.AdvanceLSN(41)
	w.AdvanceLSN(7)
	lsn, err := w.Append(&Record{ID: "a", Vector: []float32{1}})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), lsn)
	assert.Equal(t, uint64(42), w.LastLSN())
}

func TestWAL_GroupCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aether.wal")
	w := openTest(t, path, Options{Durability: DurabilitySync})

	const writers, each = 20, 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				_, err := w.Append(&Record{ID: "id", Vector: []float32{1, 2, 3}})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	w = openTest(t, path, Options{})
	defer w.Close()

	recs := collect(t, w)
	require.Len(t, recs, writers*each)
	for i, rec := range recs {
		assert.Equal(t, uint64(i+1), rec.LSN)
	}
}

func TestWAL_Async(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aether.wal")
	w := openTest(t, path, Options{Durability: DurabilityAsync})

	_, err := w.Append(&Record{ID: "a", Vector: []float32{1}})
	require.NoError(t, err)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	w = openTest(t, path, Options{})
	defer w.Close()
	assert.Len(t, collect(t, w), 1)
}

func TestWAL_SyncFailureIsTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aether.wal")
	require.NoError(t, openTest(t, path, Options{}).Close())

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("aether.wal", fs.Fault{FailAfterBytes: -1, FailOnSync: true})

	w := openTest(t, path, Options{FS: ffs, Durability: DurabilitySync})
	defer w.Close()

	_, err := w.Append(&Record{ID: "a", Vector: []float32{1}})
	assert.ErrorIs(t, err, fs.ErrInjected)

	_, err = w.Append(&Record{ID: "b", Vector: []float32{1}})
	assert.ErrorIs(t, err, fs.ErrInjected)
	assert.ErrorIs(t, w.Sync(), fs.ErrInjected)

	t.Run("FreshFile", func(t *testing.T) {
		// Header creation syncs, so Open itself fails.
		_, err := Open(filepath.Join(t.TempDir(), "aether.wal"), Options{FS: ffs})
		assert.ErrorIs(t, err, fs.ErrInjected)
	})
}

func TestWAL_WriteFailureIsTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aether.wal")
	ffs := fs.NewFaultyFS(nil)

	// Allow the header and one record, then fail.
	rec := &Record{ID: "a", Vector: []float32{1, 2}}
	ffs.AddRule("aether.wal", fs.Fault{FailAfterBytes: int64(headerSize + rec.Size())})

	w := openTest(t, path, Options{FS: ffs})
	defer w.Close()

	_, err := w.Append(rec)
	require.NoError(t, err)

	_, err = w.Append(&Record{ID: "b", Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, fs.ErrInjected)

	// Once failed, the log refuses further writes.
	ffs.ClearRules()
	_, err = w.Append(&Record{ID: "c", Vector: []float32{1, 2}})
	assert.ErrorIs(t, err, fs.ErrInjected)
}

func TestRecordEncoding(t *testing.T) {
	rec := &Record{Type: RecordTypeInsert, LSN: 9, ID: "3f1c", Vector: []float32{-1.5, 0, 2}}
	data, err := rec.AppendBinary(nil)
	require.NoError(t, err)
	assert.Len(t, data, rec.Size())

	got, n, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, rec, got)

	t.Run("UnknownType", func(t *testing.T) {
		bad := &Record{Type: 7, ID: "x", Vector: []float32{1}}
		data, err := bad.AppendBinary(nil)
		require.NoError(t, err)
		_, _, err = Decode(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrInvalidType)
	})

	t.Run("Empty", func(t *testing.T) {
		_, _, err := Decode(bytes.NewReader(nil))
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestParseDurability(t *testing.T) {
	d, err := ParseDurability("async")
	require.NoError(t, err)
	assert.Equal(t, DurabilityAsync, d)
	assert.Equal(t, "async", d.String())

	d, err = ParseDurability("")
	require.NoError(t, err)
	assert.Equal(t, DurabilitySync, d)

	_, err = ParseDurability("fsync-sometimes")
	assert.Error(t, err)
}
