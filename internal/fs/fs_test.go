package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	require.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Sync())
	require.NoError(t, f.Truncate(3))

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size())
	require.NoError(t, f.Close())

	entries, err := lfs.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	newPath := filepath.Join(dir, "renamed.txt")
	require.NoError(t, lfs.Rename(fpath, newPath))
	require.NoError(t, lfs.Remove(newPath))

	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.bin")

	t.Run("CreatesAndReplaces", func(t *testing.T) {
		require.NoError(t, WriteFileAtomic(nil, path, func(w io.Writer) error {
			_, err := w.Write([]byte("v1"))
			return err
		}))
		require.NoError(t, WriteFileAtomic(nil, path, func(w io.Writer) error {
			_, err := w.Write([]byte("v2"))
			return err
		}))

		data, err := ReadFile(nil, path)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(data))

		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("WriterErrorKeepsPrevious", func(t *testing.T) {
		boom := errors.New("boom")
		err := WriteFileAtomic(nil, path, func(w io.Writer) error { return boom })
		assert.ErrorIs(t, err, boom)

		data, err := ReadFile(nil, path)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(data))
	})

	t.Run("RenameFailureKeepsPrevious", func(t *testing.T) {
		ffs := NewFaultyFS(nil)
		ffs.AddRule(".tmp", Fault{FailAfterBytes: -1, FailOnRename: true})

		err := WriteFileAtomic(ffs, path, func(w io.Writer) error {
			_, err := w.Write([]byte("v3"))
			return err
		})
		assert.ErrorIs(t, err, ErrInjected)

		data, err := ReadFile(nil, path)
		require.NoError(t, err)
		assert.Equal(t, "v2", string(data))
		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))
	})
}

func TestFaultyFS(t *testing.T) {
	dir := t.TempDir()
	ffs := NewFaultyFS(nil)

	t.Run("FailAfterBytes", func(t *testing.T) {
		ffs.AddRule("limited", Fault{FailAfterBytes: 4})
		f, err := ffs.OpenFile(filepath.Join(dir, "limited.dat"), os.O_CREATE|os.O_RDWR, 0644)
		require.NoError(t, err)
		defer f.Close()

		_, err = f.Write([]byte("1234"))
		require.NoError(t, err)
		_, err = f.Write([]byte("5"))
		assert.ErrorIs(t, err, ErrInjected)
	})

	t.Run("FailOnSyncCustomError", func(t *testing.T) {
		diskFull := errors.New("no space left on device")
		ffs.AddRule("sync", Fault{FailAfterBytes: -1, FailOnSync: true, Err: diskFull})
		f, err := ffs.OpenFile(filepath.Join(dir, "sync.dat"), os.O_CREATE|os.O_RDWR, 0644)
		require.NoError(t, err)
		defer f.Close()

		assert.ErrorIs(t, f.Sync(), diskFull)
	})

	t.Run("FailOnOpen", func(t *testing.T) {
		ffs.AddRule("denied", Fault{FailOnOpen: true})
		_, err := ffs.OpenFile(filepath.Join(dir, "denied.dat"), os.O_CREATE|os.O_RDWR, 0644)
		assert.ErrorIs(t, err, ErrInjected)
	})

	t.Run("UnmatchedPassesThrough", func(t *testing.T) {
		f, err := ffs.OpenFile(filepath.Join(dir, "plain.dat"), os.O_CREATE|os.O_RDWR, 0644)
		require.NoError(t, err)
		_, err = f.Write(make([]byte, 1024))
		require.NoError(t, err)
		require.NoError(t, f.Sync())
		require.NoError(t, f.Close())
	})

	t.Run("ClearRules", func(t *testing.T) {
		ffs.ClearRules()
		f, err := ffs.OpenFile(filepath.Join(dir, "denied.dat"), os.O_CREATE|os.O_RDWR, 0644)
		require.NoError(t, err)
		require.NoError(t, f.Close())
	})
}
