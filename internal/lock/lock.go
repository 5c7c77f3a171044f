// Package lock guards a data directory against concurrent use by more than
// one process.
package lock

import (
	"errors"
	"os"
	"path/filepath"

	afs "github.com/hupe1980/aether/internal/fs"
)

// FileName is the name of the lock file created inside a data directory.
const FileName = "LOCK"

// ErrLocked is returned when another process holds the directory lock.
var ErrLocked = errors.New("data directory is locked by another process")

// fder is implemented by files backed by an OS descriptor, such as *os.File.
type fder interface {
	Fd() uintptr
}

// Lock is an exclusive advisory lock on a data directory.
type Lock struct {
	f afs.File
}

// Acquire takes the lock for dir without blocking. The lock file is created
// through fsys (nil means the local file system). Files that do not expose an
// OS descriptor are created but not locked.
func Acquire(fsys afs.FileSystem, dir string) (*Lock, error) {
	if fsys == nil {
		fsys = afs.Default
	}
	f, err := fsys.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if fd, ok := f.(fder); ok {
		if err := tryLock(fd.Fd()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &Lock{f: f}, nil
}

// Release drops the lock. It is safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	var err error
	if fd, ok := l.f.(fder); ok {
		err = unlock(fd.Fd())
	}
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
