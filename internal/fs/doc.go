// Package fs abstracts the handful of filesystem operations the WAL, the
// snapshot writer and the persistence manager need, so tests can inject IO
// failures.
//
//   - [LocalFS] is the production implementation on top of package os.
//   - [FaultyFS] wraps another FileSystem and fails writes, syncs, renames or
//     opens for files whose name contains a configured pattern.
//
// Production code uses fs.Default:
//
//	f, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests inject a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".wal", fs.Fault{FailOnSync: true})
//
// Operations take no context.Context: local file syscalls cannot be
// interrupted.
package fs
