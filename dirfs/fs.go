// Package dirfs provides the narrow filesystem contract dircache's engine
// is built against, plus a production and a fault-injecting implementation.
//
// dircache's hard core (path safety, manifest parsing, generational
// promotion) treats the filesystem as an external collaborator. The one
// exception is the manifest file, which is written through
// github.com/natefinch/atomic and chmodded and removed through the os
// package directly. That keeps the promotion algorithm
// in entry.go testable against an in-memory double and, more usefully,
// against [Chaos], which can fail a chosen call to reproduce the
// mid-promotion failure this system accepts as risk.
//
// Paths use OS semantics (os/path/filepath), not the slash-separated paths
// of the standard library io/fs package.
package dirfs

import "os"

// FS defines the filesystem operations dircache needs: whole-file reads and
// writes, directory creation and listing, rename, and removal. There is
// deliberately no streaming Open/Create/OpenFile surface and no File type —
// every entry and manifest in this system is small enough to read and write
// in one call.
//
// Implementations must be safe for use by a single goroutine at a time;
// dircache itself has no internal locking (see the Cache doc comment).
type FS interface {
	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating it if necessary and
	// truncating it if it already exists. See [os.WriteFile]. Not atomic:
	// callers that need atomicity (the manifest codec) use
	// github.com/natefinch/atomic directly instead of going through FS.
	// Generation-file writes are plain overwrites through this method.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// ReadDir reads a directory and returns its entries, sorted by name.
	// See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all necessary parents. See
	// [os.MkdirAll]. No error if the directory already exists.
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat]. Returns an error satisfying
	// [os.IsNotExist] if the path does not exist.
	Stat(path string) (os.FileInfo, error)

	// Remove deletes a single file or empty directory. See [os.Remove].
	// Deleting an absent path is not an error for dircache's purposes;
	// callers check os.IsNotExist themselves (generation files are
	// routinely removed best-effort during truncation/promotion).
	Remove(path string) error

	// RemoveAll deletes a path and all children. See [os.RemoveAll]. No
	// error if the path does not exist.
	RemoveAll(path string) error

	// Rename moves/renames a file or directory. See [os.Rename]. Atomic on
	// the same filesystem; this is the operation generation promotion
	// relies on.
	Rename(oldpath, newpath string) error
}

// Exists reports whether path exists, using fsys.Stat. Returns (false, nil)
// when the path is absent, (false, err) for any other Stat failure.
func Exists(fsys FS, path string) (bool, error) {
	_, err := fsys.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}
