package dirfs

import "os"

// Real implements [FS] using the real filesystem. Every method is a
// passthrough to the os package with identical behavior and error
// semantics.
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

// ReadFile is a passthrough wrapper for [os.ReadFile].
func (*Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) //nolint:gosec // path is the caller's cache key, validated by SafeJoin upstream
}

// WriteFile is a passthrough wrapper for [os.WriteFile].
func (*Real) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

// ReadDir is a passthrough wrapper for [os.ReadDir].
func (*Real) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// MkdirAll is a passthrough wrapper for [os.MkdirAll].
func (*Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Stat is a passthrough wrapper for [os.Stat].
func (*Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Remove is a passthrough wrapper for [os.Remove].
func (*Real) Remove(path string) error {
	return os.Remove(path)
}

// RemoveAll is a passthrough wrapper for [os.RemoveAll].
func (*Real) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Rename is a passthrough wrapper for [os.Rename].
func (*Real) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
