package dirfs

import (
	"fmt"
	"os"
	"sync"
)

// Chaos wraps an [FS] and deterministically fails a chosen call to a chosen
// operation, letting tests reproduce the generation-promotion failure modes
// accepted as risk (see entry.go's generationalWrite): a Rename failing
// partway through the promotion loop leaves some generations
// duplicated on disk while the manifest still describes the pre-promotion
// layout.
//
// This is a deliberately narrow fault-injection surface compared to a
// full crash/restart simulator (see DESIGN.md): this cache's durability
// guarantee is exactly "no stronger than successive rename+write", so there
// is exactly one accepted-risk window to test (a failed rename
// mid-promotion). Chaos only needs to fail a deterministic Nth call to a
// named operation, not model torn writes or fsync ordering.
type Chaos struct {
	inner FS

	mu      sync.Mutex
	failAt  map[string]int // op -> 1-indexed call number to fail
	calls   map[string]int
	failErr error
}

// NewChaos wraps fsys. With no configured failures it behaves identically
// to fsys.
func NewChaos(fsys FS) *Chaos {
	return &Chaos{
		inner:  fsys,
		failAt: make(map[string]int),
		calls:  make(map[string]int),
	}
}

// FailNth arranges for the n-th call (1-indexed) to the named operation to
// return err instead of being forwarded to the wrapped FS. op is one of
// "ReadFile", "WriteFile", "ReadDir", "MkdirAll", "Stat", "Remove",
// "RemoveAll", "Rename". Calls before the n-th, and all calls to other
// operations, pass through unaffected.
func (c *Chaos) FailNth(op string, n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failAt[op] = n

	if err == nil {
		err = fmt.Errorf("dirfs: injected failure on %s call #%d", op, n)
	}

	c.failErr = err
}

// shouldFail records a call to op and reports whether it is the configured
// failure point.
func (c *Chaos) shouldFail(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[op]++

	if n, ok := c.failAt[op]; ok && c.calls[op] == n {
		return c.failErr
	}

	return nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if err := c.shouldFail("ReadFile"); err != nil {
		return nil, err
	}

	return c.inner.ReadFile(path)
}

func (c *Chaos) WriteFile(path string, data []byte, perm os.FileMode) error {
	if err := c.shouldFail("WriteFile"); err != nil {
		return err
	}

	return c.inner.WriteFile(path, data, perm)
}

func (c *Chaos) ReadDir(path string) ([]os.DirEntry, error) {
	if err := c.shouldFail("ReadDir"); err != nil {
		return nil, err
	}

	return c.inner.ReadDir(path)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	if err := c.shouldFail("MkdirAll"); err != nil {
		return err
	}

	return c.inner.MkdirAll(path, perm)
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if err := c.shouldFail("Stat"); err != nil {
		return nil, err
	}

	return c.inner.Stat(path)
}

func (c *Chaos) Remove(path string) error {
	if err := c.shouldFail("Remove"); err != nil {
		return err
	}

	return c.inner.Remove(path)
}

func (c *Chaos) RemoveAll(path string) error {
	if err := c.shouldFail("RemoveAll"); err != nil {
		return err
	}

	return c.inner.RemoveAll(path)
}

func (c *Chaos) Rename(oldpath, newpath string) error {
	if err := c.shouldFail("Rename"); err != nil {
		return err
	}

	return c.inner.Rename(oldpath, newpath)
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
