package dircache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/calvinalkan/dircache/dirfs"
)

// Bytes is a borrowed-or-owned view over a value's bytes. Borrowed means
// the slice is the live in-memory copy held by the Cache (callers must
// not mutate it); owned means it was freshly read from disk and is not
// retained anywhere.
type Bytes struct {
	Content  []byte
	Borrowed bool
}

// Cache is a directory-backed generational key/value store. One Cache
// owns one root directory and the Entry for every key discovered under
// it or inserted since.
//
// Cache is not safe for concurrent use by multiple goroutines, nor for
// simultaneous use by multiple processes against the same root. Every
// operation blocks on filesystem I/O; there is no internal locking and no
// context.Context cancellation. Callers needing concurrent access must
// serialize externally.
type Cache struct {
	root  string
	fsys  dirfs.FS
	clock Clock
	opts  DirCacheOpts
	log   *slog.Logger

	entries map[string]*Entry
}

// Open opens root as a cache. With OnlyIfExists, root must already be a
// directory; with CreateIfMissing, it is created if absent. Either way, a
// file at that path fails with KindOpen.
//
// After establishing the root, Open performs a breadth-first scan: every
// directory reachable from root that carries a manifest becomes a
// registered entry under the key relativize(root, dir); directories
// without a manifest are still traversed for their children. The scan
// prunes expired generations under DefaultOpts, whose expiration is
// NoExpiry, so Open itself drops no generation; expiration set later with
// SetOpts or a per-call override is applied by Get.
func Open(root string, opts OpenOpts) (*Cache, error) {
	return open(dirfs.NewReal(), NewRealClock(), root, opts)
}

func open(fsys dirfs.FS, clk Clock, root string, opts OpenOpts) (*Cache, error) {
	info, err := fsys.Stat(root)

	switch {
	case err == nil && !info.IsDir():
		return nil, newErr(KindOpen, fmt.Errorf("%w: %q is not a directory", ErrOpen, root), withPath(root))

	case err != nil && !os.IsNotExist(err):
		return nil, newErr(KindOpen, fmt.Errorf("%w: stat root: %w", ErrOpen, err), withPath(root))

	case err != nil:
		if opts.DirOpen == OnlyIfExists {
			return nil, newErr(KindOpen, fmt.Errorf("%w: root %q does not exist", ErrOpen, root), withPath(root))
		}

		if err := fsys.MkdirAll(root, 0o755); err != nil {
			return nil, newErr(KindWriteContent, fmt.Errorf("%w: creating root: %w", ErrWriteContent, err), withPath(root))
		}
	}

	c := &Cache{
		root:    root,
		fsys:    fsys,
		clock:   clk,
		opts:    DefaultOpts(),
		entries: make(map[string]*Entry),
	}

	if err := c.scan(opts.EagerLoad); err != nil {
		return nil, err
	}

	return c, nil
}

// SetOpts replaces the Cache-level default options.
func (c *Cache) SetOpts(opts DirCacheOpts) {
	c.opts = opts
}

// SetLogger installs a logger used for the one diagnostic a Cache cannot
// otherwise report: a swallowed flush failure during Close. A nil logger
// discards.
func (c *Cache) SetLogger(logger *slog.Logger) {
	c.log = logger
}

// scan performs the breadth-first directory walk described on Open,
// registering every directory that yields an entry.
func (c *Cache) scan(eager bool) error {
	queue := []string{c.root}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entry, err := readFromDir(c.fsys, c.clock, dir, eager, c.opts.GenerationOpt)
		if err != nil {
			return err
		}

		if entry != nil {
			key, err := Relativize(c.root, dir)
			if err != nil {
				if dir == c.root {
					key = ""
				} else {
					return err
				}
			}

			c.entries[key] = entry
		}

		children, err := c.fsys.ReadDir(dir)
		if err != nil {
			return newErr(KindReadContent, fmt.Errorf("%w: scanning directory: %w", ErrReadContent, err), withPath(dir))
		}

		for _, child := range children {
			if child.IsDir() {
				queue = append(queue, filepath.Join(dir, child.Name()))
			}
		}
	}

	return nil
}

// Get reads key under the Cache's default options.
func (c *Cache) Get(key string) (Bytes, bool, error) {
	return c.GetOpt(key, c.opts)
}

// GetOpt reads key under an explicit option override.
func (c *Cache) GetOpt(key string, opts DirCacheOpts) (Bytes, bool, error) {
	entry, ok := c.entries[key]
	if !ok {
		return Bytes{}, false, nil
	}

	now, err := sinceEpoch(c.clock)
	if err != nil {
		return Bytes{}, false, err
	}

	if entryExpired(entry, opts.GenerationOpt, now) {
		if err := c.evict(key, entry); err != nil {
			return Bytes{}, false, err
		}

		return Bytes{}, false, nil
	}

	content, borrowed, found, err := getFromEntry(c.fsys, entry, opts.MemPullOpt)
	if err != nil {
		return Bytes{}, false, err
	}

	if !found {
		return Bytes{}, false, nil
	}

	return Bytes{Content: content, Borrowed: borrowed}, true, nil
}

// GetOrInsert returns key's value, inserting it via producer on a miss.
func (c *Cache) GetOrInsert(key string, producer func() ([]byte, error)) (Bytes, error) {
	return c.GetOrInsertOpt(key, producer, c.opts)
}

// GetOrInsertOpt is GetOrInsert with an explicit option override.
func (c *Cache) GetOrInsertOpt(key string, producer func() ([]byte, error), opts DirCacheOpts) (Bytes, error) {
	if val, ok, err := c.GetOpt(key, opts); err != nil {
		return Bytes{}, err
	} else if ok {
		return val, nil
	}

	data, err := producer()
	if err != nil {
		return Bytes{}, newErr(KindInsertWith, fmt.Errorf("%w: %w", ErrInsertWith, err), withKey(key))
	}

	dir, err := SafeJoin(c.root, key)
	if err != nil {
		return Bytes{}, err
	}

	entry, err := insertNewData(c.fsys, c.clock, dir, data, opts.MemPushOpt, opts.GenerationOpt)
	if err != nil {
		return Bytes{}, err
	}

	c.entries[key] = entry

	content, borrowed, _, err := getFromEntry(c.fsys, entry, opts.MemPullOpt)
	if err != nil {
		return Bytes{}, err
	}

	return Bytes{Content: content, Borrowed: borrowed}, nil
}

// Insert writes key's value under the Cache's default options.
func (c *Cache) Insert(key string, data []byte) error {
	return c.InsertOpt(key, data, c.opts)
}

// InsertOpt is Insert with an explicit option override.
func (c *Cache) InsertOpt(key string, data []byte, opts DirCacheOpts) error {
	dir, err := SafeJoin(c.root, key)
	if err != nil {
		return err
	}

	if entry, ok := c.entries[key]; ok {
		return runEntryWrite(c.fsys, c.clock, entry, data, opts.MemPushOpt, opts.GenerationOpt)
	}

	entry, err := insertNewData(c.fsys, c.clock, dir, data, opts.MemPushOpt, opts.GenerationOpt)
	if err != nil {
		return err
	}

	c.entries[key] = entry

	return nil
}

// Remove deletes key's manifest and generation files, and drops its entry
// from the map. It reports whether key was present. A foreign file or
// subdirectory left in the entry's directory prevents the directory
// itself from being removed, but never prevents the manifest/generation
// cleanup.
func (c *Cache) Remove(key string) (bool, error) {
	entry, ok := c.entries[key]
	if !ok {
		return false, nil
	}

	delete(c.entries, key)

	if err := c.removeManagedFiles(entry.Dir); err != nil {
		return false, err
	}

	empty, err := c.dirIsEmpty(entry.Dir)
	if err != nil {
		return false, err
	}

	if empty {
		if err := c.fsys.RemoveAll(entry.Dir); err != nil && !os.IsNotExist(err) {
			return false, newErr(KindDeleteContent, fmt.Errorf("%w: removing empty entry directory: %w", ErrDeleteContent, err), withPath(entry.Dir))
		}
	}

	return true, nil
}

// evict is Remove's internal twin, used when an entry expires out from
// under a read rather than being explicitly removed by the caller.
func (c *Cache) evict(key string, entry *Entry) error {
	delete(c.entries, key)

	if err := c.removeManagedFiles(entry.Dir); err != nil {
		return err
	}

	empty, err := c.dirIsEmpty(entry.Dir)
	if err != nil {
		return err
	}

	if empty {
		if err := c.fsys.RemoveAll(entry.Dir); err != nil && !os.IsNotExist(err) {
			return newErr(KindDeleteContent, fmt.Errorf("%w: removing expired entry directory: %w", ErrDeleteContent, err), withPath(entry.Dir))
		}
	}

	return nil
}

// removeManagedFiles deletes exactly the manifest and any dir-cache-generation-<n>
// file inside dir; every other name is left untouched.
func (c *Cache) removeManagedFiles(dir string) error {
	children, err := c.fsys.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return newErr(KindReadContent, fmt.Errorf("%w: listing entry directory: %w", ErrReadContent, err), withPath(dir))
	}

	for _, child := range children {
		name := child.Name()
		if name != ManifestFileName && !generationFilePattern.MatchString(name) {
			continue
		}

		path := filepath.Join(dir, name)
		if err := c.fsys.Remove(path); err != nil && !os.IsNotExist(err) {
			return newErr(KindDeleteContent, fmt.Errorf("%w: removing %q: %w", ErrDeleteContent, name, err), withPath(path))
		}
	}

	return nil
}

func (c *Cache) dirIsEmpty(dir string) (bool, error) {
	children, err := c.fsys.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, newErr(KindReadContent, fmt.Errorf("%w: checking entry directory: %w", ErrReadContent, err), withPath(dir))
	}

	return len(children) == 0, nil
}

// Sync flushes every entry's uncommitted in-memory value to disk under
// the Cache's default options.
func (c *Cache) Sync() error {
	return c.SyncOpt(c.opts)
}

// SyncOpt is Sync with an explicit option override.
func (c *Cache) SyncOpt(opts DirCacheOpts) error {
	keepInMem := opts.MemPullOpt == KeepInMemoryOnRead

	for _, entry := range c.entries {
		if err := dumpInMem(c.fsys, c.clock, entry, keepInMem, opts.GenerationOpt); err != nil {
			return err
		}
	}

	return nil
}

// Close is the Go-native substitute for a destructor: Go has no implicit
// Drop, so SyncOnDrop's flush-on-scope-exit behavior is instead honored by
// this explicit method, which callers are expected to invoke when they are
// done with a Cache. Under SyncOnDrop, Close attempts one final Sync and
// swallows any error, logging it at debug level since there is no caller
// left to hand the error to. Under ManualSync, Close does nothing.
func (c *Cache) Close() error {
	if c.opts.SyncOpt != SyncOnDrop {
		return nil
	}

	if err := c.Sync(); err != nil && c.log != nil {
		c.log.Debug("dircache: sync on close failed", "root", c.root, "error", err)
	}

	return nil
}
