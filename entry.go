package dircache

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/calvinalkan/dircache/dirfs"
)

// generationFilePattern matches a generation file's base name. Anything
// else inside an entry directory is a foreign file and never touched.
var generationFilePattern = regexp.MustCompile(`^dir-cache-generation-(\d+)$`)

func generationFileName(i int) string {
	return fmt.Sprintf("dir-cache-generation-%d", i)
}

// InMemValue is the RAM-resident copy of a key's current value.
type InMemValue struct {
	// Committed is true when Content is known to match generation-0 on
	// disk.
	Committed bool
	Content   []byte
}

// GenerationRecord is one entry in a key's generation list, position 0
// always the newest.
type GenerationRecord struct {
	Age      time.Duration
	Encoding Encoding
}

// Entry is the in-memory state for one key.
type Entry struct {
	// Dir is the absolute filesystem path of the entry's directory.
	Dir string

	InMem *InMemValue

	// OnDisk is the generation list, index 0 newest, length bounded by
	// GenerationOpt.MaxGenerations.
	OnDisk []GenerationRecord

	// LastUpdated is the duration since the epoch at which the entry was
	// last mutated, in memory or on disk.
	LastUpdated time.Duration
}

func manifestPath(dir string) string {
	return filepath.Join(dir, ManifestFileName)
}

// insertNewData is used when key did not previously exist in the Cache's
// map. It dispatches on push based on the write-placement matrix: both
// RAM and disk, RAM only, or disk only.
func insertNewData(fsys dirfs.FS, clk Clock, dir string, data []byte, push MemPushOpt, gen GenerationOpt) (*Entry, error) {
	now, err := sinceEpoch(clk)
	if err != nil {
		return nil, err
	}

	switch push {
	case RetainAndWrite:
		entry := &Entry{Dir: dir}
		if err := generationalWrite(fsys, clk, entry, data, gen); err != nil {
			return nil, err
		}

		entry.InMem = &InMemValue{Committed: true, Content: data}

		return entry, nil

	case MemoryOnly:
		return &Entry{
			Dir:         dir,
			InMem:       &InMemValue{Committed: false, Content: data},
			LastUpdated: now,
		}, nil

	case PassthroughWrite:
		entry := &Entry{Dir: dir}
		if err := generationalWrite(fsys, clk, entry, data, gen); err != nil {
			return nil, err
		}

		return entry, nil

	default:
		return nil, fmt.Errorf("dircache: unknown MemPushOpt %d", push)
	}
}

// runEntryWrite is used when key already exists in the Cache's map. Same
// placement matrix as insertNewData, applied to the existing entry:
// RetainAndWrite marks the in-memory copy committed (a successful
// generationalWrite just produced the matching generation-0), and
// PassthroughWrite drops any in-memory copy.
func runEntryWrite(fsys dirfs.FS, clk Clock, entry *Entry, data []byte, push MemPushOpt, gen GenerationOpt) error {
	switch push {
	case RetainAndWrite:
		if err := generationalWrite(fsys, clk, entry, data, gen); err != nil {
			return err
		}

		entry.InMem = &InMemValue{Committed: true, Content: data}

		return nil

	case MemoryOnly:
		now, err := sinceEpoch(clk)
		if err != nil {
			return err
		}

		entry.InMem = &InMemValue{Committed: false, Content: data}
		entry.LastUpdated = now

		return nil

	case PassthroughWrite:
		if err := generationalWrite(fsys, clk, entry, data, gen); err != nil {
			return err
		}

		entry.InMem = nil

		return nil

	default:
		return fmt.Errorf("dircache: unknown MemPushOpt %d", push)
	}
}

// generationalWrite is the core promotion algorithm. It truncates excess
// generations, promotes the survivors one slot up (re-encoding only at the
// 0-to-1 boundary when gen.OldGenEncoding isn't Plain), writes data as the
// new generation-0, rewrites the manifest, and stamps entry.LastUpdated.
func generationalWrite(fsys dirfs.FS, clk Clock, entry *Entry, data []byte, gen GenerationOpt) error {
	maxGens := gen.MaxGenerations
	if maxGens < 1 {
		maxGens = 1
	}

	if err := fsys.MkdirAll(entry.Dir, 0o755); err != nil {
		return newErr(KindWriteContent, fmt.Errorf("%w: creating entry directory: %w", ErrWriteContent, err), withPath(entry.Dir))
	}

	onDisk := entry.OnDisk

	// 1. Truncation: drop any generation beyond the limit.
	for len(onDisk) > maxGens {
		last := len(onDisk) - 1

		path := filepath.Join(entry.Dir, generationFileName(last))
		if err := fsys.Remove(path); err != nil && !os.IsNotExist(err) {
			return newErr(KindDeleteContent, fmt.Errorf("%w: truncating generation: %w", ErrDeleteContent, err), withPath(path))
		}

		onDisk = onDisk[:last]
	}

	// 2. Promotion: i counts down from the highest surviving index to 0,
	// renaming generation-i to generation-(i+1). Only the i==0 boundary may
	// re-encode, since position 0 is always Plain on disk.
	top := maxGens - 1
	if len(onDisk) < maxGens {
		top = len(onDisk)
	}

	// Indexed by old index i, so promoted[i] already sits at ascending new
	// index i+1; the loop below fills it counting down but that only
	// changes write order, not this mapping.
	promoted := make([]GenerationRecord, top)

	for i := top - 1; i >= 0; i-- {
		srcPath := filepath.Join(entry.Dir, generationFileName(i))
		dstPath := filepath.Join(entry.Dir, generationFileName(i+1))

		rec := onDisk[i]

		if i == 0 && gen.OldGenEncoding != Plain {
			content, err := fsys.ReadFile(srcPath)
			if err != nil {
				return newErr(KindReadContent, fmt.Errorf("%w: reading generation for aging: %w", ErrReadContent, err), withPath(srcPath))
			}

			encoded, err := gen.OldGenEncoding.Encode(content)
			if err != nil {
				return err
			}

			if err := fsys.WriteFile(dstPath, encoded, 0o644); err != nil {
				return newErr(KindWriteContent, fmt.Errorf("%w: writing aged generation: %w", ErrWriteContent, err), withPath(dstPath))
			}

			rec.Encoding = gen.OldGenEncoding
		} else {
			if err := fsys.Rename(srcPath, dstPath); err != nil {
				return newErr(KindWriteContent, fmt.Errorf("%w: promoting generation: %w", ErrWriteContent, err), withPath(srcPath))
			}
		}

		promoted[i] = rec
	}

	// 3. Record update: new generation-0 record first, then the promoted
	// records in ascending new-index order (promoted[0] is old index 0,
	// destined for new index 1, and so on).
	now, err := sinceEpoch(clk)
	if err != nil {
		return err
	}

	next := GenerationRecord{Age: now, Encoding: Plain}

	newOnDisk := make([]GenerationRecord, 0, len(promoted)+1)
	newOnDisk = append(newOnDisk, next)
	newOnDisk = append(newOnDisk, promoted...)

	// 4. Write new bytes as generation-0, overwriting whatever was there.
	g0Path := filepath.Join(entry.Dir, generationFileName(0))
	if err := fsys.WriteFile(g0Path, data, 0o644); err != nil {
		return newErr(KindWriteContent, fmt.Errorf("%w: writing generation-0: %w", ErrWriteContent, err), withPath(g0Path))
	}

	// 5. Manifest: rewrite whole.
	records := make([]manifestRecord, len(newOnDisk))
	for i, r := range newOnDisk {
		records[i] = manifestRecord{age: r.Age, encoding: r.Encoding}
	}

	if err := writeManifest(manifestPath(entry.Dir), records); err != nil {
		return err
	}

	// 6. Timestamp.
	entry.OnDisk = newOnDisk
	entry.LastUpdated = now

	return nil
}

// readFromDir loads the entry rooted at dir, if one exists. Expired
// generations are deleted and dropped from the record list before the
// entry is returned; if nothing survives, (nil, nil) is returned and the
// manifest itself is removed. When eager is true, generation-0's content
// is read into memory as committed.
func readFromDir(fsys dirfs.FS, clk Clock, dir string, eager bool, gen GenerationOpt) (*Entry, error) {
	records, err := readManifest(fsys, manifestPath(dir))
	if err != nil {
		return nil, err
	}

	if records == nil {
		return nil, nil
	}

	now, err := sinceEpoch(clk)
	if err != nil {
		return nil, err
	}

	// Generation ages are non-decreasing with index (each promotion pushes
	// the previous newest generation to an older slot), so expiration
	// under a fixed duration always cuts a contiguous suffix: once index i
	// is expired, every index beyond it is at least as old and also
	// expired. Find that cutoff and drop everything from it on, which
	// needs no renumbering of the survivors.
	cutoff := len(records)

	for i, rec := range records {
		if gen.Expiration.expired(rec.age, now) {
			cutoff = i

			break
		}
	}

	for i := cutoff; i < len(records); i++ {
		path := filepath.Join(dir, generationFileName(i))
		if err := fsys.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, newErr(KindDeleteContent, fmt.Errorf("%w: removing expired generation: %w", ErrDeleteContent, err), withPath(path))
		}
	}

	pruned := cutoff < len(records)
	records = records[:cutoff]

	if len(records) == 0 {
		if err := removeManifest(manifestPath(dir)); err != nil {
			return nil, err
		}

		return nil, nil
	}

	onDisk := make([]GenerationRecord, len(records))
	for i, rec := range records {
		onDisk[i] = GenerationRecord{Age: rec.age, Encoding: rec.encoding}
	}

	if pruned {
		if err := rewriteOnDiskManifest(dir, onDisk); err != nil {
			return nil, err
		}
	}

	entry := &Entry{
		Dir:         dir,
		OnDisk:      onDisk,
		LastUpdated: onDisk[0].Age,
	}

	if eager {
		content, err := fsys.ReadFile(filepath.Join(dir, generationFileName(0)))
		if err != nil {
			return nil, newErr(KindReadContent, fmt.Errorf("%w: eager load: %w", ErrReadContent, err), withPath(dir))
		}

		entry.InMem = &InMemValue{Committed: true, Content: content}
	}

	return entry, nil
}

func rewriteOnDiskManifest(dir string, onDisk []GenerationRecord) error {
	records := make([]manifestRecord, len(onDisk))
	for i, r := range onDisk {
		records[i] = manifestRecord{age: r.Age, encoding: r.Encoding}
	}

	return writeManifest(manifestPath(dir), records)
}

// dumpInMem flushes entry's in-memory value for the Sync path. If the
// value exists and isn't already committed, it is written through
// generationalWrite; whether it's then retained as committed depends on
// keepInMem.
func dumpInMem(fsys dirfs.FS, clk Clock, entry *Entry, keepInMem bool, gen GenerationOpt) error {
	if entry.InMem == nil {
		return nil
	}

	if !entry.InMem.Committed {
		if err := generationalWrite(fsys, clk, entry, entry.InMem.Content, gen); err != nil {
			return err
		}

		if keepInMem {
			entry.InMem.Committed = true
		} else {
			entry.InMem = nil
		}

		return nil
	}

	if !keepInMem {
		entry.InMem = nil
	}

	return nil
}

// entryExpired reports whether entry should be evicted wholesale: either
// its last update has aged past the expiration, or its newest disk
// generation has expired while nothing is held in memory.
func entryExpired(entry *Entry, gen GenerationOpt, now time.Duration) bool {
	if gen.Expiration.expired(entry.LastUpdated, now) {
		return true
	}

	if entry.InMem == nil && len(entry.OnDisk) > 0 && gen.Expiration.expired(entry.OnDisk[0].Age, now) {
		return true
	}

	return false
}

// getFromEntry implements the read path once an entry is known to exist
// and to not be expired: return the in-memory value if present, otherwise
// read generation-0 from disk and, per pull, decide whether to retain it.
// found is false only when the entry has neither an in-memory value nor
// any on-disk generation, which Get treats as a miss.
func getFromEntry(fsys dirfs.FS, entry *Entry, pull MemPullOpt) (content []byte, borrowed bool, found bool, err error) {
	if entry.InMem != nil {
		return entry.InMem.Content, true, true, nil
	}

	if len(entry.OnDisk) == 0 {
		return nil, false, false, nil
	}

	path := filepath.Join(entry.Dir, generationFileName(0))

	content, err = fsys.ReadFile(path)
	if err != nil {
		return nil, false, false, newErr(KindReadContent, fmt.Errorf("%w: reading generation-0: %w", ErrReadContent, err), withPath(path))
	}

	if pull == DontKeepInMemoryOnRead {
		return content, false, true, nil
	}

	entry.InMem = &InMemValue{Committed: true, Content: content}

	return content, true, true, nil
}
