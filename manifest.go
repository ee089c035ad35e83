package dircache

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/dircache/dirfs"
)

// ManifestFileName is the manifest's filename inside an entry directory.
const ManifestFileName = "dir-cache-manifest.txt"

// manifestVersion is the compile-time manifest format version. Reading a
// manifest whose version line doesn't match this returns KindParseManifest.
const manifestVersion = 1

const manifestPerm os.FileMode = 0o644

// manifestRecord is one parsed generation line: age since the epoch and the
// encoding the generation is stored under. Position 0 in a manifest is
// always the newest generation and always Plain-encoded; the codec does not
// itself enforce that — callers (entry.go) do, since the codec's job is
// purely textual round-tripping.
type manifestRecord struct {
	age      time.Duration
	encoding Encoding
}

// readManifest parses the manifest at path. Returns (nil, nil) if the file
// does not exist. Generation lines are newest-first both on disk and in the
// returned slice (position 0 = newest) — see writeManifest.
func readManifest(fsys dirfs.FS, path string) ([]manifestRecord, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, newErr(KindReadContent, fmt.Errorf("%w: reading manifest: %w", ErrReadContent, err), withPath(path))
	}

	return parseManifest(data, path)
}

func parseManifest(data []byte, path string) ([]manifestRecord, error) {
	text := string(data)
	lines := strings.Split(text, "\n")

	// Split on "\n" leaves one trailing empty element for a file that ends
	// in "\n" (which every manifest this codec writes does); drop it.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	if len(lines) == 0 {
		return nil, newErr(KindParseMetadata, fmt.Errorf("%w: empty manifest", ErrParseMetadata), withPath(path))
	}

	version, err := strconv.ParseUint(lines[0], 10, 64)
	if err != nil {
		return nil, newErr(KindParseManifest,
			fmt.Errorf("%w: bad version line %q: %w", ErrParseManifest, lines[0], err), withPath(path))
	}

	if version != manifestVersion {
		return nil, newErr(KindParseManifest,
			fmt.Errorf("%w: version %d, want %d", ErrParseManifest, version, manifestVersion), withPath(path))
	}

	records := make([]manifestRecord, 0, len(lines)-1)

	for _, line := range lines[1:] {
		rec, err := parseManifestLine(line)
		if err != nil {
			return nil, newErr(KindParseMetadata, fmt.Errorf("%w: %w", ErrParseMetadata, err), withPath(path))
		}

		records = append(records, rec)
	}

	return records, nil
}

func parseManifestLine(line string) (manifestRecord, error) {
	ageStr, tag, found := strings.Cut(line, ",")
	if !found {
		return manifestRecord{}, fmt.Errorf("malformed generation line %q: no comma", line)
	}

	ageNS, err := strconv.ParseUint(ageStr, 10, 64)
	if err != nil {
		// Go's time.Duration is int64 nanoseconds; an age value too wide for
		// that is an overflow we surface distinctly rather than silently
		// truncating.
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			return manifestRecord{}, fmt.Errorf("%w: age %q overflows", ErrArithmetic, ageStr)
		}

		return manifestRecord{}, fmt.Errorf("malformed age %q: %w", ageStr, err)
	}

	if ageNS > math.MaxInt64 {
		return manifestRecord{}, fmt.Errorf("%w: age %q overflows a 64-bit duration", ErrArithmetic, ageStr)
	}

	enc, err := deserializeEncoding(tag)
	if err != nil {
		return manifestRecord{}, err
	}

	return manifestRecord{age: time.Duration(ageNS), encoding: enc}, nil
}

// writeManifest serializes records (position 0 = newest) to path, one line
// per generation in the same newest-first order as records itself.
//
// Written via github.com/natefinch/atomic.WriteFile (temp file + rename) so
// a partial write can never leave a torn manifest in place. The manifest
// write is still a separate filesystem operation from the generation
// renames that precede it (see entry.go's generationalWrite); that wider
// window is an accepted risk, not something this function can close.
func writeManifest(path string, records []manifestRecord) error {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%d\n", manifestVersion)

	for i := 0; i < len(records); i++ {
		rec := records[i]
		fmt.Fprintf(&buf, "%d,%s\n", rec.age.Nanoseconds(), rec.encoding.Serialize())
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return newErr(KindWriteContent, fmt.Errorf("%w: writing manifest: %w", ErrWriteContent, err), withPath(path))
	}

	if err := os.Chmod(path, manifestPerm); err != nil && !os.IsNotExist(err) {
		return newErr(KindWriteContent, fmt.Errorf("%w: chmod manifest: %w", ErrWriteContent, err), withPath(path))
	}

	return nil
}

// removeManifest deletes the manifest at path. A missing file is not an
// error.
func removeManifest(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return newErr(KindDeleteContent, fmt.Errorf("%w: removing manifest: %w", ErrDeleteContent, err), withPath(path))
	}

	return nil
}
