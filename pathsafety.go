package dircache

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafeJoin validates userKey and, if safe, returns its platform join with
// base (the cache root).
//
// A key is accepted only if it:
//   - is relative (not absolute),
//   - contains no embedded NUL byte,
//   - decomposes entirely into "normal" components: no ".", "..", volume,
//     or root components,
//   - is exactly the concatenation of its normal components joined by a
//     single separator each — no leading, trailing, or duplicated
//     separators, and no empty components.
//
// Any violation returns a [*Error] of [KindDangerousKey] wrapping
// [ErrDangerousKey].
//
// Quirk, kept intentionally (see DESIGN.md): on platforms where '/' is the
// only path separator, a key containing a literal backslash is treated as
// one normal component (backslash is not a separator there), so "a\\b" is
// accepted as a single-component key rather than rejected or split. This is
// surprising but is the documented, intended behavior; do not "fix" it
// without checking DESIGN.md's Open Question entry.
func SafeJoin(base, userKey string) (string, error) {
	if err := validateKey(userKey); err != nil {
		return "", err
	}

	return filepath.Join(base, userKey), nil
}

func validateKey(userKey string) error {
	if userKey == "" {
		return dangerousKeyErr(userKey, "empty key")
	}

	if strings.IndexByte(userKey, 0) >= 0 {
		return dangerousKeyErr(userKey, "embedded NUL byte")
	}

	if filepath.IsAbs(userKey) {
		return dangerousKeyErr(userKey, "absolute path")
	}

	if vol := filepath.VolumeName(userKey); vol != "" {
		return dangerousKeyErr(userKey, "volume/prefix component")
	}

	components := strings.Split(userKey, string(filepath.Separator))

	for _, comp := range components {
		switch comp {
		case "":
			// Leading, trailing, or duplicated separators all split into an
			// empty component here, which is how this also rejects them.
			return dangerousKeyErr(userKey, "empty path component")
		case ".", "..":
			return dangerousKeyErr(userKey, "relative traversal component")
		}
	}

	return nil
}

func dangerousKeyErr(key, reason string) error {
	return newErr(KindDangerousKey, fmt.Errorf("%w: %s", ErrDangerousKey, reason), withKey(key))
}

// Relativize returns the suffix of extended past base, pairing path
// components one by one. It fails if base is not a strict prefix of
// extended (base being equal to, longer than, or mismatching extended are
// all failures).
func Relativize(base, extended string) (string, error) {
	baseParts := splitClean(base)
	extParts := splitClean(extended)

	if len(extParts) <= len(baseParts) {
		return "", newErr(KindPathRelativize,
			fmt.Errorf("%w: %q is not longer than base %q", ErrPathRelativize, extended, base))
	}

	for i, bp := range baseParts {
		if extParts[i] != bp {
			return "", newErr(KindPathRelativize,
				fmt.Errorf("%w: %q does not share base %q at component %d", ErrPathRelativize, extended, base, i))
		}
	}

	suffix := extParts[len(baseParts):]

	return filepath.Join(suffix...), nil
}

func splitClean(path string) []string {
	cleaned := filepath.Clean(path)
	if cleaned == string(filepath.Separator) || cleaned == "." {
		return nil
	}

	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))

	return strings.Split(cleaned, string(filepath.Separator))
}
