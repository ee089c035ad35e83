package dircache

import (
	"errors"
	"fmt"
)

// Kind classifies the failure behind an [*Error]. Kinds are stable across
// releases; match them with [errors.Is] against the matching sentinel
// below, not by comparing Kind values directly, since new kinds may be
// added.
type Kind int

const (
	// KindOpen means the open mode's invariant about the root path was
	// violated (e.g. OnlyIfExists against a missing root, or a file where
	// a directory was expected).
	KindOpen Kind = iota + 1

	// KindDangerousKey means a key failed the path-safety check in
	// SafeJoin.
	KindDangerousKey

	// KindReadContent means a read from the filesystem failed.
	KindReadContent

	// KindWriteContent means a write to the filesystem failed.
	KindWriteContent

	// KindDeleteContent means removing a file or directory failed.
	KindDeleteContent

	// KindParseManifest means the on-disk manifest's version line was
	// missing or did not match the compiled-in manifestVersion.
	KindParseManifest

	// KindParseMetadata means a generation line in the manifest could not
	// be decoded (bad age, bad encoding tag), or the manifest file was
	// empty. A manifest holding only its version line is not an error.
	KindParseMetadata

	// KindEncodingError means the pluggable encoder failed.
	KindEncodingError

	// KindArithmetic means a nanosecond to seconds+nanos conversion
	// overflowed.
	KindArithmetic

	// KindSystemTime means the clock reported a time before the Unix
	// epoch.
	KindSystemTime

	// KindInsertWith means the producer passed to GetOrInsert failed; the
	// inner error stays in the chain for [errors.Is] and [errors.As].
	KindInsertWith

	// KindPathRelativize means an internal invariant was violated while
	// relativizing a scanned directory against the cache root.
	KindPathRelativize
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindOpen:
		return "Open"
	case KindDangerousKey:
		return "DangerousKey"
	case KindReadContent:
		return "ReadContent"
	case KindWriteContent:
		return "WriteContent"
	case KindDeleteContent:
		return "DeleteContent"
	case KindParseManifest:
		return "ParseManifest"
	case KindParseMetadata:
		return "ParseMetadata"
	case KindEncodingError:
		return "EncodingError"
	case KindArithmetic:
		return "Arithmetic"
	case KindSystemTime:
		return "SystemTime"
	case KindInsertWith:
		return "InsertWith"
	case KindPathRelativize:
		return "PathRelativize"
	default:
		return "Unknown"
	}
}

// Sentinel errors, one per [Kind], for use with [errors.Is]. Every [*Error]
// this package returns matches the sentinel of its Kind; a manifest age
// overflow, of KindParseMetadata, also matches ErrArithmetic.
var (
	ErrOpen           = errors.New("dircache: open")
	ErrDangerousKey   = errors.New("dircache: dangerous key")
	ErrReadContent    = errors.New("dircache: read content")
	ErrWriteContent   = errors.New("dircache: write content")
	ErrDeleteContent  = errors.New("dircache: delete content")
	ErrParseManifest  = errors.New("dircache: parse manifest")
	ErrParseMetadata  = errors.New("dircache: parse metadata")
	ErrEncodingError  = errors.New("dircache: encoding error")
	ErrArithmetic     = errors.New("dircache: arithmetic overflow")
	ErrSystemTime     = errors.New("dircache: system time before epoch")
	ErrInsertWith     = errors.New("dircache: producer failed")
	ErrPathRelativize = errors.New("dircache: path relativize")
)

func sentinelFor(kind Kind) error {
	switch kind {
	case KindOpen:
		return ErrOpen
	case KindDangerousKey:
		return ErrDangerousKey
	case KindReadContent:
		return ErrReadContent
	case KindWriteContent:
		return ErrWriteContent
	case KindDeleteContent:
		return ErrDeleteContent
	case KindParseManifest:
		return ErrParseManifest
	case KindParseMetadata:
		return ErrParseMetadata
	case KindEncodingError:
		return ErrEncodingError
	case KindArithmetic:
		return ErrArithmetic
	case KindSystemTime:
		return ErrSystemTime
	case KindInsertWith:
		return ErrInsertWith
	case KindPathRelativize:
		return ErrPathRelativize
	default:
		return errors.New("dircache: unknown error")
	}
}

// Error is the uniform error type returned by dircache's public API.
//
// It carries enough context to identify which key and/or filesystem path
// was involved, on top of the underlying cause. Use [errors.Is] against the
// Err* sentinels to classify an error, and [errors.As] to pull out Key/Path:
//
//	var derr *dircache.Error
//	if errors.As(err, &derr) {
//	    log.Printf("operation failed for key %q: %v", derr.Key, derr)
//	}
//
//	if errors.Is(err, dircache.ErrDangerousKey) { ... }
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Key is the cache key (relative path) involved, when known. Empty if
	// the failure occurred before a key could be attributed (e.g. during
	// Open's directory scan).
	Key string

	// Path is the absolute filesystem path involved, when known. This is
	// deliberately separate from Key: Key is the user-facing cache
	// identifier, Path is where on disk the operation touched.
	Path string

	// Err is the underlying cause. Always non-nil.
	Err error
}

// Error formats as "<kind>: <cause> (key=... path=...)", omitting key/path
// when not set.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Err)

	var ctx string

	switch {
	case e.Key != "" && e.Path != "":
		ctx = fmt.Sprintf(" (key=%s path=%s)", e.Key, e.Path)
	case e.Key != "":
		ctx = fmt.Sprintf(" (key=%s)", e.Key)
	case e.Path != "":
		ctx = fmt.Sprintf(" (path=%s)", e.Path)
	}

	return msg + ctx
}

// Unwrap returns the underlying cause, for [errors.Is]/[errors.As]. It does
// NOT return the Kind's sentinel directly; Is handles that case specially
// so that errors.Is(err, ErrReadContent) matches regardless of what Err
// wraps.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel error matching e.Kind, so that
// errors.Is(err, dircache.ErrDangerousKey) works without callers needing to
// know whether Err happens to wrap the sentinel too.
func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

// newErr builds an [*Error] of the given kind wrapping cause, with optional
// key/path context attached via the With* helpers.
func newErr(kind Kind, cause error, opts ...func(*Error)) *Error {
	e := &Error{Kind: kind, Err: cause}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// withKey attaches a cache key to the error being constructed.
func withKey(key string) func(*Error) {
	return func(e *Error) { e.Key = key }
}

// withPath attaches a filesystem path to the error being constructed.
func withPath(path string) func(*Error) {
	return func(e *Error) { e.Path = path }
}
