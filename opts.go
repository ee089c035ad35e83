package dircache

import "time"

// MemPullOpt controls whether a successful Get retains the read bytes in
// RAM for subsequent reads.
type MemPullOpt int

const (
	// KeepInMemoryOnRead caches the bytes read from disk as a committed
	// InMemValue.
	KeepInMemoryOnRead MemPullOpt = iota

	// DontKeepInMemoryOnRead returns the read bytes without retaining
	// them; the next Get reads generation-0 again.
	DontKeepInMemoryOnRead
)

// MemPushOpt controls where a write lands.
type MemPushOpt int

const (
	// RetainAndWrite writes through to disk and keeps the bytes in RAM.
	RetainAndWrite MemPushOpt = iota

	// MemoryOnly keeps the bytes in RAM without touching disk; a later
	// Sync is required to persist them.
	MemoryOnly

	// PassthroughWrite writes to disk without retaining the bytes in RAM.
	PassthroughWrite
)

// Expiration bounds how long a generation is considered valid.
type Expiration struct {
	after    time.Duration
	noExpiry bool
}

// NoExpiry means generations never expire.
func NoExpiry() Expiration {
	return Expiration{noExpiry: true}
}

// ExpiresAfter means a generation is expired once now is at least its age
// plus d.
func ExpiresAfter(d time.Duration) Expiration {
	return Expiration{after: d}
}

// expired reports whether age has crossed e relative to elapsed time since
// some reference point. age and asOf are both durations since the epoch.
func (e Expiration) expired(age, asOf time.Duration) bool {
	if e.noExpiry {
		return false
	}

	return age+e.after <= asOf
}

// GenerationOpt is the aging policy for a key's generation list.
type GenerationOpt struct {
	// MaxGenerations bounds the number of generation files retained;
	// must be >= 1.
	MaxGenerations int

	// OldGenEncoding is applied when a generation is promoted out of
	// position 0. Plain is always valid; any other tag requires that
	// encoding to be registered in this build.
	OldGenEncoding Encoding

	// Expiration governs when a generation is dropped.
	Expiration Expiration
}

// SyncOpt controls whether Close attempts a final flush.
type SyncOpt int

const (
	// ManualSync means Close never writes; callers must call Sync
	// themselves before discarding a Cache.
	ManualSync SyncOpt = iota

	// SyncOnDrop means Close attempts one final Sync, swallowing any
	// error since there is nothing left to return it to.
	SyncOnDrop
)

// DirCacheOpts is the four-dimensional policy a Cache applies by default,
// and that any single call may override.
type DirCacheOpts struct {
	MemPullOpt    MemPullOpt
	MemPushOpt    MemPushOpt
	GenerationOpt GenerationOpt
	SyncOpt       SyncOpt
}

// DefaultOpts returns the documented default policy: keep reads in RAM,
// write through to both RAM and disk, retain one generation with no
// aging encoding and no expiration, and never flush implicitly on Close.
func DefaultOpts() DirCacheOpts {
	return DirCacheOpts{
		MemPullOpt: KeepInMemoryOnRead,
		MemPushOpt: RetainAndWrite,
		GenerationOpt: GenerationOpt{
			MaxGenerations: 1,
			OldGenEncoding: Plain,
			Expiration:     NoExpiry(),
		},
		SyncOpt: ManualSync,
	}
}

// DirOpenMode controls Open's behavior toward the root path.
type DirOpenMode int

const (
	// OnlyIfExists requires the root to already be a directory.
	OnlyIfExists DirOpenMode = iota

	// CreateIfMissing creates the root directory if it does not exist.
	CreateIfMissing
)

// OpenOpts configures Open.
type OpenOpts struct {
	DirOpen DirOpenMode

	// EagerLoad, if true, reads every discovered entry's generation-0
	// content into memory (as committed) during the directory scan.
	EagerLoad bool
}

// DefaultOpenOpts requires the root to exist and does not eagerly load
// entry content.
func DefaultOpenOpts() OpenOpts {
	return OpenOpts{DirOpen: OnlyIfExists, EagerLoad: false}
}
