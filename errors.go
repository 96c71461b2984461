package vault

import "golang.org/x/xerrors"

// Error kinds surfaced across the package boundary, per the error handling
// design: codec and transport errors are never exposed verbatim, they are
// projected into this vocabulary.
var (
	ErrIo           = xerrors.New("vault: io error")
	ErrAuthFailure  = xerrors.New("vault: authentication failure")
	ErrCorruptFrame = xerrors.New("vault: corrupt frame")
	ErrNotFound     = xerrors.New("vault: not found")
	ErrTimeout      = xerrors.New("vault: timeout")
	ErrNetDegraded  = xerrors.New("vault: replication degraded")
	ErrParse        = xerrors.New("vault: parse error")
	ErrCancelled    = xerrors.New("vault: cancelled")

	// ErrCorrupted and ErrUnavailable are the two VFS-boundary errors that
	// spec.md §7 adds on top of the component-level kinds above.
	ErrCorrupted   = xerrors.New("vault: corrupted")
	ErrUnavailable = xerrors.New("vault: unavailable")

	// ErrShapeError is raised by the block codec when a nibble stream has
	// odd length; it is never surfaced past vfs, which maps it to
	// ErrCorrupted.
	ErrShapeError = xerrors.New("vault: odd-length nibble stream")
)
