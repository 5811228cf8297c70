package sofs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a *Error. Names follow spec.md §7's error taxonomy.
type Kind int

// Legal Kind values.
const (
	KindInvalidArgument Kind = iota
	KindNameTooLong
	KindNoSpace
	KindNotDirectory
	KindIsDirectory
	KindNotEmpty
	KindNoEntry
	KindAccess
	KindLoop
	KindExists
	KindTooManyLinks
	KindFileTooBig
	KindRelativePath
	KindAlreadyAllocated
	KindNotAllocated

	// Fatal kinds: the on-disk structures are internally contradictory.
	// Carrying on risks further corruption.
	KindInconsistentSuperblock
	KindInconsistentInode
	KindInconsistentFCT
	KindInconsistentDirectory
)

var kindText = map[Kind]string{
	KindInvalidArgument:        "invalid argument",
	KindNameTooLong:            "name too long",
	KindNoSpace:                "no space left on device",
	KindNotDirectory:           "not a directory",
	KindIsDirectory:            "is a directory",
	KindNotEmpty:               "directory not empty",
	KindNoEntry:                "no such file or directory",
	KindAccess:                 "permission denied",
	KindLoop:                   "too many levels of symbolic links",
	KindExists:                 "file exists",
	KindTooManyLinks:           "too many links",
	KindFileTooBig:             "file too large",
	KindRelativePath:           "path must be absolute",
	KindAlreadyAllocated:       "already allocated",
	KindNotAllocated:           "not allocated",
	KindInconsistentSuperblock: "inconsistent superblock",
	KindInconsistentInode:      "inconsistent inode",
	KindInconsistentFCT:        "inconsistent free-cluster table",
	KindInconsistentDirectory:  "inconsistent directory",
}

func (k Kind) String() string {
	if s, ok := kindText[k]; ok {
		return s
	}
	return fmt.Sprintf("sofs.Kind(%d)", int(k))
}

// Fatal reports whether a Kind denotes on-disk corruption rather than an
// ordinary, recoverable request error.
func (k Kind) Fatal() bool {
	switch k {
	case KindInconsistentSuperblock, KindInconsistentInode, KindInconsistentFCT, KindInconsistentDirectory:
		return true
	default:
		return false
	}
}

// Error is the error type returned by every exported sofs operation. It
// carries a Kind so callers can classify a failure with errors.Is/As without
// depending on message text, plus an optional wrapped cause for diagnostics.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "AllocInode", "TraversePath"
	Err  error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sofs: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("sofs: %s: %s", e.Op, e.Kind)
}

// Unwrap exposes the wrapped cause to errors.Is/As/Unwrap.
func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether this error denotes on-disk corruption.
func (e *Error) Fatal() bool { return e.Kind.Fatal() }

// newErr builds a *Error with no wrapped cause.
func newErr(op string, kind Kind) error {
	return &Error{Op: op, Kind: kind}
}

// NewError builds a *Error with no wrapped cause, for use by collaborating
// packages (e.g. sofsfs) that need to report a sofs.Kind failure without
// duplicating *Error's shape.
func NewError(op string, kind Kind) error {
	return newErr(op, kind)
}

// wrapErr builds a *Error wrapping cause via github.com/pkg/errors so the
// original stack trace/context survives for diagnostics.
func wrapErr(op string, kind Kind, cause error) error {
	return &Error{Op: op, Kind: kind, Err: errors.Wrap(cause, kind.String())}
}

// Is lets errors.Is match by Kind against a sentinel *Error, e.g.
// errors.Is(err, &sofs.Error{Kind: sofs.KindNoEntry}); a bare Kind is not an
// error value. See IsKind below for the common case.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is (or wraps) a *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
