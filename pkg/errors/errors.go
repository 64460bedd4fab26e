// pkg/errors/errors.go
// Centralized error definitions for the shared memory and semaphore layers
//
// LEARN: Sentinel errors are package-level variables that callers can
// compare against using errors.Is(). Every failure in this module is
// reported as one of these kinds, wrapped together with the OS cause.

package errors

import (
	stderrors "errors"
	"fmt"
)

// Re-export stdlib errors functions for convenience.
// This allows callers to use errors.Is() without importing both packages.
var (
	Is     = stderrors.Is
	As     = stderrors.As
	Unwrap = stderrors.Unwrap
	New    = stderrors.New
	Join   = stderrors.Join
)

// === Sentinel Errors ===
// Use errors.Is(err, ErrX) to check for these errors.

var (
	// Resource failures, surfaced to the caller and never retried here.
	ErrAllocation = stderrors.New("shared memory allocation failed")
	ErrMap        = stderrors.New("shared memory mapping failed")
	ErrInit       = stderrors.New("semaphore initialization failed")

	// Caller errors
	ErrInvalidHandle  = stderrors.New("invalid shared memory handle")
	ErrInvalidSize    = stderrors.New("invalid shared memory size")
	ErrSizeMismatch   = stderrors.New("shared memory object smaller than requested")
	ErrLayoutMismatch = stderrors.New("shared block layout mismatch")
	ErrNoHandle       = stderrors.New("region owns no handle")
	ErrHandleInUse    = stderrors.New("region already owns a handle")
	ErrAlreadyMapped  = stderrors.New("region already mapped")
	ErrNotMapped      = stderrors.New("region not mapped")
	ErrClosed         = stderrors.New("object is closed")

	// Hand-off and platform
	ErrTransfer    = stderrors.New("handle transfer failed")
	ErrUnsupported = stderrors.ErrUnsupported
)

// === Wrapped Errors ===

// Wrap attaches an operation name and an error kind to an OS cause.
//
// LEARN: Go 1.20 allows several %w verbs in one format string, so both the
// sentinel kind and the underlying errno stay visible to errors.Is():
//
//	err := Wrap("memfd_create", ErrAllocation, unix.EMFILE)
//	errors.Is(err, ErrAllocation) // true
//	errors.Is(err, unix.EMFILE)   // true
func Wrap(op string, kind, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, cause)
}

// === Error Codes ===
// Machine-readable codes for logs and the audit journal.

const (
	CodeAllocation    = "XPROC_ALLOCATION"
	CodeMap           = "XPROC_MAP"
	CodeInit          = "XPROC_INIT"
	CodeInvalidHandle = "XPROC_INVALID_HANDLE"
	CodeLayout        = "XPROC_LAYOUT"
	CodeState         = "XPROC_STATE"
	CodeTransfer      = "XPROC_TRANSFER"
	CodeUnsupported   = "XPROC_UNSUPPORTED"
	CodeInternalError = "XPROC_INTERNAL"
)

// ErrorCode returns the code for a given error.
//
// LEARN: Order matters: check most specific errors first.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrAllocation), Is(err, ErrInvalidSize):
		return CodeAllocation
	case Is(err, ErrMap), Is(err, ErrSizeMismatch):
		return CodeMap
	case Is(err, ErrInit):
		return CodeInit
	case Is(err, ErrInvalidHandle):
		return CodeInvalidHandle
	case Is(err, ErrLayoutMismatch):
		return CodeLayout
	case Is(err, ErrNoHandle), Is(err, ErrHandleInUse), Is(err, ErrAlreadyMapped),
		Is(err, ErrNotMapped), Is(err, ErrClosed):
		return CodeState
	case Is(err, ErrTransfer):
		return CodeTransfer
	case Is(err, ErrUnsupported):
		return CodeUnsupported
	default:
		return CodeInternalError
	}
}

// IsRecoverable reports whether the caller may reasonably try again with
// different parameters (a smaller size, another handle) or fall back to a
// non-shared strategy.
//
// LEARN: Allocation and mapping failures come from resource exhaustion and
// are local to one operation. Layout or state errors are bugs in the caller
// and retrying cannot fix them.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrAllocation) || Is(err, ErrMap)
}
