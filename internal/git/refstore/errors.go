package refstore

import (
	"errors"
	"fmt"

	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
)

var (
	// ErrTransactionDone is returned when a transaction is used after it has
	// been committed or closed.
	ErrTransactionDone = errors.New("transaction was already committed or closed")
	// ErrReferenceNotFound is returned when a reference does not exist.
	ErrReferenceNotFound = errors.New("reference not found")
	// ErrReferenceIsDirectory is the cause of an IoError when a directory
	// occupies the path of a reference that is to be edited.
	ErrReferenceIsDirectory = errors.New("reference path is a directory")
)

// DuplicateRefEditsError is returned when a batch contains more than one edit
// for the same reference. It is detected before any lock is taken.
type DuplicateRefEditsError struct {
	FirstName git.ReferenceName
}

func (e *DuplicateRefEditsError) Error() string {
	return fmt.Sprintf("only one edit per reference must be provided, the first duplicate was %q", e.FirstName)
}

// InvalidRefEditError is returned when an edit names an invalid reference or
// target. It is detected before any lock is taken.
type InvalidRefEditError struct {
	Name git.ReferenceName
	Err  error
}

func (e *InvalidRefEditError) Error() string {
	return fmt.Sprintf("invalid edit of reference %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InvalidRefEditError) Unwrap() error { return e.Err }

// LockAcquireError is returned when the lock for a reference could not be
// obtained, either because of contention or because of an I/O failure.
type LockAcquireError struct {
	Name git.ReferenceName
	Err  error
}

func (e *LockAcquireError) Error() string {
	return fmt.Sprintf("a lock could not be obtained for reference %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying cause, usually a *safe.AcquireError.
func (e *LockAcquireError) Unwrap() error { return e.Err }

// IoError is returned when a filesystem operation on a reference failed.
type IoError struct {
	Name git.ReferenceName
	// Op describes what was being done, e.g. "staging" or "deleting".
	Op  string
	Err error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s reference %q: %v", e.Op, e.Name, e.Err)
}

// Unwrap returns the underlying cause.
func (e *IoError) Unwrap() error { return e.Err }

// DeletionReferenceMustExistError is returned when a deletion expects a
// previous value but the reference does not exist.
type DeletionReferenceMustExistError struct {
	Name git.ReferenceName
}

func (e *DeletionReferenceMustExistError) Error() string {
	return fmt.Sprintf("the reference %q for deletion did not exist", e.Name)
}

// ReferenceDecodeError is returned when the current content of a reference
// cannot be decoded.
type ReferenceDecodeError struct {
	Name git.ReferenceName
	Err  error
}

func (e *ReferenceDecodeError) Error() string {
	return fmt.Sprintf("could not read reference %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ReferenceDecodeError) Unwrap() error { return e.Err }

// ReferenceMismatchError is returned when the expected previous value of a
// reference does not match its actual value.
type ReferenceMismatchError struct {
	Name git.ReferenceName
	// Expected is the value the caller expected.
	Expected git.Target
	// Actual is the value found on disk, nil if the reference does not exist.
	Actual *git.Target
}

func (e *ReferenceMismatchError) Error() string {
	switch {
	case e.Actual == nil:
		return fmt.Sprintf("reference %q does not exist but was expected at %s", e.Name, e.Expected)
	case !e.Expected.IsSymbolic() && e.Expected.OID.IsZeroOID():
		return fmt.Sprintf("reference %q is at %s but was expected to not exist", e.Name, *e.Actual)
	default:
		return fmt.Sprintf("reference %q is at %s but was expected at %s", e.Name, *e.Actual, e.Expected)
	}
}
