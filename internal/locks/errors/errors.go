package errors

import "errors"

var (
	// ErrConflict means another live session holds the lock. Expected,
	// user-facing state, not a fault.
	ErrConflict = errors.New("resource is locked by another session")

	// ErrNotOwner means the caller's session does not hold a live lock on
	// the resource. A renew hitting this must fall back to acquire.
	ErrNotOwner = errors.New("session does not own the lock")

	ErrNotFound = errors.New("lock not found")
)
