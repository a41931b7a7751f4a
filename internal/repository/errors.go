package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
	// ErrStoreUnavailable wraps transport or server failures of a backing store.
	ErrStoreUnavailable = errors.New("repository: store unavailable")
)
