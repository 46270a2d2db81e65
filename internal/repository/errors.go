package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("repository: not found")
	// ErrPersistence signals a write that did not affect the expected number of rows.
	ErrPersistence = errors.New("repository: unexpected affected row count")
	// ErrConflict signals a failed optimistic version or deploy-status check.
	ErrConflict = errors.New("repository: concurrent modification")
)
