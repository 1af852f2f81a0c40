// Package memerr defines the sentinel error kinds shared across the memory
// engine. Each layer wraps one of these with %w so callers can classify
// failures with errors.Is regardless of which component produced them.
package memerr

import "errors"

var (
	// ErrInvalidInput marks malformed or missing tool arguments. No state
	// change happens before this is returned.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a lookup for an id that does not exist in the
	// target store.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a unique-key violation that could not be resolved
	// as an update (e.g. a session_key race).
	ErrConflict = errors.New("conflict")

	// ErrStore marks an underlying SQL or I/O failure. The caller's
	// transaction, if any, has been rolled back.
	ErrStore = errors.New("store error")

	// ErrEmbed marks a model load or inference failure.
	ErrEmbed = errors.New("embed error")

	// ErrTimeout marks a deadline exceeded during a blocking operation.
	ErrTimeout = errors.New("timeout")

	// ErrShutdown marks a request that arrived after shutdown began.
	ErrShutdown = errors.New("shutdown")
)
