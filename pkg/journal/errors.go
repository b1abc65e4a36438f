// Package journal implements an append-only log of basis refinements for
// rebuilding sessions after a restart.
package journal

import "errors"

var (
	// ErrCorrupted indicates a corrupted journal entry (CRC mismatch)
	ErrCorrupted = errors.New("journal: corrupted entry")

	// ErrInvalidEntry indicates an invalid entry or payload format
	ErrInvalidEntry = errors.New("journal: invalid entry")

	// ErrLogClosed indicates an operation on a closed journal
	ErrLogClosed = errors.New("journal: log closed")

	// ErrLogNotFound indicates journal files don't exist
	ErrLogNotFound = errors.New("journal: log not found")

	// ErrTruncated indicates a truncated journal entry
	ErrTruncated = errors.New("journal: truncated entry")

	// ErrUnknownSession indicates a refinement for a session that was never created
	ErrUnknownSession = errors.New("journal: unknown session")
)
