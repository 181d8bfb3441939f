// Package store persists fit results and objective-evaluation traces on
// the filesystem so completed fits can be listed, reloaded, and reused
// without re-running the optimizer.
package store

// Store defines the interface for fit-result persistence operations.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return nil error on success
//   - Return ErrNotFound if a result doesn't exist (for Load/Delete)
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveResult atomically saves a fit result for the given job. An
	// existing result for this jobID is overwritten. Implementations
	// should use atomic write strategies (temp file + rename) to prevent
	// corruption.
	SaveResult(jobID string, result *Result) error

	// LoadResult retrieves the result for the given job. Returns
	// ErrNotFound if no result exists for this jobID.
	LoadResult(jobID string) (*Result, error)

	// ListResults returns metadata for all stored results. The returned
	// slice may be empty.
	ListResults() ([]ResultInfo, error)

	// DeleteResult removes the result and all associated artifacts
	// (result.json, trace.jsonl) for the given job. Returns ErrNotFound
	// if no result exists.
	DeleteResult(jobID string) error
}

// ErrNotFound is returned when a requested result does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing fit result.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	if e.JobID != "" {
		return "fit result not found: " + e.JobID
	}
	return "fit result not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}
