package domain

import "errors"

// Error taxonomy. Callers classify failures with errors.Is; packages wrap
// these sentinels with fmt.Errorf("...: %w", ...).
var (
	// ErrConfig indicates invalid configuration parameters (chunk size,
	// overlap, candidate width, top-k). Detected before any I/O, never
	// retried.
	ErrConfig = errors.New("invalid configuration")

	// ErrValidation indicates malformed call arguments: mismatched batch
	// lengths, empty required inputs, top-k exceeding the candidate count.
	// A caller bug, never retried.
	ErrValidation = errors.New("invalid argument")

	// ErrUpstream indicates the embedding or chat service was unreachable,
	// timed out, or returned a malformed response. Idempotent embedding
	// calls may be retried by the pipeline; generation failures surface
	// directly with any partial output preserved.
	ErrUpstream = errors.New("upstream service failure")

	// ErrStorage indicates the persisted collection is unreadable or
	// inconsistent. Fatal for the current operation; implementations must
	// not write destructively on a read failure.
	ErrStorage = errors.New("storage failure")
)
