// Package recogerr defines the typed sentinel errors the recognition
// engine distinguishes at the boundaries where behavior actually forks:
// timeouts get a dispose-and-reinit, dimension mismatches get one rebuild,
// missing bindings get a silent discard. Everything else is an opaque
// wrapped error the caller logs and moves past.
package recogerr

import "errors"

var (
	// ErrTimeout is returned by a capability call that exceeded its
	// enforced deadline. The timeout wrapper has already disposed the
	// capability for reinitialization; the caller drops the frame rather
	// than retrying the same call.
	ErrTimeout = errors.New("recognition: capability call timed out")

	// ErrDimensionMismatch marks an embedding whose length disagrees with
	// the index's discovered dimension: Add returns it, wrapped, when the
	// rebuild such a mismatch triggers fails, and Search logs it when the
	// dimension still disagrees after its one rebuild.
	ErrDimensionMismatch = errors.New("recognition: embedding dimension mismatch")

	// ErrNoActiveEvent signals the binding service found no Event bound to
	// a camera right now; callers treat this as "discard, do not persist",
	// never as a hard failure.
	ErrNoActiveEvent = errors.New("recognition: no active event for camera")

	// ErrCapacityExhausted is returned by Add, wrapped, when an insert at
	// the index's capacity triggers a rebuild and that rebuild fails.
	ErrCapacityExhausted = errors.New("recognition: ann index capacity exhausted")

	// ErrPersist wraps a repository write failure during detection
	// persistence; the frame is dropped and an error counter increments.
	ErrPersist = errors.New("recognition: detection persist failed")
)
