package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRevision is returned when a batch's base revision is ahead
	// of the server's current revision. The client state is inconsistent;
	// the batch is never retried and the client must resync.
	ErrInvalidRevision = errors.New("invalid base revision")

	// ErrMalformedOperation is returned when an operation's range is out of
	// bounds at apply time, including after transformation. Malformed
	// batches are rejected and surfaced, never auto-retried, since a retry
	// under a misaligned revision can silently corrupt convergence.
	ErrMalformedOperation = errors.New("malformed operation")

	// ErrConcurrentExecution is returned when a batch with the same
	// idempotency key is already in flight. The caller should await the
	// in-flight result instead of resubmitting.
	ErrConcurrentExecution = errors.New("duplicate batch in flight")

	// ErrConflictUnresolved is returned when an AskHuman arbitration times
	// out. The fail-safe is cancellation of the agent action, surfaced to
	// both parties; silent continuation is never an outcome.
	ErrConflictUnresolved = errors.New("conflict unresolved before deadline")

	// ErrPermissionDenied is returned when the permission collaborator
	// denies a write before any transform is attempted.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBusy is returned when the per-document critical section cannot be
	// acquired within the coordinator's lock timeout.
	ErrBusy = errors.New("document busy")
)

// RevisionError carries document context for an ErrInvalidRevision.
type RevisionError struct {
	DocumentID string
	Base       int64
	Current    int64
}

func (e *RevisionError) Error() string {
	return fmt.Sprintf("invalid base revision %d for document %s (current %d)", e.Base, e.DocumentID, e.Current)
}

// Unwrap makes the error match errors.Is(err, ErrInvalidRevision).
func (e *RevisionError) Unwrap() error { return ErrInvalidRevision }
