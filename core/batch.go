package core

import (
	"time"

	"github.com/google/uuid"
)

// OperationBatch is the unit a client submits: one or more operations
// generated against BaseRevision. A batch is immutable once submitted and
// is consumed exactly once by the coordinator; retransmissions are
// deduplicated by IdempotencyKey.
type OperationBatch struct {
	ClientID       string      `json:"client_id"`
	BaseRevision   int64       `json:"base_revision"`
	Ops            []Operation `json:"ops"`
	Timestamp      time.Time   `json:"timestamp"`
	IdempotencyKey string      `json:"idempotency_key"`
}

// NewOperationBatch builds a batch against baseRevision, stamping the
// current UTC time and a fresh idempotency key.
func NewOperationBatch(clientID string, baseRevision int64, ops ...Operation) OperationBatch {
	return OperationBatch{
		ClientID:       clientID,
		BaseRevision:   baseRevision,
		Ops:            ops,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: NewID(),
	}
}

// HistoryEntry records one accepted batch: the operations as actually
// applied (post-transform) alongside the originals the client sent.
// History is append-only and is what stale batches are rebased against.
type HistoryEntry struct {
	Revision       int64       `json:"revision"`
	ClientID       string      `json:"client_id"`
	TransformedOps []Operation `json:"transformed_ops"`
	OriginalOps    []Operation `json:"original_ops"`
	BaseRevision   int64       `json:"base_revision"`
}

// NewID generates a unique identifier for batches, conflicts and OR-Set
// tags.
func NewID() string { return uuid.NewString() }
