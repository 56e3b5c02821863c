package testutil

import (
	"time"

	"github.com/hupe1980/collabmesh/core"
)

// BatchBuilder provides a fluent helper for constructing operation
// batches in tests. Example:
//
//	batch := NewBatchBuilder("alice").Base(3).Insert(0, "hi").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type BatchBuilder struct {
	clientID       string
	baseRevision   int64
	ops            []core.Operation
	timestamp      *time.Time
	idempotencyKey string
}

// NewBatchBuilder creates a builder for batches from the given client.
func NewBatchBuilder(clientID string) *BatchBuilder {
	return &BatchBuilder{clientID: clientID}
}

// Base sets the base revision (chainable).
func (b *BatchBuilder) Base(revision int64) *BatchBuilder { b.baseRevision = revision; return b }

// Insert appends an insert operation (chainable).
func (b *BatchBuilder) Insert(pos int, text string) *BatchBuilder {
	b.ops = append(b.ops, core.Insert(pos, text))
	return b
}

// Delete appends a delete operation (chainable).
func (b *BatchBuilder) Delete(pos, length int) *BatchBuilder {
	b.ops = append(b.ops, core.Delete(pos, length))
	return b
}

// Op appends an arbitrary operation (chainable).
func (b *BatchBuilder) Op(op core.Operation) *BatchBuilder {
	b.ops = append(b.ops, op)
	return b
}

// At overrides the batch timestamp (chainable). Use where determinism
// matters.
func (b *BatchBuilder) At(ts time.Time) *BatchBuilder { b.timestamp = &ts; return b }

// Key overrides the auto-generated idempotency key (chainable).
func (b *BatchBuilder) Key(key string) *BatchBuilder { b.idempotencyKey = key; return b }

// Build assembles the batch.
func (b *BatchBuilder) Build() core.OperationBatch {
	batch := core.NewOperationBatch(b.clientID, b.baseRevision, b.ops...)
	if b.timestamp != nil {
		batch.Timestamp = *b.timestamp
	}
	if b.idempotencyKey != "" {
		batch.IdempotencyKey = b.idempotencyKey
	}
	return batch
}

// AsHuman wraps the batch in a human action on docID.
func (b *BatchBuilder) AsHuman(docID string) core.Action {
	return core.Action{
		ActorID:    b.clientID,
		Kind:       core.ActorHuman,
		DocumentID: docID,
		Batch:      b.Build(),
	}
}

// AsAgent wraps the batch in an agent action on docID.
func (b *BatchBuilder) AsAgent(docID string) core.Action {
	return core.Action{
		ActorID:    b.clientID,
		Kind:       core.ActorAgent,
		DocumentID: docID,
		Batch:      b.Build(),
	}
}
