// Package coordinator serializes concurrent operation batches against the
// revision store. It owns the one mandatory serialization point in the
// system: a short-lived, per-document critical section inside which a
// batch is triaged by base revision, rebased against intervening history
// when stale, applied, persisted and assigned the next revision.
//
// Everything outside that critical section is free-running: transforms are
// pure, broadcasts happen after release, and different documents never
// contend with each other. Per-document state lives in a lock-free arena
// keyed by document id.
//
// Batches are deduplicated by idempotency key: a retransmitted batch
// returns the original result and causes exactly one mutation and one
// history entry; a batch whose key is still in flight awaits that
// in-flight outcome instead of executing twice.
package coordinator
