// Package store provides the reference in-memory implementation of
// core.DocumentStore: document snapshots plus the append-only operation
// history stale batches are rebased against.
//
// Durable storage engines are supplied by the host system; this
// implementation exists so the module is fully usable in tests, examples
// and ephemeral deployments without external dependencies.
package store
