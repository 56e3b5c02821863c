// Package presence tracks ephemeral per-document participant state:
// cursors, selections and a time-driven activity state machine
// (active -> idle -> away) with TTL expiry.
//
// Records are CRDT-composed: the mutable fields of each record ride a
// last-writer-wins register keyed by update timestamp and participant id,
// the per-document roster is an observed-remove set, and a grow-only
// counter tallies updates. Out-of-order or duplicated updates therefore
// merge instead of fighting, and malformed payloads are dropped and
// logged, never surfaced: presence merges cannot fail.
//
// Presence is never authoritative. It shares nothing with the document
// content path, which requires the OT coordinator's total order.
package presence
