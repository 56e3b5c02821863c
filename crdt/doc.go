// Package crdt provides the three mergeable replicated value types the
// presence layer is composed from: a last-writer-wins register, a
// grow-only counter and an observed-remove set.
//
// Merge is commutative, associative and idempotent for all three types, so
// replicas converge under any delivery order or duplication without
// coordination, and merging can never fail. The types are value-oriented
// and lock-free by construction; callers own any sharing discipline.
//
// These types carry only ephemeral, non-authoritative state. Document
// content never rides a CRDT: it requires the total order the OT
// coordinator provides.
package crdt
