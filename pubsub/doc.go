// Package pubsub provides the reference in-memory core.Publisher: a
// per-document subscriber registry with buffered, non-blocking fan-out.
//
// The real delivery fabric is an external collaborator with at-least-once
// semantics; consumers deduplicate by revision for operations and by
// (participant, timestamp) for presence. This implementation mirrors that
// contract closely enough for tests and examples: a subscriber whose
// buffer is full misses the message rather than stalling the publisher.
package pubsub
