// Package audit provides reference core.AuditSink implementations: a
// recording sink for tests and a sink that writes each event through the
// structured logger. The real append-only audit log is an external
// collaborator; the core only ever fires events at it and never awaits a
// result.
package audit
