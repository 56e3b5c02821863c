package core

import (
	"context"
	"time"
)

// Broadcast is the per-document message published after an accepted batch
// or a presence change. Exactly one of Ops / Presence is set. Delivery is
// at-least-once; consumers deduplicate by Revision for operations and by
// (ParticipantID, Timestamp) for presence.
type Broadcast struct {
	DocumentID string          `json:"document_id"`
	Revision   int64           `json:"revision,omitempty"`
	ClientID   string          `json:"client_id,omitempty"`
	Ops        []Operation     `json:"ops,omitempty"`
	Presence   *PresenceRecord `json:"presence,omitempty"`
	// Left is set on a presence broadcast when the participant
	// disconnected or expired.
	Left bool `json:"left,omitempty"`
}

// Publisher is the publish/subscribe fabric the core emits broadcasts to.
// Publish must not block the coordinator's critical section for long;
// implementations buffer or drop rather than stall.
type Publisher interface {
	Publish(docID string, msg Broadcast)
}

// PermissionChecker answers "may this actor write here". The decision is
// opaque to the core; denial rejects the submission before any transform
// is attempted.
type PermissionChecker interface {
	MayWrite(ctx context.Context, actorID, docID string) bool
}

// AuditEventKind enumerates the fire-and-forget events the core emits to
// the external audit collaborator.
type AuditEventKind string

const (
	// AuditBatchAccepted is emitted after a batch mutates a document.
	AuditBatchAccepted AuditEventKind = "batch_accepted"
	// AuditBatchRejected is emitted when a batch is rejected for any
	// reason (revision, permission, malformed ops, busy document).
	AuditBatchRejected AuditEventKind = "batch_rejected"
	// AuditConflictDetected is emitted when the arbiter opens a Conflict.
	AuditConflictDetected AuditEventKind = "conflict_detected"
	// AuditConflictResolved is emitted when a Conflict becomes terminal.
	AuditConflictResolved AuditEventKind = "conflict_resolved"
)

// AuditEvent is one audit record. Batch fields are set for batch events,
// Conflict for conflict events.
type AuditEvent struct {
	Kind       AuditEventKind  `json:"kind"`
	DocumentID string          `json:"document_id"`
	Timestamp  time.Time       `json:"timestamp"`
	ClientID   string          `json:"client_id,omitempty"`
	Revision   int64           `json:"revision,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Batch      *OperationBatch `json:"batch,omitempty"`
	Conflict   *Conflict       `json:"conflict,omitempty"`
}

// AuditSink receives audit events. Calls are fire-and-forget: the core
// never blocks on, retries, or propagates errors from the sink.
type AuditSink interface {
	Emit(event AuditEvent)
}

// AgentController is the only surface through which the core touches
// agent execution. The core never runs agent logic itself: it pauses,
// resumes with a resolution, or notifies the agent that an action was
// discarded.
type AgentController interface {
	Pause(ctx context.Context, agentID string) error
	Resume(ctx context.Context, agentID string, resolution Resolution) error
	NotifyDiscarded(ctx context.Context, agentID string, action Action, reason string)
}
