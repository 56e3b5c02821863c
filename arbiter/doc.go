// Package arbiter reconciles concurrent human and agent actions on the
// same document. It sits ahead of the OT coordinator: when an agent's
// pending batch collides with a human's, the arbiter classifies the
// conflict and decides whether the agent's batch proceeds, is rebased and
// queued back for re-confirmation, is discarded, or is held pending an
// explicit human decision.
//
// The human always outranks the agent. The AskHuman path is the only
// user-facing suspension point in the system: the agent task is paused
// through the external controller (never busy-waited) and resumed by
// exactly one of an explicit response or the timeout, whose fail-safe is
// cancellation, never silent continuation.
//
// Every resolution produces a terminal core.Conflict emitted to the audit
// collaborator; a new overlap opens a new Conflict.
package arbiter
