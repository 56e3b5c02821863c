package core

import "time"

// ActorKind distinguishes the two classes of editor the arbiter
// reconciles. Humans always outrank agents.
type ActorKind string

const (
	// ActorHuman is a human participant.
	ActorHuman ActorKind = "human"
	// ActorAgent is an autonomous agent participant.
	ActorAgent ActorKind = "agent"
)

// Action is one actor's pending edit on a document, as seen by the
// arbiter before it reaches the coordinator.
type Action struct {
	ActorID    string         `json:"actor_id"`
	Kind       ActorKind      `json:"kind"`
	DocumentID string         `json:"document_id"`
	Batch      OperationBatch `json:"batch"`
	// Intent optionally carries the instruction the action serves; two
	// actions with contradictory intents classify as IntentConflict even
	// when their ranges merge cleanly.
	Intent string `json:"intent,omitempty"`
	// Exclusive marks an action that needs sole use of the document, such
	// as a document-wide rewrite. An exclusive action colliding with any
	// other classifies as ResourceConflict.
	Exclusive bool `json:"exclusive,omitempty"`
}

// ConflictType classifies how a human action and an agent action collide.
type ConflictType string

const (
	// ConflictSimultaneousEdit is an overlap of edit ranges on the same
	// content region.
	ConflictSimultaneousEdit ConflictType = "simultaneous_edit"
	// ConflictIntent means the two actions serve contradictory
	// instructions; range math alone cannot resolve it.
	ConflictIntent ConflictType = "intent_conflict"
	// ConflictResource means both actors need exclusive use of the same
	// resource (for example the same document-wide rewrite).
	ConflictResource ConflictType = "resource_conflict"
	// ConflictOutput means the agent's produced output contradicts content
	// the human has since written.
	ConflictOutput ConflictType = "output_conflict"
)

// ResolutionStrategy is the policy the arbiter applied (or will apply) to
// a conflict.
type ResolutionStrategy string

const (
	// ResolutionHumanWins applies the human op first and transforms the
	// agent's pending op against it. Default for SimultaneousEdit.
	ResolutionHumanWins ResolutionStrategy = "human_wins"
	// ResolutionMerge applies both; only valid when post-transform ranges
	// are disjoint.
	ResolutionMerge ResolutionStrategy = "merge"
	// ResolutionAskHuman suspends agent execution pending an explicit
	// human decision. Default for IntentConflict.
	ResolutionAskHuman ResolutionStrategy = "ask_human"
	// ResolutionQueue orders contenders FIFO, human before agent.
	ResolutionQueue ResolutionStrategy = "queue"
	// ResolutionAbortAgent terminates the agent action immediately.
	ResolutionAbortAgent ResolutionStrategy = "abort_agent"
)

// ArbitrationOption is one of the exactly three choices surfaced to the
// human on an AskHuman conflict.
type ArbitrationOption string

const (
	// OptionContinueAgent lets the suspended agent action proceed.
	OptionContinueAgent ArbitrationOption = "continue_agent"
	// OptionSwitchToHuman discards the agent action in favor of the
	// human's instruction.
	OptionSwitchToHuman ArbitrationOption = "switch_to_human"
	// OptionCancelAgent cancels the agent action. This is also the
	// fail-safe applied on timeout; silent continuation never happens.
	OptionCancelAgent ArbitrationOption = "cancel_agent"
)

// OverlapRegion is the content range both actions touch.
type OverlapRegion struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Conflict is the record of one human/agent collision. It is created on
// detection and terminal once resolved; a new overlap opens a new
// Conflict.
type Conflict struct {
	ID            string             `json:"id"`
	Type          ConflictType       `json:"type"`
	DocumentID    string             `json:"document_id"`
	HumanAction   Action             `json:"human_action"`
	AgentAction   Action             `json:"agent_action"`
	Overlap       *OverlapRegion     `json:"overlap_region,omitempty"`
	Strategy      ResolutionStrategy `json:"resolution_strategy"`
	ResolvedBy    string             `json:"resolved_by,omitempty"`
	DetectedAt    time.Time          `json:"detected_at"`
	ResolvedAt    *time.Time         `json:"resolved_at,omitempty"`
	DiscardReason string             `json:"discard_reason,omitempty"`
}

// Resolved reports whether the conflict is terminal.
func (c *Conflict) Resolved() bool { return c.ResolvedAt != nil }

// Resolution is what the arbiter hands back to the agent controller when
// a suspended or rebased agent action may proceed.
type Resolution struct {
	ConflictID string            `json:"conflict_id"`
	Option     ArbitrationOption `json:"option"`
	// RebasedOps carries the transformed agent operations queued back for
	// re-confirmation under HumanWins; nil otherwise.
	RebasedOps []Operation `json:"rebased_ops,omitempty"`
}
