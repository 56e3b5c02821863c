package arbiter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/logging"
	"github.com/hupe1980/collabmesh/ot"
)

// DefaultArbitrationTimeout bounds how long an AskHuman conflict may stay
// suspended before the fail-safe (cancel the agent) fires.
const DefaultArbitrationTimeout = 30 * time.Second

// Disposition tells the caller what to do with the agent's batch after
// reconciliation. The human's batch always applies.
type Disposition string

const (
	// AgentProceeds means both edits are compatible: apply the agent's
	// transformed batch directly, no penalty.
	AgentProceeds Disposition = "agent_proceeds"
	// AgentRebased means the rebased batch was handed back to the agent
	// for re-confirmation. It must NOT be applied by the caller.
	AgentRebased Disposition = "agent_rebased"
	// AgentDiscarded means the agent's batch is dropped and the agent
	// was notified with the discard reason.
	AgentDiscarded Disposition = "agent_discarded"
	// AgentSuspended means the agent task is paused awaiting a human
	// decision; Outcome.Pending carries the handle.
	AgentSuspended Disposition = "agent_suspended"
	// AgentQueued means the agent's batch should be submitted after the
	// human's and rebased through the normal transform path.
	AgentQueued Disposition = "agent_queued"
	// AgentAborted means the agent action was cancelled outright.
	AgentAborted Disposition = "agent_aborted"
)

// Outcome is the arbiter's verdict on a human/agent collision.
type Outcome struct {
	Conflict    *core.Conflict
	Disposition Disposition

	// RebasedOps holds the agent's operations transformed against the
	// human's. Set for AgentProceeds (apply them) and AgentRebased
	// (handed to the agent, informational for the caller).
	RebasedOps []core.Operation

	// Pending is non-nil only for AgentSuspended.
	Pending *Pending
}

// Options configures an Arbiter.
type Options struct {
	// Controller is notified of pause/resume/discard decisions. Optional;
	// without one the arbiter still classifies and records conflicts.
	Controller core.AgentController

	// Audit defaults to a no-op sink.
	Audit core.AuditSink

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// Timeout bounds AskHuman suspensions. Defaults to
	// DefaultArbitrationTimeout.
	Timeout time.Duration

	// Strategy overrides the conflict-type to strategy mapping when
	// non-nil. Defaults to DefaultStrategy.
	Strategy func(core.ConflictType) core.ResolutionStrategy
}

type noopAudit struct{}

func (noopAudit) Emit(core.AuditEvent) {}

// Arbiter classifies and resolves conflicts between one human and one
// agent action targeting the same document.
type Arbiter struct {
	controller core.AgentController
	audit      core.AuditSink
	logger     logging.Logger
	timeout    time.Duration
	strategy   func(core.ConflictType) core.ResolutionStrategy

	mu      sync.Mutex
	pending map[string]*Pending
}

// New constructs an Arbiter with optional overrides.
func New(optFns ...func(o *Options)) *Arbiter {
	opts := Options{
		Audit:    noopAudit{},
		Logger:   logging.NoOpLogger{},
		Timeout:  DefaultArbitrationTimeout,
		Strategy: DefaultStrategy,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Arbiter{
		controller: opts.Controller,
		audit:      opts.Audit,
		logger:     opts.Logger,
		timeout:    opts.Timeout,
		strategy:   opts.Strategy,
		pending:    make(map[string]*Pending),
	}
}

// DefaultStrategy maps a conflict type to the resolution strategy used
// when no override is configured.
func DefaultStrategy(ct core.ConflictType) core.ResolutionStrategy {
	switch ct {
	case core.ConflictIntent:
		return core.ResolutionAskHuman
	case core.ConflictResource:
		return core.ResolutionQueue
	case core.ConflictOutput:
		return core.ResolutionMerge
	default:
		return core.ResolutionHumanWins
	}
}

// Classify determines the conflict type between a human and an agent
// action. Intent contradictions outrank positional overlap: two actors
// pursuing different stated goals conflict even when their edits could
// merge cleanly.
func Classify(human, agent core.Action) core.ConflictType {
	if human.Intent != "" && agent.Intent != "" && human.Intent != agent.Intent {
		return core.ConflictIntent
	}

	if human.Exclusive || agent.Exclusive {
		return core.ConflictResource
	}

	if overlap(human.Batch.Ops, agent.Batch.Ops) != nil {
		return core.ConflictSimultaneousEdit
	}

	return core.ConflictOutput
}

// Overlaps reports whether two actions collide at all, i.e. whether
// Reconcile is warranted. Non-colliding actions go straight to the
// coordinator.
func Overlaps(human, agent core.Action) bool {
	if human.Intent != "" && agent.Intent != "" && human.Intent != agent.Intent {
		return true
	}

	if human.Exclusive || agent.Exclusive {
		return true
	}

	return overlap(human.Batch.Ops, agent.Batch.Ops) != nil
}

// Reconcile resolves a collision between a human and an agent action.
// content is the document content with the human's batch already applied;
// it bounds the validity check on the agent's rebased operations. The
// human's batch is never touched by arbitration: the verdict concerns the
// agent's.
func (a *Arbiter) Reconcile(ctx context.Context, content string, human, agent core.Action) (*Outcome, error) {
	ct := Classify(human, agent)
	strategy := a.strategy(ct)

	conflict := &core.Conflict{
		ID:          core.NewID(),
		Type:        ct,
		DocumentID:  human.DocumentID,
		HumanAction: human,
		AgentAction: agent,
		Overlap:     overlap(human.Batch.Ops, agent.Batch.Ops),
		Strategy:    strategy,
		DetectedAt:  time.Now(),
	}

	a.emit(core.AuditConflictDetected, conflict)

	switch strategy {
	case core.ResolutionHumanWins:
		return a.humanWins(ctx, content, conflict), nil
	case core.ResolutionMerge:
		return a.merge(ctx, content, conflict), nil
	case core.ResolutionAskHuman:
		return a.askHuman(ctx, conflict), nil
	case core.ResolutionQueue:
		return a.queue(conflict), nil
	case core.ResolutionAbortAgent:
		return a.abort(ctx, conflict, "aborted_by_policy"), nil
	default:
		return nil, fmt.Errorf("unknown resolution strategy %q: %w", strategy, core.ErrConflictUnresolved)
	}
}

// ResolvePending routes an explicit human decision to the suspended
// conflict with the given ID. It fails when no such suspension exists or
// the conflict already settled.
func (a *Arbiter) ResolvePending(conflictID, resolvedBy string, option core.ArbitrationOption) error {
	a.mu.Lock()
	p, ok := a.pending[conflictID]
	a.mu.Unlock()

	if !ok {
		return fmt.Errorf("no suspended conflict %q: %w", conflictID, core.ErrConflictUnresolved)
	}

	return p.Resolve(resolvedBy, option)
}

// PendingCount reports how many conflicts are currently suspended.
func (a *Arbiter) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.pending)
}

// humanWins transforms the agent's batch against the human's. An in-range
// result is queued back to the agent for re-confirmation, never
// auto-applied; an out-of-range result is discarded.
func (a *Arbiter) humanWins(ctx context.Context, content string, conflict *core.Conflict) *Outcome {
	rebased := rebaseAgainst(conflict.AgentAction.Batch.Ops, conflict.HumanAction.Batch.Ops)

	if !inRange(rebased, len(content)) {
		return a.discard(ctx, conflict, "conflicted_with_human_edit")
	}

	a.finish(conflict, conflict.HumanAction.ActorID)

	if a.controller != nil {
		if err := a.controller.Resume(ctx, conflict.AgentAction.ActorID, core.Resolution{
			ConflictID: conflict.ID,
			Option:     core.OptionContinueAgent,
			RebasedOps: rebased,
		}); err != nil {
			a.logger.Error("resuming agent after rebase", "conflict_id", conflict.ID, "agent_id", conflict.AgentAction.ActorID, "error", err)
		}
	}

	return &Outcome{
		Conflict:    conflict,
		Disposition: AgentRebased,
		RebasedOps:  rebased,
	}
}

// merge applies only when the pre-transform ranges are disjoint and the
// rebased batch stays in range; otherwise it degrades to humanWins.
func (a *Arbiter) merge(ctx context.Context, content string, conflict *core.Conflict) *Outcome {
	rebased := rebaseAgainst(conflict.AgentAction.Batch.Ops, conflict.HumanAction.Batch.Ops)

	if conflict.Overlap != nil || !inRange(rebased, len(content)) {
		return a.humanWins(ctx, content, conflict)
	}

	a.finish(conflict, "")

	return &Outcome{
		Conflict:    conflict,
		Disposition: AgentProceeds,
		RebasedOps:  rebased,
	}
}

// askHuman pauses the agent task and suspends the conflict until a human
// picks one of the three options or the timeout cancels the agent.
func (a *Arbiter) askHuman(ctx context.Context, conflict *core.Conflict) *Outcome {
	if a.controller != nil {
		if err := a.controller.Pause(ctx, conflict.AgentAction.ActorID); err != nil {
			a.logger.Error("pausing agent for arbitration", "conflict_id", conflict.ID, "agent_id", conflict.AgentAction.ActorID, "error", err)
		}
	}

	p := newPending(conflict, a.timeout, a.settle)

	a.mu.Lock()
	a.pending[conflict.ID] = p
	a.mu.Unlock()

	a.logger.Info("conflict suspended for human decision", "conflict_id", conflict.ID, "document_id", conflict.DocumentID, "type", string(conflict.Type))

	return &Outcome{
		Conflict:    conflict,
		Disposition: AgentSuspended,
		Pending:     p,
	}
}

// settle finalizes a suspended conflict. It fires exactly once, from
// Resolve, Cancel, or the timeout.
func (a *Arbiter) settle(conflict *core.Conflict, resolvedBy string, option core.ArbitrationOption, timedOut bool) {
	a.mu.Lock()
	delete(a.pending, conflict.ID)
	a.mu.Unlock()

	a.finish(conflict, resolvedBy)

	ctx := context.Background()

	if a.controller != nil {
		switch option {
		case core.OptionContinueAgent:
			if err := a.controller.Resume(ctx, conflict.AgentAction.ActorID, core.Resolution{
				ConflictID: conflict.ID,
				Option:     option,
			}); err != nil {
				a.logger.Error("resuming agent after arbitration", "conflict_id", conflict.ID, "error", err)
			}
		case core.OptionSwitchToHuman:
			conflict.DiscardReason = "switched_to_human_instruction"
			a.controller.NotifyDiscarded(ctx, conflict.AgentAction.ActorID, conflict.AgentAction, conflict.DiscardReason)
		case core.OptionCancelAgent:
			conflict.DiscardReason = "cancelled_by_human"
			if timedOut {
				conflict.DiscardReason = "arbitration_timeout"
			}

			a.controller.NotifyDiscarded(ctx, conflict.AgentAction.ActorID, conflict.AgentAction, conflict.DiscardReason)
		}
	}

	a.logger.Info("conflict resolved", "conflict_id", conflict.ID, "option", string(option), "resolved_by", resolvedBy, "timed_out", timedOut)
}

// queue lets the agent's batch through after the human's; it is rebased
// by the normal transform path on submission.
func (a *Arbiter) queue(conflict *core.Conflict) *Outcome {
	a.finish(conflict, "")

	return &Outcome{
		Conflict:    conflict,
		Disposition: AgentQueued,
	}
}

// abort cancels the agent action outright.
func (a *Arbiter) abort(ctx context.Context, conflict *core.Conflict, reason string) *Outcome {
	conflict.DiscardReason = reason

	a.finish(conflict, "")

	if a.controller != nil {
		a.controller.NotifyDiscarded(ctx, conflict.AgentAction.ActorID, conflict.AgentAction, reason)
	}

	return &Outcome{
		Conflict:    conflict,
		Disposition: AgentAborted,
	}
}

func (a *Arbiter) discard(ctx context.Context, conflict *core.Conflict, reason string) *Outcome {
	conflict.DiscardReason = reason

	a.finish(conflict, conflict.HumanAction.ActorID)

	if a.controller != nil {
		a.controller.NotifyDiscarded(ctx, conflict.AgentAction.ActorID, conflict.AgentAction, reason)
	}

	return &Outcome{
		Conflict:    conflict,
		Disposition: AgentDiscarded,
	}
}

// finish marks the conflict terminal and emits the resolution audit event.
func (a *Arbiter) finish(conflict *core.Conflict, resolvedBy string) {
	now := time.Now()
	conflict.ResolvedAt = &now
	conflict.ResolvedBy = resolvedBy

	a.emit(core.AuditConflictResolved, conflict)
}

func (a *Arbiter) emit(kind core.AuditEventKind, conflict *core.Conflict) {
	a.audit.Emit(core.AuditEvent{
		Kind:       kind,
		DocumentID: conflict.DocumentID,
		Timestamp:  time.Now(),
		Reason:     string(conflict.Type) + "/" + string(conflict.Strategy),
		Conflict:   conflict,
	})
}

// rebaseAgainst transforms each of the agent's operations against every
// human operation, the human side winning ties.
func rebaseAgainst(agentOps, humanOps []core.Operation) []core.Operation {
	rebased := make([]core.Operation, 0, len(agentOps))

	for _, op := range agentOps {
		for _, h := range humanOps {
			op = ot.Transform(op, h, ot.BWins)
		}

		rebased = append(rebased, op)
	}

	return rebased
}

// inRange reports whether every operation stays within a document of the
// given length. No-op remnants of full subsumption do not count.
func inRange(ops []core.Operation, docLen int) bool {
	for _, op := range ops {
		if op.IsNoop() {
			continue
		}

		if op.Pos < 0 || op.End() > docLen {
			return false
		}
	}

	return true
}

// overlap computes the intersection of the two batches' touched ranges in
// their shared base coordinates, or nil when they are disjoint.
func overlap(a, b []core.Operation) *core.OverlapRegion {
	aStart, aEnd, ok := span(a)
	if !ok {
		return nil
	}

	bStart, bEnd, ok := span(b)
	if !ok {
		return nil
	}

	start := aStart
	if bStart > start {
		start = bStart
	}

	end := aEnd
	if bEnd < end {
		end = bEnd
	}

	if start > end {
		return nil
	}

	return &core.OverlapRegion{Start: start, End: end}
}

// span returns the inclusive hull of the positions a batch touches. An
// insert occupies a single point, so two inserts at the same position
// still overlap.
func span(ops []core.Operation) (start, end int, ok bool) {
	first := true

	for _, op := range ops {
		if op.Type == core.OpRetain {
			continue
		}

		s, e := op.Pos, op.End()

		if first {
			start, end, first = s, e, false

			continue
		}

		if s < start {
			start = s
		}

		if e > end {
			end = e
		}
	}

	return start, end, !first
}
