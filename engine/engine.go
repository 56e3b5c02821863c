package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/collabmesh/arbiter"
	"github.com/hupe1980/collabmesh/coordinator"
	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/logging"
	"github.com/hupe1980/collabmesh/presence"
	"github.com/hupe1980/collabmesh/pubsub"
	"github.com/hupe1980/collabmesh/store"
)

// Options configures an Engine. Every collaborator has an in-memory or
// no-op default so a bare New() yields a working single-process instance.
type Options struct {
	// Config holds the tuning parameters; zero fields use DefaultConfig.
	Config Config

	// Store persists documents and history. Defaults to in-memory.
	Store core.DocumentStore

	// Publisher fans out operation and presence broadcasts. Defaults to
	// the in-memory publisher.
	Publisher core.Publisher

	// Permissions gates writes. Defaults to allow-all.
	Permissions core.PermissionChecker

	// Audit receives fire-and-forget events. Defaults to a no-op.
	Audit core.AuditSink

	// Controller is notified of agent pause/resume/discard decisions.
	// Optional.
	Controller core.AgentController

	// Logger defaults to NoOpLogger.
	Logger logging.Logger

	// Hooks are submission lifecycle observers, run in order.
	Hooks []Hook
}

// WithConfig sets the tuning parameters.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithStore sets the document store.
func WithStore(s core.DocumentStore) func(o *Options) {
	return func(o *Options) { o.Store = s }
}

// WithPublisher sets the broadcast publisher.
func WithPublisher(p core.Publisher) func(o *Options) {
	return func(o *Options) { o.Publisher = p }
}

// WithPermissionChecker sets the write-permission gate.
func WithPermissionChecker(p core.PermissionChecker) func(o *Options) {
	return func(o *Options) { o.Permissions = p }
}

// WithAuditSink sets the audit sink.
func WithAuditSink(a core.AuditSink) func(o *Options) {
	return func(o *Options) { o.Audit = a }
}

// WithAgentController sets the agent controller.
func WithAgentController(c core.AgentController) func(o *Options) {
	return func(o *Options) { o.Controller = c }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithHook registers a submission lifecycle hook.
func WithHook(h Hook) func(o *Options) {
	return func(o *Options) { o.Hooks = append(o.Hooks, h) }
}

type allowAll struct{}

func (allowAll) MayWrite(context.Context, string, string) bool { return true }

type noopAudit struct{}

func (noopAudit) Emit(core.AuditEvent) {}

// SubmitResult is the outcome of one Submit call. Exactly one of the two
// shapes applies: Applied is set when a batch reached the document, and
// Outcome is set when the submission went through arbitration (in which
// case Applied is set only for the AgentProceeds and AgentQueued
// dispositions).
type SubmitResult struct {
	Applied *coordinator.Result
	Outcome *arbiter.Outcome
}

// humanMark remembers the most recent applied human action per document,
// so a following agent submission that has not seen it can be arbitrated.
type humanMark struct {
	action   core.Action
	revision int64
}

// Engine is the assembled collaboration core.
type Engine struct {
	config      Config
	permissions core.PermissionChecker
	audit       core.AuditSink
	logger      logging.Logger
	hooks       *hookSet

	coordinator *coordinator.Coordinator
	presence    *presence.Engine
	arbiter     *arbiter.Arbiter

	mu        sync.Mutex
	lastHuman map[string]humanMark
}

// New assembles an Engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:      DefaultConfig,
		Store:       store.NewInMemoryStore(),
		Permissions: allowAll{},
		Audit:       noopAudit{},
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config.withDefaults()

	if opts.Publisher == nil {
		opts.Publisher = pubsub.NewInMemoryPublisherSize(cfg.EventBufferSize)
	}

	hooks := newHookSet()
	for _, h := range opts.Hooks {
		hooks.register(h)
	}

	coord := coordinator.New(func(o *coordinator.Options) {
		o.Store = opts.Store
		o.Publisher = opts.Publisher
		o.Audit = opts.Audit
		o.Logger = opts.Logger
		o.LockTimeout = cfg.LockTimeout
	})

	pres := presence.New(func(o *presence.Options) {
		o.Publisher = opts.Publisher
		o.Logger = opts.Logger
		o.IdleThreshold = cfg.IdleThreshold
		o.AwayThreshold = cfg.AwayThreshold
		o.TTL = cfg.PresenceTTL
		o.BroadcastInterval = cfg.BroadcastInterval
	})

	arb := arbiter.New(func(o *arbiter.Options) {
		o.Controller = opts.Controller
		o.Audit = opts.Audit
		o.Logger = opts.Logger
		o.Timeout = cfg.ArbitrationTimeout
	})

	return &Engine{
		config:      cfg,
		permissions: opts.Permissions,
		audit:       opts.Audit,
		logger:      opts.Logger,
		hooks:       hooks,
		coordinator: coord,
		presence:    pres,
		arbiter:     arb,
		lastHuman:   make(map[string]humanMark),
	}
}

// Submit routes one action through permission check, arbitration (agent
// actions colliding with a recent human action) and the coordinator.
func (e *Engine) Submit(ctx context.Context, action core.Action) (*SubmitResult, error) {
	if !e.permissions.MayWrite(ctx, action.ActorID, action.DocumentID) {
		e.rejectAudit(action, "permission_denied")

		return nil, fmt.Errorf("actor %s may not write document %s: %w", action.ActorID, action.DocumentID, core.ErrPermissionDenied)
	}

	hookCtx := &HookContext{Action: action}

	if err := e.hooks.run(ctx, HookBeforeApply, hookCtx); err != nil {
		e.rejectAudit(action, "hook_aborted")

		return nil, fmt.Errorf("before-apply hook: %w", err)
	}

	if action.Kind == core.ActorAgent {
		if mark, ok := e.pendingHumanFor(action); ok && arbiter.Overlaps(mark.action, action) {
			return e.arbitrate(ctx, mark, action)
		}
	}

	res, err := e.coordinator.Apply(ctx, action.DocumentID, action.Batch)
	if err != nil {
		e.runObserver(ctx, HookOnReject, &HookContext{Action: action, Err: err})

		return nil, err
	}

	if action.Kind == core.ActorHuman {
		e.rememberHuman(action, res.Revision)
	}

	e.presence.RebaseCursors(action.DocumentID, res.Ops)
	e.runObserver(ctx, HookAfterApply, &HookContext{Action: action, Result: res})

	return &SubmitResult{Applied: res}, nil
}

// arbitrate hands the colliding pair to the arbiter and acts on its
// verdict. Only AgentProceeds and AgentQueued reach the coordinator.
func (e *Engine) arbitrate(ctx context.Context, mark humanMark, action core.Action) (*SubmitResult, error) {
	snap, err := e.coordinator.Snapshot(action.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("reading document for arbitration: %w", err)
	}

	outcome, err := e.arbiter.Reconcile(ctx, snap.Content, mark.action, action)
	if err != nil {
		return nil, err
	}

	e.runObserver(ctx, HookOnConflict, &HookContext{Action: action, Conflict: outcome.Conflict})

	switch outcome.Disposition {
	case arbiter.AgentProceeds:
		batch := action.Batch
		batch.Ops = outcome.RebasedOps
		batch.BaseRevision = snap.Revision

		res, err := e.coordinator.Apply(ctx, action.DocumentID, batch)
		if err != nil {
			e.runObserver(ctx, HookOnReject, &HookContext{Action: action, Err: err})

			return &SubmitResult{Outcome: outcome}, err
		}

		e.presence.RebaseCursors(action.DocumentID, res.Ops)
		e.runObserver(ctx, HookAfterApply, &HookContext{Action: action, Result: res})

		return &SubmitResult{Applied: res, Outcome: outcome}, nil

	case arbiter.AgentQueued:
		// The stale batch rebases against the human's through the normal
		// transform path.
		res, err := e.coordinator.Apply(ctx, action.DocumentID, action.Batch)
		if err != nil {
			e.runObserver(ctx, HookOnReject, &HookContext{Action: action, Err: err})

			return &SubmitResult{Outcome: outcome}, err
		}

		e.presence.RebaseCursors(action.DocumentID, res.Ops)
		e.runObserver(ctx, HookAfterApply, &HookContext{Action: action, Result: res})

		return &SubmitResult{Applied: res, Outcome: outcome}, nil

	default:
		// Rebased, discarded, suspended or aborted: nothing is applied
		// here. Rebased batches come back through Submit once the agent
		// re-confirms.
		return &SubmitResult{Outcome: outcome}, nil
	}
}

// ResolveConflict routes a human decision to a suspended conflict.
func (e *Engine) ResolveConflict(conflictID, resolvedBy string, option core.ArbitrationOption) error {
	return e.arbiter.ResolvePending(conflictID, resolvedBy, option)
}

// UpdatePresence records an ephemeral presence update. It never touches
// document state and never fails; malformed updates are dropped.
func (e *Engine) UpdatePresence(docID string, record core.PresenceRecord) {
	e.presence.Update(docID, record)
}

// DisconnectPresence removes a participant's presence immediately.
func (e *Engine) DisconnectPresence(docID, participantID string) {
	e.presence.Disconnect(docID, participantID)
}

// Presence exposes the presence engine for queries (Get, List, Roster).
func (e *Engine) Presence() *presence.Engine { return e.presence }

// Snapshot returns the current content and revision of a document without
// entering its critical section.
func (e *Engine) Snapshot(docID string) (*core.Document, error) {
	return e.coordinator.Snapshot(docID)
}

// RegisterHook attaches a lifecycle hook. Registration is not
// synchronized with in-flight submissions; attach hooks before use.
func (e *Engine) RegisterHook(h Hook) {
	e.hooks.register(h)
}

// Close releases background resources (presence timers).
func (e *Engine) Close() {
	e.presence.Close()
}

// pendingHumanFor returns the recorded human action the agent submission
// has not seen, keyed by base revision.
func (e *Engine) pendingHumanFor(action core.Action) (humanMark, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mark, ok := e.lastHuman[action.DocumentID]
	if !ok || mark.revision <= action.Batch.BaseRevision {
		return humanMark{}, false
	}

	return mark, true
}

func (e *Engine) rememberHuman(action core.Action, revision int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastHuman[action.DocumentID] = humanMark{action: action, revision: revision}
}

// runObserver executes observer hooks; their errors are logged, never
// propagated.
func (e *Engine) runObserver(ctx context.Context, hookType HookType, hookCtx *HookContext) {
	if err := e.hooks.run(ctx, hookType, hookCtx); err != nil {
		e.logger.Warn("lifecycle hook failed", "hook", string(hookType), "document_id", hookCtx.Action.DocumentID, "error", err)
	}
}

func (e *Engine) rejectAudit(action core.Action, reason string) {
	e.audit.Emit(core.AuditEvent{
		Kind:       core.AuditBatchRejected,
		DocumentID: action.DocumentID,
		ClientID:   action.Batch.ClientID,
		Reason:     reason,
		Batch:      &action.Batch,
		Timestamp:  action.Batch.Timestamp,
	})
}
