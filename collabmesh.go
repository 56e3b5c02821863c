// Package collabmesh provides a high-level façade over the collaboration
// core (OT coordinator, presence engine, conflict arbiter and their
// collaborators), enabling rapid construction of server-authoritative
// real-time editing backends. Most applications interact with this
// package by:
//  1. Creating a CollabMesh via New() (optionally overriding default in-memory collaborators)
//  2. Submitting operation batches (Submit / Edit) and presence updates (UpdatePresence)
//  3. Subscribing to per-document broadcasts (Subscribe)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a
// durable document store, a real broadcast fabric and a structured logger.
package collabmesh

import (
	"context"
	"fmt"

	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/engine"
	"github.com/hupe1980/collabmesh/logging"
	"github.com/hupe1980/collabmesh/pubsub"
)

// Subscriber is the optional capability of a Publisher that supports
// local subscriptions. The in-memory publisher implements it; a cluster
// fabric typically handles subscriptions out of band.
type Subscriber interface {
	Subscribe(docID string) (<-chan core.Broadcast, func())
}

// Options configures the CollabMesh instance.
type Options struct {
	// Config holds the engine tuning parameters (lock timeout, presence
	// thresholds, arbitration timeout, buffer sizes).
	Config engine.Config

	// Store persists documents and history (defaults to in-memory).
	Store core.DocumentStore

	// Publisher fans out operation and presence broadcasts (defaults to
	// the in-memory publisher, which also enables Subscribe).
	Publisher core.Publisher

	// Permissions gates writes (defaults to allow-all).
	Permissions core.PermissionChecker

	// Audit receives fire-and-forget events (defaults to a no-op).
	Audit core.AuditSink

	// Controller is notified of agent pause/resume/discard decisions.
	Controller core.AgentController

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// CollabMesh is the high-level façade aggregating the underlying engine
// and collaborators.
type CollabMesh struct {
	opts   Options
	engine *engine.Engine
}

// New creates a new CollabMesh instance with optional overrides. Any
// unset collaborator is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *CollabMesh {
	opts := Options{
		Config: engine.DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Publisher == nil {
		opts.Publisher = pubsub.NewInMemoryPublisherSize(opts.Config.EventBufferSize)
	}

	// Only explicit overrides are forwarded; engine.New fills the rest
	// with its in-memory defaults.
	e := engine.New(func(o *engine.Options) {
		o.Config = opts.Config
		o.Publisher = opts.Publisher
		o.Controller = opts.Controller
		o.Logger = opts.Logger
		if opts.Store != nil {
			o.Store = opts.Store
		}
		if opts.Permissions != nil {
			o.Permissions = opts.Permissions
		}
		if opts.Audit != nil {
			o.Audit = opts.Audit
		}
	})

	return &CollabMesh{opts: opts, engine: e}
}

// Submit routes one action through permission check, arbitration and the
// coordinator.
func (m *CollabMesh) Submit(ctx context.Context, action core.Action) (*engine.SubmitResult, error) {
	return m.engine.Submit(ctx, action)
}

// Edit is a convenience wrapper submitting a human operation batch.
func (m *CollabMesh) Edit(ctx context.Context, docID, actorID string, baseRevision int64, ops ...core.Operation) (*engine.SubmitResult, error) {
	return m.engine.Submit(ctx, core.Action{
		ActorID:    actorID,
		Kind:       core.ActorHuman,
		DocumentID: docID,
		Batch:      core.NewOperationBatch(actorID, baseRevision, ops...),
	})
}

// AgentEdit is a convenience wrapper submitting an agent operation batch.
func (m *CollabMesh) AgentEdit(ctx context.Context, docID, agentID string, baseRevision int64, ops ...core.Operation) (*engine.SubmitResult, error) {
	return m.engine.Submit(ctx, core.Action{
		ActorID:    agentID,
		Kind:       core.ActorAgent,
		DocumentID: docID,
		Batch:      core.NewOperationBatch(agentID, baseRevision, ops...),
	})
}

// UpdatePresence records an ephemeral presence update. It never fails;
// malformed updates are dropped.
func (m *CollabMesh) UpdatePresence(docID string, record core.PresenceRecord) {
	m.engine.UpdatePresence(docID, record)
}

// DisconnectPresence removes a participant's presence immediately.
func (m *CollabMesh) DisconnectPresence(docID, participantID string) {
	m.engine.DisconnectPresence(docID, participantID)
}

// Subscribe returns a per-document broadcast channel and a cancel
// function. It fails when the configured publisher does not support
// local subscriptions.
func (m *CollabMesh) Subscribe(docID string) (<-chan core.Broadcast, func(), error) {
	sub, ok := m.opts.Publisher.(Subscriber)
	if !ok {
		return nil, nil, fmt.Errorf("publisher %T does not support subscriptions", m.opts.Publisher)
	}

	ch, cancel := sub.Subscribe(docID)

	return ch, cancel, nil
}

// Snapshot returns the current content and revision of a document.
func (m *CollabMesh) Snapshot(docID string) (*core.Document, error) {
	return m.engine.Snapshot(docID)
}

// ResolveConflict routes a human decision to a suspended conflict.
func (m *CollabMesh) ResolveConflict(conflictID, resolvedBy string, option core.ArbitrationOption) error {
	return m.engine.ResolveConflict(conflictID, resolvedBy, option)
}

// Engine exposes the underlying engine for advanced use (hooks, presence
// queries).
func (m *CollabMesh) Engine() *engine.Engine { return m.engine }

// Close releases background resources.
func (m *CollabMesh) Close() {
	m.engine.Close()
}
