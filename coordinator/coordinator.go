package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"

	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/logging"
	"github.com/hupe1980/collabmesh/ot"
	"github.com/hupe1980/collabmesh/store"
)

// DefaultLockTimeout bounds how long Apply waits for a document's
// critical section before giving up with ErrBusy. The section itself is
// short (triage, transform, apply, persist); five seconds of contention
// means something upstream is wedged.
const DefaultLockTimeout = 5 * time.Second

// DefaultResultCacheSize bounds the per-document idempotency cache.
const DefaultResultCacheSize = 1024

// Result is the outcome of an accepted batch. It is immutable and shared
// between the original submission and any idempotent retransmissions.
type Result struct {
	DocumentID string
	// Revision is the revision the batch was committed as. Accepted
	// batches advance the document by exactly one.
	Revision int64
	// Ops are the operations as actually applied (post-transform).
	Ops []core.Operation
	// Content is the document content after the batch.
	Content string
}

// Options configures a Coordinator.
type Options struct {
	// Store persists documents and history. Defaults to the in-memory
	// implementation.
	Store core.DocumentStore
	// Publisher receives the per-document broadcast after every accepted
	// batch. Defaults to a no-op.
	Publisher core.Publisher
	// Audit receives fire-and-forget accepted/rejected events. Defaults
	// to a no-op.
	Audit core.AuditSink
	// Logger defaults to NoOpLogger.
	Logger logging.Logger
	// LockTimeout bounds critical-section acquisition. Defaults to
	// DefaultLockTimeout.
	LockTimeout time.Duration
	// ResultCacheSize bounds the per-document idempotency cache.
	// Defaults to DefaultResultCacheSize.
	ResultCacheSize int
}

// Coordinator owns the per-document critical sections and the idempotency
// bookkeeping. It is safe for concurrent use; work on distinct documents
// never serializes.
type Coordinator struct {
	store       core.DocumentStore
	publisher   core.Publisher
	audit       core.AuditSink
	logger      logging.Logger
	lockTimeout time.Duration
	cacheSize   int

	// arena maps document id to *documentState. The map itself is
	// lock-free; all contention is on the per-document section inside.
	arena *hashmap.HashMap
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, core.Broadcast) {}

type noopAudit struct{}

func (noopAudit) Emit(core.AuditEvent) {}

// New constructs a Coordinator with optional overrides. Any unset
// collaborator is initialized with an in-memory or no-op implementation.
func New(optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Store:       store.NewInMemoryStore(),
		Publisher:   noopPublisher{},
		Audit:       noopAudit{},
		Logger:      logging.NoOpLogger{},
		LockTimeout: DefaultLockTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = DefaultLockTimeout
	}
	if opts.ResultCacheSize <= 0 {
		opts.ResultCacheSize = DefaultResultCacheSize
	}
	return &Coordinator{
		store:       opts.Store,
		publisher:   opts.Publisher,
		audit:       opts.Audit,
		logger:      opts.Logger,
		lockTimeout: opts.LockTimeout,
		cacheSize:   opts.ResultCacheSize,
		arena:       &hashmap.HashMap{},
	}
}

// documentState is the coordinator's per-document bookkeeping. The
// critical section is a capacity-one semaphore so acquisition can honor
// the lock timeout; sync.Mutex cannot be waited on with a deadline.
type documentState struct {
	section chan struct{}

	cacheMu  sync.Mutex
	inflight map[string]chan struct{}
	// results caches terminal outcomes by idempotency key, bounded FIFO
	// to the newest limit entries. A retransmission whose key has been
	// evicted is indistinguishable from a new batch and re-executes, so
	// the window must outlive the clients' retry horizon.
	results map[string]*cachedOutcome
	order   []string
	limit   int
}

type cachedOutcome struct {
	result *Result
	err    error
}

func newDocumentState(limit int) *documentState {
	return &documentState{
		section:  make(chan struct{}, 1),
		inflight: make(map[string]chan struct{}),
		results:  make(map[string]*cachedOutcome),
		limit:    limit,
	}
}

func (c *Coordinator) state(docID string) *documentState {
	actual, _ := c.arena.GetOrInsert(docID, newDocumentState(c.cacheSize))
	return actual.(*documentState)
}

// Apply runs one batch through the coordination pipeline: idempotency
// check, critical section, staleness triage, rebase, apply, persist,
// broadcast. On success the document's revision has advanced by exactly
// one; on any rejection it is untouched.
//
// Errors wrap the core taxonomy: core.ErrInvalidRevision when the batch
// claims a future base revision, core.ErrMalformedOperation when an op is
// out of range after transformation, core.ErrBusy when the critical
// section cannot be acquired in time, and core.ErrConcurrentExecution
// when a duplicate in-flight submission cannot await its twin's result.
func (c *Coordinator) Apply(ctx context.Context, docID string, batch core.OperationBatch) (*Result, error) {
	st := c.state(docID)

	// Idempotency gate. A completed duplicate returns the original
	// outcome; an in-flight duplicate awaits it.
	st.cacheMu.Lock()
	if outcome, ok := st.results[batch.IdempotencyKey]; ok {
		st.cacheMu.Unlock()
		return outcome.result, outcome.err
	}
	if done, ok := st.inflight[batch.IdempotencyKey]; ok {
		st.cacheMu.Unlock()
		return c.awaitInflight(ctx, st, batch.IdempotencyKey, done)
	}
	done := make(chan struct{})
	st.inflight[batch.IdempotencyKey] = done
	st.cacheMu.Unlock()

	result, err := c.applyLocked(ctx, st, docID, batch)

	st.cacheMu.Lock()
	delete(st.inflight, batch.IdempotencyKey)
	// ErrBusy and context errors are transient; the client may legally
	// retry the same key, so they are not recorded as the batch's outcome.
	if err == nil || isTerminal(err) {
		if _, exists := st.results[batch.IdempotencyKey]; !exists {
			st.order = append(st.order, batch.IdempotencyKey)
		}
		st.results[batch.IdempotencyKey] = &cachedOutcome{result: result, err: err}
		for len(st.order) > st.limit {
			delete(st.results, st.order[0])
			st.order = st.order[1:]
		}
	}
	st.cacheMu.Unlock()
	close(done)

	return result, err
}

func isTerminal(err error) bool {
	return errors.Is(err, core.ErrInvalidRevision) || errors.Is(err, core.ErrMalformedOperation)
}

// awaitInflight blocks until the twin submission finishes, then returns
// its cached outcome.
func (c *Coordinator) awaitInflight(ctx context.Context, st *documentState, key string, done <-chan struct{}) (*Result, error) {
	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", core.ErrConcurrentExecution, ctx.Err())
	}
	st.cacheMu.Lock()
	defer st.cacheMu.Unlock()
	if outcome, ok := st.results[key]; ok {
		return outcome.result, outcome.err
	}
	// The twin hit a transient failure and cached nothing.
	return nil, fmt.Errorf("%w: in-flight submission did not complete", core.ErrConcurrentExecution)
}

// applyLocked acquires the critical section and runs triage + apply.
func (c *Coordinator) applyLocked(ctx context.Context, st *documentState, docID string, batch core.OperationBatch) (*Result, error) {
	timer := time.NewTimer(c.lockTimeout)
	defer timer.Stop()
	select {
	case st.section <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", core.ErrBusy, docID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-st.section }()

	doc, err := c.store.Get(docID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}

	ops := batch.Ops
	switch {
	case batch.BaseRevision > doc.Revision:
		// The client claims to have seen a future revision: protocol
		// violation, never retried.
		err := &core.RevisionError{DocumentID: docID, Base: batch.BaseRevision, Current: doc.Revision}
		c.reject(docID, batch, err.Error())
		return nil, err
	case batch.BaseRevision < doc.Revision:
		history, err := c.store.History(docID, batch.BaseRevision, doc.Revision)
		if err != nil {
			return nil, fmt.Errorf("history for %s: %w", docID, err)
		}
		ops = ot.TransformBatch(ops, batch.ClientID, history)
	}

	content, err := core.ApplyAll(doc.Content, ops)
	if err != nil {
		// Out of range after transformation: surfaced, never auto-retried.
		c.reject(docID, batch, err.Error())
		return nil, err
	}

	doc.Content = content
	doc.Revision++
	if err := c.store.Put(doc); err != nil {
		return nil, fmt.Errorf("put document %s: %w", docID, err)
	}
	entry := core.HistoryEntry{
		Revision:       doc.Revision,
		ClientID:       batch.ClientID,
		TransformedOps: ops,
		OriginalOps:    batch.Ops,
		BaseRevision:   batch.BaseRevision,
	}
	if err := c.store.AppendHistory(docID, entry); err != nil {
		return nil, fmt.Errorf("append history %s: %w", docID, err)
	}

	c.logger.Debug("batch accepted", "document_id", docID, "revision", doc.Revision, "client_id", batch.ClientID, "ops", len(ops))
	c.publisher.Publish(docID, core.Broadcast{
		DocumentID: docID,
		Revision:   doc.Revision,
		ClientID:   batch.ClientID,
		Ops:        ops,
	})
	c.audit.Emit(core.AuditEvent{
		Kind:       core.AuditBatchAccepted,
		DocumentID: docID,
		Timestamp:  time.Now().UTC(),
		ClientID:   batch.ClientID,
		Revision:   doc.Revision,
		Batch:      &batch,
	})

	return &Result{DocumentID: docID, Revision: doc.Revision, Ops: ops, Content: content}, nil
}

func (c *Coordinator) reject(docID string, batch core.OperationBatch, reason string) {
	c.logger.Warn("batch rejected", "document_id", docID, "client_id", batch.ClientID, "reason", reason)
	c.audit.Emit(core.AuditEvent{
		Kind:       core.AuditBatchRejected,
		DocumentID: docID,
		Timestamp:  time.Now().UTC(),
		ClientID:   batch.ClientID,
		Reason:     reason,
		Batch:      &batch,
	})
}

// Snapshot returns the current content and revision without entering the
// critical section. Reads may be slightly stale relative to a concurrent
// in-section write, which is fine: the revision tells the caller exactly
// where the snapshot sits in the total order.
func (c *Coordinator) Snapshot(docID string) (*core.Document, error) {
	return c.store.Get(docID)
}
