package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/collabmesh/audit"
	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/pubsub"
	"github.com/hupe1980/collabmesh/store"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *pubsub.InMemoryPublisher, *audit.RecordingSink, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	pub := pubsub.NewInMemoryPublisher()
	sink := audit.NewRecordingSink()
	c := New(func(o *Options) {
		o.Store = st
		o.Publisher = pub
		o.Audit = sink
	})
	return c, pub, sink, st
}

func TestApplyAtCurrentRevision(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	res, err := c.Apply(ctx, "doc-1", core.NewOperationBatch("alice", 0, core.Insert(0, "hello")))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Revision)
	assert.Equal(t, "hello", res.Content)

	doc, err := c.Snapshot("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.Content)
	assert.Equal(t, int64(1), doc.Revision)
}

func TestApplyRebasesStaleBatch(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Apply(ctx, "doc-1", core.NewOperationBatch("alice", 0, core.Insert(0, "Hello world")))
	require.NoError(t, err)

	// bob deletes "Hello " against revision 1 while alice's next insert
	// (also against revision 1) commits first.
	_, err = c.Apply(ctx, "doc-1", core.NewOperationBatch("alice", 1, core.Insert(0, ">> ")))
	require.NoError(t, err)

	res, err := c.Apply(ctx, "doc-1", core.NewOperationBatch("bob", 1, core.Delete(0, 6)))
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Revision)
	// bob's delete was rebased past alice's 3-byte insert.
	assert.Equal(t, []core.Operation{core.Delete(3, 6)}, res.Ops)
	assert.Equal(t, ">> world", res.Content)
}

func TestApplyRejectsFutureBaseRevision(t *testing.T) {
	c, _, sink, _ := newTestCoordinator(t)

	_, err := c.Apply(context.Background(), "doc-1", core.NewOperationBatch("alice", 7, core.Insert(0, "x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidRevision))

	var revErr *core.RevisionError
	require.True(t, errors.As(err, &revErr))
	assert.Equal(t, int64(7), revErr.Base)

	rejected := sink.OfKind(core.AuditBatchRejected)
	require.Len(t, rejected, 1)

	doc, err := c.Snapshot("doc-1")
	require.NoError(t, err)
	assert.Zero(t, doc.Revision, "rejected batches never increment the revision")
}

func TestApplyRejectsMalformedPostTransform(t *testing.T) {
	c, _, sink, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := c.Apply(ctx, "doc-1", core.NewOperationBatch("alice", 0, core.Insert(0, "abc")))
	require.NoError(t, err)

	// Delete beyond the content length is malformed at apply time.
	_, err = c.Apply(ctx, "doc-1", core.NewOperationBatch("bob", 1, core.Delete(1, 10)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMalformedOperation))
	require.Len(t, sink.OfKind(core.AuditBatchRejected), 1)

	doc, err := c.Snapshot("doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Revision)
}

func TestIdempotentRetransmission(t *testing.T) {
	c, pub, _, st := newTestCoordinator(t)
	ctx := context.Background()

	ch, cancel := pub.Subscribe("doc-1")
	defer cancel()

	batch := core.NewOperationBatch("alice", 0, core.Insert(0, "hi"))
	first, err := c.Apply(ctx, "doc-1", batch)
	require.NoError(t, err)

	// Network retry: the identical batch is submitted again.
	second, err := c.Apply(ctx, "doc-1", batch)
	require.NoError(t, err)
	assert.Equal(t, first, second, "duplicate submission yields the same result")

	doc, err := st.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Revision, "exactly one mutation")

	history, err := st.History("doc-1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1, "exactly one history entry")

	assert.Len(t, drain(ch), 1, "exactly one broadcast")
}

func TestIdempotentRejectionIsCachedToo(t *testing.T) {
	c, _, sink, _ := newTestCoordinator(t)
	ctx := context.Background()

	batch := core.NewOperationBatch("alice", 5, core.Insert(0, "x"))
	_, err1 := c.Apply(ctx, "doc-1", batch)
	_, err2 := c.Apply(ctx, "doc-1", batch)
	require.Error(t, err1)
	require.Error(t, err2)
	assert.True(t, errors.Is(err2, core.ErrInvalidRevision))
	assert.Len(t, sink.OfKind(core.AuditBatchRejected), 1, "rejection audited once")
}

func TestResultCacheEvictsOldestKeys(t *testing.T) {
	c := New(func(o *Options) {
		o.ResultCacheSize = 2
	})
	ctx := context.Background()

	bob := core.NewOperationBatch("bob", 0, core.Insert(0, "b"))
	_, err := c.Apply(ctx, "doc-1", bob)
	require.NoError(t, err)

	// Two more batches push bob's key out of the window.
	for i := 1; i <= 2; i++ {
		last := core.NewOperationBatch("alice", int64(i), core.Insert(0, "a"))
		_, err := c.Apply(ctx, "doc-1", last)
		require.NoError(t, err)

		// A key still inside the window replays the cached result.
		replay, err := c.Apply(ctx, "doc-1", last)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), replay.Revision)
	}

	// bob's evicted key is indistinguishable from a new batch: the
	// retransmission re-executes as a stale submission.
	res, err := c.Apply(ctx, "doc-1", bob)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Revision)
}

func TestDuplicateInflightAwaitsResult(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	batch := core.NewOperationBatch("alice", 0, core.Insert(0, "hi"))

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Apply(ctx, "doc-1", batch)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0], results[1])

	doc, err := c.Snapshot("doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Revision)
}

func TestConvergenceRegardlessOfArrivalOrder(t *testing.T) {
	// Two concurrent batches from a common base must produce identical
	// final content whichever reaches the coordinator first.
	ctx := context.Background()

	run := func(first, second core.OperationBatch) string {
		c, _, _, _ := newTestCoordinator(t)
		_, err := c.Apply(ctx, "doc-1", first)
		require.NoError(t, err)
		_, err = c.Apply(ctx, "doc-1", second)
		require.NoError(t, err)
		doc, err := c.Snapshot("doc-1")
		require.NoError(t, err)
		return doc.Content
	}

	alice := core.NewOperationBatch("alice", 0, core.Insert(0, "X"))
	bob := core.NewOperationBatch("bob", 0, core.Insert(0, "AB"))

	got1 := run(alice, bob)
	got2 := run(bob, alice)
	assert.Equal(t, "XAB", got1)
	assert.Equal(t, got1, got2)
}

func TestRevisionAdvancesByExactlyOnePerBatch(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := c.Apply(ctx, "doc-1", core.NewOperationBatch("alice", int64(i), core.Insert(0, "a")))
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), res.Revision)
	}
}

func TestLockTimeoutSurfacesBusy(t *testing.T) {
	c := New(func(o *Options) {
		o.LockTimeout = 10 * time.Millisecond
	})

	// Occupy the critical section directly.
	st := c.state("doc-1")
	st.section <- struct{}{}
	defer func() { <-st.section }()

	_, err := c.Apply(context.Background(), "doc-1", core.NewOperationBatch("alice", 0, core.Insert(0, "x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrBusy))

	// Busy is transient: once the section frees up the same batch may
	// retry with its original key.
}

func TestDistinctDocumentsDoNotContend(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	// Hold doc-1's section; doc-2 must proceed immediately.
	st := c.state("doc-1")
	st.section <- struct{}{}
	defer func() { <-st.section }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Apply(ctx, "doc-2", core.NewOperationBatch("alice", 0, core.Insert(0, "x")))
		assert.NoError(t, err)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("apply on an uncontended document blocked")
	}
}

func drain(ch <-chan core.Broadcast) []core.Broadcast {
	var out []core.Broadcast
	for {
		select {
		case msg := <-ch:
			out = append(out, msg)
		default:
			return out
		}
	}
}
