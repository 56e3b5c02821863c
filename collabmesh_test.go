package collabmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/collabmesh/audit"
	"github.com/hupe1980/collabmesh/core"
	"github.com/hupe1980/collabmesh/internal/testutil"
	"github.com/hupe1980/collabmesh/store"
)

func TestBareNewUsesInMemoryDefaults(t *testing.T) {
	m := New()
	defer m.Close()

	res, err := m.Edit(context.Background(), "doc-1", "alice", 0, core.Insert(0, "hi"))
	require.NoError(t, err)
	require.NotNil(t, res.Applied)
	assert.Equal(t, "hi", res.Applied.Content)

	doc, err := m.Snapshot("doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Revision)
}

func TestNewHonorsSuppliedCollaborators(t *testing.T) {
	st := store.NewInMemoryStore()
	sink := audit.NewRecordingSink()
	m := New(func(o *Options) {
		o.Store = st
		o.Audit = sink
	})
	defer m.Close()

	_, err := m.Edit(context.Background(), "doc-1", "alice", 0, core.Insert(0, "hi"))
	require.NoError(t, err)

	doc, err := st.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hi", doc.Content)
	assert.Len(t, sink.OfKind(core.AuditBatchAccepted), 1)
}

func TestEditAndSubscribe(t *testing.T) {
	m := New()
	defer m.Close()

	ch, cancel, err := m.Subscribe("doc-1")
	require.NoError(t, err)
	defer cancel()

	ctx := context.Background()

	res, err := m.Edit(ctx, "doc-1", "alice", 0, core.Insert(0, "Hello"))
	require.NoError(t, err)
	require.NotNil(t, res.Applied)
	assert.Equal(t, int64(1), res.Applied.Revision)

	select {
	case msg := <-ch:
		assert.Equal(t, int64(1), msg.Revision)
		assert.Equal(t, "alice", msg.ClientID)
		require.Len(t, msg.Ops, 1)
		assert.Equal(t, core.Insert(0, "Hello"), msg.Ops[0])
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
	}

	doc, err := m.Snapshot("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Content)
}

func TestAgentEditRebasesAgainstStaleBase(t *testing.T) {
	m := New()
	defer m.Close()

	ctx := context.Background()

	_, err := m.Edit(ctx, "doc-1", "alice", 0, core.Insert(0, "Hello world"))
	require.NoError(t, err)

	_, err = m.Edit(ctx, "doc-1", "alice", 1, core.Insert(0, ">> "))
	require.NoError(t, err)

	res, err := m.AgentEdit(ctx, "doc-1", "agent-7", 1, core.Insert(11, "!"))
	require.NoError(t, err)
	require.NotNil(t, res.Applied)
	assert.Equal(t, ">> Hello world!", res.Applied.Content)
}

func TestPresenceRoundTrip(t *testing.T) {
	m := New()
	defer m.Close()

	m.UpdatePresence("doc-1", testutil.NewPresenceBuilder("alice").Cursor(3).Name("Alice").Build())

	rec, ok := m.Engine().Presence().Get("doc-1", "alice")
	require.True(t, ok)
	assert.Equal(t, 3, rec.Cursor)
	assert.Equal(t, "Alice", rec.DisplayName)

	m.DisconnectPresence("doc-1", "alice")

	_, ok = m.Engine().Presence().Get("doc-1", "alice")
	assert.False(t, ok)
}
