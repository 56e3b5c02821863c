package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/collabmesh/core"
)

// Interface compliance (compile-time assertion)
var _ core.DocumentStore = (*InMemoryStore)(nil)

func TestInMemoryStoreGetUnknownIsEmptyDocument(t *testing.T) {
	s := NewInMemoryStore()
	doc, err := s.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Empty(t, doc.Content)
	assert.Zero(t, doc.Revision)
}

func TestInMemoryStorePutClones(t *testing.T) {
	s := NewInMemoryStore()
	doc := &core.Document{ID: "doc-1", Content: "hello", Revision: 1}
	require.NoError(t, s.Put(doc))

	// Mutating the caller's copy must not leak into the store.
	doc.Content = "mutated"

	got, err := s.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	// Nor may mutating a returned clone.
	got.Content = "also mutated"
	again, err := s.Get("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Content)
}

func TestInMemoryStoreHistoryWindow(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Put(&core.Document{ID: "doc-1"}))
	for rev := int64(1); rev <= 5; rev++ {
		require.NoError(t, s.AppendHistory("doc-1", core.HistoryEntry{Revision: rev, ClientID: "alice"}))
	}

	entries, err := s.History("doc-1", 2, 4)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(3), entries[0].Revision)
	assert.Equal(t, int64(4), entries[1].Revision)
}

func TestInMemoryStoreHistoryUnknownDocument(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.History("nope", 0, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInMemoryStoreHistoryKnownDocumentEmptyWindow(t *testing.T) {
	s := NewInMemoryStore()
	require.NoError(t, s.Put(&core.Document{ID: "doc-1", Revision: 0}))
	entries, err := s.History("doc-1", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
