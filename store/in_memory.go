package store

import (
	"fmt"
	"sync"

	"github.com/hupe1980/collabmesh/core"
)

// ErrNotFound is returned when history is requested for a document that
// has never been written.
var ErrNotFound = fmt.Errorf("document not found")

// InMemoryStore is a volatile DocumentStore implementation keeping
// documents and their histories in process local maps. It is safe for
// concurrent access and best suited for tests or ephemeral demo servers.
// Every returned document is cloned to prevent external mutation of
// internal state.
type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[string]*core.Document
	histories map[string][]core.HistoryEntry
}

// NewInMemoryStore constructs an empty in-memory document store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		documents: make(map[string]*core.Document),
		histories: make(map[string][]core.HistoryEntry),
	}
}

// Get returns a clone of the stored document, or an empty document at
// revision 0 when the id has never been written: every document exists
// implicitly as empty content.
func (s *InMemoryStore) Get(docID string) (*core.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if doc, ok := s.documents[docID]; ok {
		return doc.Clone(), nil
	}
	return &core.Document{ID: docID}, nil
}

// Put stores a clone of the provided document snapshot.
func (s *InMemoryStore) Put(doc *core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc.Clone()
	return nil
}

// AppendHistory appends one accepted-batch record to the document's
// history. History is append-only; entries are never rewritten.
func (s *InMemoryStore) AppendHistory(docID string, entry core.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[docID] = append(s.histories[docID], entry)
	return nil
}

// History returns the entries with revision in (from, to], in revision
// order. Requesting history for an unknown document is an error; a known
// document with an empty window returns an empty slice.
func (s *InMemoryStore) History(docID string, from, to int64) ([]core.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, ok := s.histories[docID]
	if !ok {
		if _, docOK := s.documents[docID]; !docOK {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, docID)
		}
		return nil, nil
	}
	out := make([]core.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Revision > from && e.Revision <= to {
			out = append(out, e)
		}
	}
	return out, nil
}
