package core

// Document is the authoritative state of one collaboratively edited
// document. Content at revision N is fully determined by the empty content
// at revision 0 plus deterministic application of the transformed
// operations 1..N; that determinism is the convergence guarantee.
type Document struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Revision int64  `json:"revision"`
}

// Clone returns an independent copy.
func (d *Document) Clone() *Document {
	c := *d
	return &c
}

// DocumentStore persists document snapshots and their append-only
// operation history. Implementations must provide read-after-write
// consistency for calls made inside the coordinator's per-document
// critical section; no other consistency is assumed.
//
// Get of an unknown document returns an empty Document at revision 0:
// every document exists implicitly as empty content.
type DocumentStore interface {
	Get(docID string) (*Document, error)
	Put(doc *Document) error
	AppendHistory(docID string, entry HistoryEntry) error
	// History returns entries with revision in (from, to], in revision
	// order.
	History(docID string, from, to int64) ([]HistoryEntry, error)
}
