package crdt

import "time"

// LWWRegister is a last-writer-wins register: the write with the larger
// timestamp wins, and timestamp ties are broken by the lexicographically
// larger writer id so every replica picks the same winner.
type LWWRegister[T any] struct {
	Value     T         `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	WriterID  string    `json:"writer_id"`
}

// NewLWWRegister creates a register holding an initial write.
func NewLWWRegister[T any](value T, ts time.Time, writerID string) LWWRegister[T] {
	return LWWRegister[T]{Value: value, Timestamp: ts, WriterID: writerID}
}

// Set returns the register after observing a local write. A write that
// would lose to the current state is discarded.
func (r LWWRegister[T]) Set(value T, ts time.Time, writerID string) LWWRegister[T] {
	return r.Merge(LWWRegister[T]{Value: value, Timestamp: ts, WriterID: writerID})
}

// Merge returns the winning register of r and other.
func (r LWWRegister[T]) Merge(other LWWRegister[T]) LWWRegister[T] {
	merged, _ := r.Apply(other)
	return merged
}

// Apply merges other into r and reports whether other won. A losing
// write (including an exact duplicate) leaves the register unchanged.
func (r LWWRegister[T]) Apply(other LWWRegister[T]) (LWWRegister[T], bool) {
	switch {
	case other.Timestamp.After(r.Timestamp):
		return other, true
	case r.Timestamp.After(other.Timestamp):
		return r, false
	case other.WriterID > r.WriterID:
		return other, true
	default:
		return r, false
	}
}
