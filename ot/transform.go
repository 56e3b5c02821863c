package ot

import "github.com/hupe1980/collabmesh/core"

// Priority selects the winner when two concurrent operations tie, i.e.
// inserts at the same position. The winner keeps its position; the loser
// shifts right by the winner's inserted length.
type Priority int

const (
	// AWins gives priority to the operation being transformed.
	AWins Priority = iota
	// BWins gives priority to the operation transformed against.
	BWins
)

// Transform rewrites a so it applies correctly to content on which b has
// already been applied. It is pure, total and deterministic given the
// priority. Neither input is mutated.
//
// Case table:
//   - Insert/Insert, same position: the loser shifts right by the
//     winner's inserted length.
//   - Insert/Delete: before the range unchanged; at or after the range
//     end shifts left by the delete length; inside the range clamps to
//     the delete's start.
//   - Delete/Insert: an insert at or before the delete start shifts the
//     delete right; an insert inside the range expands the delete length;
//     strictly after leaves it unchanged.
//   - Delete/Delete: disjoint ranges shift by offset; overlapping ranges
//     keep the union minus the already-applied amount; a fully subsumed
//     delete degrades to Retain(pos, 0).
//   - Retain transforms positionally like a delete but never mutates;
//     transforming against a Retain is the identity.
func Transform(a, b core.Operation, priority Priority) core.Operation {
	if b.Type == core.OpRetain || b.IsNoop() {
		return a
	}
	switch a.Type {
	case core.OpInsert:
		return transformInsert(a, b, priority)
	case core.OpDelete, core.OpRetain:
		return transformRange(a, b)
	default:
		return a
	}
}

// transformInsert adjusts an insert against an already-applied b.
func transformInsert(a, b core.Operation, priority Priority) core.Operation {
	switch b.Type {
	case core.OpInsert:
		switch {
		case a.Pos < b.Pos:
			return a
		case a.Pos > b.Pos:
			a.Pos += len(b.Text)
			return a
		default: // same position: loser shifts right
			if priority == AWins {
				return a
			}
			a.Pos += len(b.Text)
			return a
		}
	case core.OpDelete:
		switch {
		case a.Pos <= b.Pos:
			return a
		case a.Pos >= b.End():
			a.Pos -= b.Len
			return a
		default:
			// Inside the deleted range: clamp to the delete's start. The
			// positional intent is lost; callers that care (the arbiter's
			// agent path) must route the result through re-confirmation
			// rather than auto-applying it.
			a.Pos = b.Pos
			return a
		}
	default:
		return a
	}
}

// transformRange adjusts a range operation (delete or retain) against an
// already-applied b. The math is identical for both since a retain is a
// delete that removes nothing.
func transformRange(a, b core.Operation) core.Operation {
	switch b.Type {
	case core.OpInsert:
		switch {
		case b.Pos <= a.Pos:
			a.Pos += len(b.Text)
			return a
		case b.Pos < a.End():
			// Insert landed inside the range: the range grows around it.
			a.Len += len(b.Text)
			return a
		default:
			return a
		}
	case core.OpDelete:
		// Fully subsumed: nothing left to remove.
		if b.Pos <= a.Pos && a.End() <= b.End() {
			return core.Retain(b.Pos, 0)
		}
		overlap := intersect(a.Pos, a.End(), b.Pos, b.End())
		// Shift left by however much of b was removed before a's start.
		shift := intersect(0, a.Pos, b.Pos, b.End())
		a.Pos -= shift
		a.Len -= overlap
		if a.Type == core.OpDelete && a.Len == 0 {
			return core.Retain(a.Pos, 0)
		}
		return a
	default:
		return a
	}
}

// intersect returns the length of the overlap of [aStart,aEnd) and
// [bStart,bEnd).
func intersect(aStart, aEnd, bStart, bEnd int) int {
	start := max(aStart, bStart)
	end := min(aEnd, bEnd)
	if end <= start {
		return 0
	}
	return end - start
}

// TransformCursor rebases a cursor position against an accepted
// operation, so remote carets stay attached to the content they pointed at.
func TransformCursor(pos int, against core.Operation) int {
	switch against.Type {
	case core.OpInsert:
		if against.Pos <= pos {
			return pos + len(against.Text)
		}
		return pos
	case core.OpDelete:
		switch {
		case pos <= against.Pos:
			return pos
		case pos >= against.End():
			return pos - against.Len
		default:
			return against.Pos
		}
	default:
		return pos
	}
}

// TransformBatch rebases every op of a stale batch across the intervening
// history, in commit order. Committed operations win positional ties
// except when the incoming client's id orders lexicographically before
// the committed client's id; that tie-break depends only on client
// identity, never on arrival order, which is what makes the final content
// identical no matter which batch reached the server first.
func TransformBatch(ops []core.Operation, clientID string, history []core.HistoryEntry) []core.Operation {
	if len(history) == 0 {
		return ops
	}
	out := make([]core.Operation, len(ops))
	copy(out, ops)
	for i := range out {
		for _, entry := range history {
			priority := BWins
			if clientID < entry.ClientID {
				priority = AWins
			}
			for _, committed := range entry.TransformedOps {
				out[i] = Transform(out[i], committed, priority)
			}
		}
	}
	return out
}
