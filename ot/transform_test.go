package ot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/collabmesh/core"
)

// converge applies a and b in both orders, transforming the later against
// the earlier with complementary priorities, and requires both orders to
// produce the same content. It returns that content.
func converge(t *testing.T, content string, a, b core.Operation, aPriority Priority) string {
	t.Helper()

	bPriority := AWins
	if aPriority == AWins {
		bPriority = BWins
	}

	// a first, then b transformed against a.
	s1, err := a.Apply(content)
	require.NoError(t, err)
	s1, err = Transform(b, a, bPriority).Apply(s1)
	require.NoError(t, err)

	// b first, then a transformed against b.
	s2, err := b.Apply(content)
	require.NoError(t, err)
	s2, err = Transform(a, b, aPriority).Apply(s2)
	require.NoError(t, err)

	assert.Equal(t, s1, s2, "both application orders must converge")
	return s1
}

func TestTransformInsertInsert(t *testing.T) {
	tests := []struct {
		name     string
		a, b     core.Operation
		priority Priority
		want     core.Operation
	}{
		{name: "a before b", a: core.Insert(1, "x"), b: core.Insert(4, "yy"), priority: BWins, want: core.Insert(1, "x")},
		{name: "a after b", a: core.Insert(4, "x"), b: core.Insert(1, "yy"), priority: BWins, want: core.Insert(6, "x")},
		{name: "tie a wins", a: core.Insert(2, "x"), b: core.Insert(2, "yy"), priority: AWins, want: core.Insert(2, "x")},
		{name: "tie b wins", a: core.Insert(2, "x"), b: core.Insert(2, "yy"), priority: BWins, want: core.Insert(4, "x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transform(tt.a, tt.b, tt.priority))
		})
	}
}

func TestTransformInsertDelete(t *testing.T) {
	tests := []struct {
		name string
		a, b core.Operation
		want core.Operation
	}{
		{name: "before range", a: core.Insert(1, "x"), b: core.Delete(3, 2), want: core.Insert(1, "x")},
		{name: "at range start", a: core.Insert(3, "x"), b: core.Delete(3, 2), want: core.Insert(3, "x")},
		{name: "after range", a: core.Insert(6, "x"), b: core.Delete(3, 2), want: core.Insert(4, "x")},
		{name: "at range end", a: core.Insert(5, "x"), b: core.Delete(3, 2), want: core.Insert(3, "x")},
		{name: "inside range clamps to start", a: core.Insert(4, "x"), b: core.Delete(3, 2), want: core.Insert(3, "x")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transform(tt.a, tt.b, BWins))
		})
	}
}

func TestTransformDeleteInsert(t *testing.T) {
	tests := []struct {
		name string
		a, b core.Operation
		want core.Operation
	}{
		{name: "insert before shifts right", a: core.Delete(3, 2), b: core.Insert(1, "xy"), want: core.Delete(5, 2)},
		{name: "insert at start shifts right", a: core.Delete(3, 2), b: core.Insert(3, "xy"), want: core.Delete(5, 2)},
		{name: "insert inside expands", a: core.Delete(3, 2), b: core.Insert(4, "xy"), want: core.Delete(3, 4)},
		{name: "insert strictly after unchanged", a: core.Delete(3, 2), b: core.Insert(5, "xy"), want: core.Delete(3, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transform(tt.a, tt.b, BWins))
		})
	}
}

func TestTransformDeleteDelete(t *testing.T) {
	tests := []struct {
		name string
		a, b core.Operation
		want core.Operation
	}{
		{name: "b entirely before", a: core.Delete(5, 3), b: core.Delete(1, 2), want: core.Delete(3, 3)},
		{name: "b entirely after", a: core.Delete(1, 2), b: core.Delete(5, 3), want: core.Delete(1, 2)},
		{name: "overlap from left", a: core.Delete(3, 4), b: core.Delete(1, 4), want: core.Delete(1, 2)},
		{name: "overlap from right", a: core.Delete(1, 4), b: core.Delete(3, 4), want: core.Delete(1, 2)},
		{name: "fully subsumed degrades to retain", a: core.Delete(3, 2), b: core.Delete(2, 5), want: core.Retain(2, 0)},
		{name: "identical ranges degrade to retain", a: core.Delete(2, 3), b: core.Delete(2, 3), want: core.Retain(2, 0)},
		{name: "a contains b", a: core.Delete(1, 6), b: core.Delete(3, 2), want: core.Delete(1, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transform(tt.a, tt.b, BWins))
		})
	}
}

func TestTransformAgainstRetainIsIdentity(t *testing.T) {
	a := core.Delete(3, 2)
	assert.Equal(t, a, Transform(a, core.Retain(0, 5), BWins))
	assert.Equal(t, a, Transform(a, core.Retain(4, 0), AWins))
}

func TestTransformRetainFollowsRangeMath(t *testing.T) {
	// A retain is carried through transforms like a zero-effect delete so
	// batch shapes stay stable across rebases.
	assert.Equal(t, core.Retain(5, 2), Transform(core.Retain(3, 2), core.Insert(1, "xy"), BWins))
	assert.Equal(t, core.Retain(1, 1), Transform(core.Retain(2, 2), core.Delete(1, 2), BWins))
}

func TestConvergenceSameSpotInserts(t *testing.T) {
	// Concurrent Insert("X", 0) (winner) and Insert("AB", 0) (loser) on
	// empty content must yield "XAB" in both application orders.
	x := core.Insert(0, "X")
	ab := core.Insert(0, "AB")
	got := converge(t, "", x, ab, AWins)
	assert.Equal(t, "XAB", got)
}

func TestConvergenceMixedPairs(t *testing.T) {
	base := "Hello world"
	pairs := []struct {
		name string
		a, b core.Operation
	}{
		{name: "insert vs delete disjoint", a: core.Insert(0, ">> "), b: core.Delete(5, 6)},
		{name: "overlapping deletes", a: core.Delete(2, 5), b: core.Delete(4, 6)},
		{name: "delete subsumes delete", a: core.Delete(3, 2), b: core.Delete(0, 11)},
		{name: "inserts at distinct spots", a: core.Insert(5, "!"), b: core.Insert(11, "?")},
	}
	for _, tt := range pairs {
		t.Run(tt.name, func(t *testing.T) {
			converge(t, base, tt.a, tt.b, AWins)
			converge(t, base, tt.a, tt.b, BWins)
		})
	}
}

func TestTransformCursor(t *testing.T) {
	tests := []struct {
		name    string
		pos     int
		against core.Operation
		want    int
	}{
		{name: "insert before shifts", pos: 4, against: core.Insert(2, "ab"), want: 6},
		{name: "insert at cursor shifts", pos: 4, against: core.Insert(4, "ab"), want: 6},
		{name: "insert after unchanged", pos: 4, against: core.Insert(5, "ab"), want: 4},
		{name: "delete before shifts left", pos: 6, against: core.Delete(1, 3), want: 3},
		{name: "delete around clamps", pos: 4, against: core.Delete(2, 5), want: 2},
		{name: "retain unchanged", pos: 4, against: core.Retain(0, 9), want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TransformCursor(tt.pos, tt.against))
		})
	}
}

func TestTransformBatchFoldsHistoryInCommitOrder(t *testing.T) {
	// Base content "abc" at revision 1. Two committed inserts advance it
	// to "XXabcY": revision 2 inserts "XX" at 0, revision 3 inserts "Y"
	// at 5. carol's insert at 3 shifts to 5 past the first entry, then
	// ties with the committed "Y"; "bob" < "carol", so the committed op
	// keeps the spot and carol lands after it.
	history := []core.HistoryEntry{
		{Revision: 2, ClientID: "bob", TransformedOps: []core.Operation{core.Insert(0, "XX")}},
		{Revision: 3, ClientID: "bob", TransformedOps: []core.Operation{core.Insert(5, "Y")}},
	}
	ops := TransformBatch([]core.Operation{core.Insert(3, "z")}, "carol", history)
	require.Len(t, ops, 1)
	assert.Equal(t, core.Insert(6, "z"), ops[0])
}

func TestTransformBatchTieBreakIsArrivalOrderIndependent(t *testing.T) {
	// alice and bob both insert at position 0 of an empty document. The
	// lexicographically smaller client id wins the spot no matter whose
	// batch committed first.
	aliceOps := []core.Operation{core.Insert(0, "X")}
	bobOps := []core.Operation{core.Insert(0, "AB")}

	// Order 1: alice commits first, bob rebases.
	content1, err := core.ApplyAll("", aliceOps)
	require.NoError(t, err)
	rebased := TransformBatch(bobOps, "bob", []core.HistoryEntry{{Revision: 1, ClientID: "alice", TransformedOps: aliceOps}})
	content1, err = core.ApplyAll(content1, rebased)
	require.NoError(t, err)

	// Order 2: bob commits first, alice rebases.
	content2, err := core.ApplyAll("", bobOps)
	require.NoError(t, err)
	rebased = TransformBatch(aliceOps, "alice", []core.HistoryEntry{{Revision: 1, ClientID: "bob", TransformedOps: bobOps}})
	content2, err = core.ApplyAll(content2, rebased)
	require.NoError(t, err)

	assert.Equal(t, "XAB", content1)
	assert.Equal(t, "XAB", content2)
}

func TestTransformBatchEmptyHistoryReturnsInput(t *testing.T) {
	ops := []core.Operation{core.Insert(0, "a")}
	assert.Equal(t, ops, TransformBatch(ops, "alice", nil))
}
