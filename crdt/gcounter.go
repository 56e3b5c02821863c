package crdt

// GCounter is a grow-only counter: each node owns a monotonically
// increasing slot and the counter's value is the sum over all slots.
// Merging takes the per-node maximum, which makes replayed or duplicated
// deltas harmless.
type GCounter struct {
	Counts map[string]uint64 `json:"counts"`
}

// NewGCounter creates an empty counter.
func NewGCounter() GCounter {
	return GCounter{Counts: map[string]uint64{}}
}

// Increment adds one to the node's slot, returning the updated counter.
func (c GCounter) Increment(nodeID string) GCounter {
	return c.Add(nodeID, 1)
}

// Add adds delta to the node's slot, returning the updated counter.
func (c GCounter) Add(nodeID string, delta uint64) GCounter {
	out := c.clone()
	out.Counts[nodeID] += delta
	return out
}

// Value returns the sum over all node slots.
func (c GCounter) Value() uint64 {
	var total uint64
	for _, n := range c.Counts {
		total += n
	}
	return total
}

// Merge returns the per-node maximum of c and other.
func (c GCounter) Merge(other GCounter) GCounter {
	out := c.clone()
	for node, n := range other.Counts {
		if n > out.Counts[node] {
			out.Counts[node] = n
		}
	}
	return out
}

func (c GCounter) clone() GCounter {
	out := GCounter{Counts: make(map[string]uint64, len(c.Counts))}
	for node, n := range c.Counts {
		out.Counts[node] = n
	}
	return out
}
