package crdt

import "github.com/google/uuid"

type tagSet map[string]struct{}

func (t tagSet) clone() tagSet {
	out := make(tagSet, len(t))
	for tag := range t {
		out[tag] = struct{}{}
	}
	return out
}

// ORSet is an observed-remove set. Every add attaches a unique tag;
// removal tombstones only the tags observed at remove time, so a
// concurrent add with a fresh tag survives the removal: adds win.
type ORSet[T comparable] struct {
	Elements   map[T]tagSet `json:"elements"`
	Tombstones map[T]tagSet `json:"tombstones"`
}

// NewORSet creates an empty set.
func NewORSet[T comparable]() ORSet[T] {
	return ORSet[T]{Elements: map[T]tagSet{}, Tombstones: map[T]tagSet{}}
}

// Add inserts value under a fresh unique tag and returns the updated set
// plus the tag, so callers can gossip it to peers.
func (s ORSet[T]) Add(value T) (ORSet[T], string) {
	tag := uuid.NewString()
	out := s.clone()
	if out.Elements[value] == nil {
		out.Elements[value] = tagSet{}
	}
	out.Elements[value][tag] = struct{}{}
	return out, tag
}

// Remove tombstones every currently observed tag for value. Tags added
// concurrently elsewhere are unaffected.
func (s ORSet[T]) Remove(value T) ORSet[T] {
	out := s.clone()
	live := out.Elements[value]
	if len(live) == 0 {
		return out
	}
	if out.Tombstones[value] == nil {
		out.Tombstones[value] = tagSet{}
	}
	for tag := range live {
		out.Tombstones[value][tag] = struct{}{}
	}
	return out
}

// Contains reports whether value has at least one live (untombstoned) tag.
func (s ORSet[T]) Contains(value T) bool {
	for tag := range s.Elements[value] {
		if _, dead := s.Tombstones[value][tag]; !dead {
			return true
		}
	}
	return false
}

// Values returns every contained value, in no particular order.
func (s ORSet[T]) Values() []T {
	var out []T
	for value := range s.Elements {
		if s.Contains(value) {
			out = append(out, value)
		}
	}
	return out
}

// Merge unions both the add tags and the tombstones of s and other.
func (s ORSet[T]) Merge(other ORSet[T]) ORSet[T] {
	out := s.clone()
	for value, tags := range other.Elements {
		if out.Elements[value] == nil {
			out.Elements[value] = tagSet{}
		}
		for tag := range tags {
			out.Elements[value][tag] = struct{}{}
		}
	}
	for value, tags := range other.Tombstones {
		if out.Tombstones[value] == nil {
			out.Tombstones[value] = tagSet{}
		}
		for tag := range tags {
			out.Tombstones[value][tag] = struct{}{}
		}
	}
	return out
}

func (s ORSet[T]) clone() ORSet[T] {
	out := ORSet[T]{
		Elements:   make(map[T]tagSet, len(s.Elements)),
		Tombstones: make(map[T]tagSet, len(s.Tombstones)),
	}
	for value, tags := range s.Elements {
		out.Elements[value] = tags.clone()
	}
	for value, tags := range s.Tombstones {
		out.Tombstones[value] = tags.clone()
	}
	return out
}
