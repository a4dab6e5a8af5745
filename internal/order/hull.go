package order

import (
	"iter"
	"slices"
)

// Hull is the smallest enclosing range of a set of ordered points. In one
// dimension that is simply the span from the least to the greatest element:
//
//	-1  |      0 |     |  1
//	----A--------B-----C---
//	  o |        |  i  |
//	    |///// HULL ///|
//
// A, B and C span the hull; i is inside it and o is outside. The elements are
// sorted once on construction and never mutated afterwards; every operation
// that changes membership returns a new Hull.
//
// The zero value is a valid empty hull.
type Hull[T Ordered[T]] struct {
	items []T
}

// NewHull builds a hull over items.
func NewHull[T Ordered[T]](items ...T) Hull[T] {
	return Hull[T]{items: Sort(slices.Clone(items))}
}

// HullOf builds a hull from a sequence.
func HullOf[T Ordered[T]](seq iter.Seq[T]) Hull[T] {
	return Hull[T]{items: Sort(slices.Collect(seq))}
}

// sorted wraps items that are already in order.
func sorted[T Ordered[T]](items []T) Hull[T] {
	return Hull[T]{items: items}
}

// Len returns the number of points in the hull.
func (h Hull[T]) Len() int {
	return len(h.items)
}

// Empty reports whether the hull holds no points.
func (h Hull[T]) Empty() bool {
	return len(h.items) == 0
}

// Start returns the least element. ok is false for an empty hull.
func (h Hull[T]) Start() (start T, ok bool) {
	if len(h.items) == 0 {
		return start, false
	}
	return h.items[0], true
}

// End returns the greatest element. ok is false for an empty hull.
func (h Hull[T]) End() (end T, ok bool) {
	if len(h.items) == 0 {
		return end, false
	}
	return h.items[len(h.items)-1], true
}

// Items returns a copy of the sorted points.
func (h Hull[T]) Items() []T {
	return slices.Clone(h.items)
}

// All iterates the points in order.
func (h Hull[T]) All() iter.Seq[T] {
	return slices.Values(h.items)
}

// Inside reports whether adding p to the hull would leave its start and end
// unchanged. Points equal to either extreme are inside; nothing is inside an
// empty hull.
func (h Hull[T]) Inside(p T) bool {
	start, ok := h.Start()
	if !ok {
		return false
	}
	end, _ := h.End()
	return start.Compare(p) <= 0 && p.Compare(end) <= 0
}

// Outside is the negation of Inside.
func (h Hull[T]) Outside(p T) bool {
	return !h.Inside(p)
}

// CompareOne orders the hull against a single point. A point inside the hull
// compares equal; otherwise the hull's start decides. An empty hull sorts
// before every point.
func (h Hull[T]) CompareOne(p T) int {
	if h.Inside(p) {
		return 0
	}
	start, ok := h.Start()
	if !ok {
		return -1
	}
	return start.Compare(p)
}

// Compare orders two hulls by start, then by end. Hulls with the same extremes
// compare equal even if their interior points differ. Empty hulls sort first.
func (h Hull[T]) Compare(other Hull[T]) int {
	switch {
	case h.Empty() && other.Empty():
		return 0
	case h.Empty():
		return -1
	case other.Empty():
		return 1
	}

	hs, _ := h.Start()
	os, _ := other.Start()
	if c := hs.Compare(os); c != 0 {
		return c
	}

	he, _ := h.End()
	oe, _ := other.End()
	return he.Compare(oe)
}

// Absorb returns a new hull with p inserted in sorted position. p goes before
// the first element that does not sort before it.
func (h Hull[T]) Absorb(p T) Hull[T] {
	at := len(h.items)
	for i, v := range h.items {
		if v.Compare(p) >= 0 {
			at = i
			break
		}
	}
	return sorted(slices.Insert(slices.Clone(h.items), at, p))
}

// Concat returns a new hull over the union of the hull and items.
func (h Hull[T]) Concat(items ...T) Hull[T] {
	all := make([]T, 0, len(h.items)+len(items))
	all = append(all, h.items...)
	all = append(all, items...)
	return sorted(Sort(all))
}

// Merge returns a new hull over the union of both hulls. Both inputs are
// already sorted, so this is a linear merge; ties keep the receiver's element
// first.
func (h Hull[T]) Merge(other Hull[T]) Hull[T] {
	out := make([]T, 0, len(h.items)+len(other.items))
	i, j := 0, 0
	for i < len(h.items) && j < len(other.items) {
		if other.items[j].Compare(h.items[i]) < 0 {
			out = append(out, other.items[j])
			j++
			continue
		}
		out = append(out, h.items[i])
		i++
	}
	out = append(out, h.items[i:]...)
	out = append(out, other.items[j:]...)
	return sorted(out)
}

// Filter returns a new hull holding the points that satisfy keep.
func (h Hull[T]) Filter(keep func(T) bool) Hull[T] {
	out := make([]T, 0, len(h.items))
	for _, v := range h.items {
		if keep(v) {
			out = append(out, v)
		}
	}
	return sorted(out)
}

// Map converts every point of h, in order.
func Map[T Ordered[T], O any](h Hull[T], f func(T) O) []O {
	out := make([]O, 0, len(h.items))
	for _, v := range h.items {
		out = append(out, f(v))
	}
	return out
}
