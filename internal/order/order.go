// Package order provides the ordering kernel shared by the caption model:
// a three-way comparable value wrapper and an outer hull over ordered points.
package order

import (
	"cmp"
	"fmt"
	"slices"
)

// Ordered is implemented by anything that can be placed in a Hull.
// Compare returns -1, 0 or 1 for before, equal and after.
type Ordered[T any] interface {
	Compare(other T) int
}

// Value wraps a primitive ordered value so it satisfies Ordered.
type Value[T cmp.Ordered] struct {
	V T
}

// Of wraps v.
func Of[T cmp.Ordered](v T) Value[T] {
	return Value[T]{V: v}
}

// Compare orders by the wrapped value.
func (q Value[T]) Compare(other Value[T]) int {
	return cmp.Compare(q.V, other.V)
}

// Equal reports whether both values are identical.
func (q Value[T]) Equal(other Value[T]) bool {
	return q.Compare(other) == 0
}

// String formats the wrapped value.
func (q Value[T]) String() string {
	return fmt.Sprint(q.V)
}

// Sort sorts items in place, keeping the relative order of equal elements.
func Sort[T Ordered[T]](items []T) []T {
	slices.SortStableFunc(items, func(a, b T) int {
		return a.Compare(b)
	})
	return items
}
