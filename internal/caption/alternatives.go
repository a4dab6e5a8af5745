package caption

import (
	"fmt"

	"live-caption-service/internal/dated"
	"live-caption-service/internal/order"
)

// State classifies a line of the transcript.
type State int

const (
	// StateInterim - still being revised by the producer.
	StateInterim State = iota
	// StateFinal - the producer will not revise it again.
	StateFinal
	// StateAbandoned - dropped by the producer without ever being finalized.
	StateAbandoned
)

// String returns the class name used on the wire.
func (s State) String() string {
	switch s {
	case StateInterim:
		return "interim"
	case StateFinal:
		return "final"
	case StateAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	switch s {
	case "interim":
		return StateInterim, nil
	case "final":
		return StateFinal, nil
	case "abandoned":
		return StateAbandoned, nil
	default:
		return StateInterim, fmt.Errorf("unknown line class %q", s)
	}
}

// Alternatives is one line of the transcript: every branch observed for one
// upstream result slot. Lines without an index are out-of-band (errors,
// translations) or have been detached from their slot.
type Alternatives struct {
	branches   order.Hull[Branch]
	index      int
	indexed    bool
	Final      bool
	Translated bool
}

// NewAlternatives builds a line bound to slot index.
func NewAlternatives(branches []Branch, index int, final bool) Alternatives {
	return Alternatives{
		branches: order.NewHull(branches...),
		index:    index,
		indexed:  true,
		Final:    final,
	}
}

// Unindexed builds a line that is not bound to any slot.
func Unindexed(branches []Branch, final bool) Alternatives {
	return Alternatives{
		branches: order.NewHull(branches...),
		Final:    final,
	}
}

// Index returns the slot index, if the line has one.
func (a Alternatives) Index() (int, bool) {
	return a.index, a.indexed
}

// WithIndex returns a copy bound to slot index.
func (a Alternatives) WithIndex(index int) Alternatives {
	a.index, a.indexed = index, true
	return a
}

// Detach returns a copy with the slot index removed.
func (a Alternatives) Detach() Alternatives {
	a.index, a.indexed = 0, false
	return a
}

// WithFinal returns a copy with the final flag set to final.
func (a Alternatives) WithFinal(final bool) Alternatives {
	a.Final = final
	return a
}

// Abandoned reports whether the line lost its slot without being finalized.
func (a Alternatives) Abandoned() bool {
	return !a.Final && !a.indexed
}

// State classifies the line.
func (a Alternatives) State() State {
	switch {
	case a.Final:
		return StateFinal
	case a.Abandoned():
		return StateAbandoned
	default:
		return StateInterim
	}
}

// Branches returns the branches in sorted order.
func (a Alternatives) Branches() []Branch {
	return a.branches.Items()
}

// Len returns the number of branches.
func (a Alternatives) Len() int {
	return a.branches.Len()
}

// Best returns the last-sorted branch: the most confident of the latest ones.
func (a Alternatives) Best() (Branch, bool) {
	return a.branches.End()
}

// When is the time span over every branch, collapsed to its extremes.
func (a Alternatives) When() dated.Span {
	var span dated.Span
	for b := range a.branches.All() {
		span = span.Concat(b.When)
	}
	return span.Collapse()
}

// Concat unions the branches of both lines. The receiver's index is kept and
// the line is final if either side is.
func (a Alternatives) Concat(other Alternatives) Alternatives {
	a.branches = a.branches.Merge(other.branches)
	a.Final = a.Final || other.Final
	a.Translated = a.Translated || other.Translated
	return a
}

// Compare orders lines by time span. Ties are broken by slot index (lines
// without one first), then finality, then the number and content of branches.
func (a Alternatives) Compare(other Alternatives) int {
	if c := a.When().Compare(other.When()); c != 0 {
		return c
	}
	if c := order.Of(a.slotKey()).Compare(order.Of(other.slotKey())); c != 0 {
		return c
	}
	if a.Final != other.Final {
		if a.Final {
			return 1
		}
		return -1
	}
	if c := order.Of(a.Len()).Compare(order.Of(other.Len())); c != 0 {
		return c
	}
	ab, aok := a.Best()
	ob, ook := other.Best()
	if aok && ook {
		return ab.Compare(ob)
	}
	return 0
}

// Equal reports whether both lines hold the same slot, classification and
// branches.
func (a Alternatives) Equal(other Alternatives) bool {
	if a.indexed != other.indexed || (a.indexed && a.index != other.index) {
		return false
	}
	if a.Final != other.Final || a.Translated != other.Translated || a.Len() != other.Len() {
		return false
	}
	ob := other.branches.Items()
	for i, b := range a.branches.Items() {
		if b.Compare(ob[i]) != 0 || b.Final != ob[i].Final || b.Source != ob[i].Source ||
			b.Language != ob[i].Language || b.Error != ob[i].Error {
			return false
		}
	}
	return true
}

func (a Alternatives) slotKey() int {
	if !a.indexed {
		return -1
	}
	return a.index
}
