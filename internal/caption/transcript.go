package caption

import (
	"iter"
	"slices"

	"live-caption-service/internal/order"
)

// Watermarks are the bounds a producer advertises with each update: slots
// below Index are settled and slots at or above Length are no longer live.
// The zero value carries neither bound.
type Watermarks struct {
	index     int
	length    int
	hasIndex  bool
	hasLength bool
}

// At returns watermarks carrying both bounds.
func At(index, length int) Watermarks {
	return Watermarks{index: index, length: length, hasIndex: true, hasLength: true}
}

// WithIndex returns a copy with the low watermark set.
func (w Watermarks) WithIndex(index int) Watermarks {
	w.index, w.hasIndex = index, true
	return w
}

// WithLength returns a copy with the high watermark set.
func (w Watermarks) WithLength(length int) Watermarks {
	w.length, w.hasLength = length, true
	return w
}

// Index returns the low watermark, if set.
func (w Watermarks) Index() (int, bool) {
	return w.index, w.hasIndex
}

// Length returns the high watermark, if set.
func (w Watermarks) Length() (int, bool) {
	return w.length, w.hasLength
}

// Or fills each unset bound of w from fallback.
func (w Watermarks) Or(fallback Watermarks) Watermarks {
	if !w.hasIndex && fallback.hasIndex {
		w = w.WithIndex(fallback.index)
	}
	if !w.hasLength && fallback.hasLength {
		w = w.WithLength(fallback.length)
	}
	return w
}

type slotClass int

const (
	slotInterim slotClass = iota
	slotFinal
	slotAbandoned
)

// Reconcile folds lines into one line per result slot and classifies each
// slot against the watermarks. Unindexed lines pass through unchanged. Every
// branch ever seen for a slot survives in its accumulated line, even when the
// slot ends up abandoned. Slots are emitted in the order they were first seen.
func Reconcile(lines iter.Seq[Alternatives], wm Watermarks) []Alternatives {
	var (
		out   []Alternatives
		slots []int
		acc   = make(map[int]Alternatives)
	)

	for line := range lines {
		index, ok := line.Index()
		if !ok {
			out = append(out, line)
			continue
		}
		if prev, seen := acc[index]; seen {
			acc[index] = prev.Concat(line)
		} else {
			acc[index] = line
			slots = append(slots, index)
		}
	}

	for _, index := range slots {
		line := acc[index]
		switch wm.classify(index, line) {
		case slotFinal:
			out = append(out, line.WithIndex(index).WithFinal(true))
		case slotAbandoned:
			out = append(out, line.Detach().WithFinal(false))
		default:
			out = append(out, line.WithIndex(index).WithFinal(false))
		}
	}

	return out
}

// classify checks finality before abandonment: any evidence of finality wins
// over abandonment evidence.
func (w Watermarks) classify(index int, line Alternatives) slotClass {
	if line.Final || (w.hasIndex && index < w.index) {
		return slotFinal
	}
	if line.Abandoned() || (w.hasLength && index >= w.length) {
		return slotAbandoned
	}
	return slotInterim
}

// Transcript is a reconciled, time-ordered set of lines together with the
// watermarks it was reconciled against. Transcripts are values: every
// operation returns a new one.
type Transcript struct {
	lines order.Hull[Alternatives]
	wm    Watermarks
}

// NewTranscript reconciles lines against wm.
func NewTranscript(lines []Alternatives, wm Watermarks) Transcript {
	return Transcript{
		lines: order.NewHull(Reconcile(slices.Values(lines), wm)...),
		wm:    wm,
	}
}

// Watermarks returns the bounds the transcript was last reconciled against.
func (t Transcript) Watermarks() Watermarks {
	return t.wm
}

// Lines returns the lines in time order.
func (t Transcript) Lines() []Alternatives {
	return t.lines.Items()
}

// All iterates the lines in time order.
func (t Transcript) All() iter.Seq[Alternatives] {
	return t.lines.All()
}

// Len returns the number of lines.
func (t Transcript) Len() int {
	return t.lines.Len()
}

// Empty reports whether the transcript holds no lines.
func (t Transcript) Empty() bool {
	return t.lines.Empty()
}

// Concat reconciles the receiver's lines followed by lines. Unset override
// bounds default to the receiver's, and the low watermark defaults to 0 when
// neither side has one.
func (t Transcript) Concat(lines []Alternatives, override Watermarks) Transcript {
	wm := override.Or(t.wm)
	if _, ok := wm.Index(); !ok {
		wm = wm.WithIndex(0)
	}
	return NewTranscript(slices.Concat(t.lines.Items(), lines), wm)
}

// Load merges other into the receiver using other's watermarks.
func (t Transcript) Load(other Transcript) Transcript {
	return NewTranscript(slices.Concat(t.lines.Items(), other.lines.Items()), other.wm)
}

// Append merges a single line into the transcript under its current watermarks.
func (t Transcript) Append(line Alternatives) Transcript {
	return NewTranscript(append(t.lines.Items(), line), t.wm)
}

// Settled returns the final and abandoned lines.
func (t Transcript) Settled() []Alternatives {
	return t.lines.Filter(func(a Alternatives) bool { return a.State() != StateInterim }).Items()
}

// Live returns the interim lines.
func (t Transcript) Live() []Alternatives {
	return t.lines.Filter(func(a Alternatives) bool { return a.State() == StateInterim }).Items()
}

// Split partitions the transcript into the lines to hand off and the
// transcript that stays live. With full set every line is handed off, and
// interim lines among them become abandoned. Handed off lines lose their slot
// index, since the producer recycles slot ids.
func (t Transcript) Split(full bool) (settled []Alternatives, live Transcript) {
	keep := t.Live()
	moved := t.Settled()
	if full {
		moved, keep = t.lines.Items(), nil
	}

	settled = make([]Alternatives, 0, len(moved))
	for _, line := range moved {
		settled = append(settled, line.Detach())
	}

	return settled, Transcript{lines: order.NewHull(keep...), wm: t.wm}
}

// Detach returns the transcript with every slot index dropped.
func (t Transcript) Detach() Transcript {
	lines := order.Map(t.lines, func(a Alternatives) Alternatives { return a.Detach() })
	return Transcript{lines: order.NewHull(lines...), wm: t.wm}
}
