// Package dated models points in time and time spans on top of the ordering
// kernel, with the compact delta encoding used on the wire.
package dated

import (
	"cmp"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"live-caption-service/internal/order"
)

// Delta separates the encoded terms of a Span.
const Delta = "Δ"

// ErrMalformedSpan is returned when a span string cannot be decoded.
var ErrMalformedSpan = errors.New("malformed span")

// Instant is a single point in time in epoch milliseconds.
type Instant int64

// Now returns the current instant.
func Now() Instant {
	return FromTime(time.Now())
}

// FromTime converts t to an Instant.
func FromTime(t time.Time) Instant {
	return Instant(t.UnixMilli())
}

// Time converts the instant back to a time.Time.
func (i Instant) Time() time.Time {
	return time.UnixMilli(int64(i))
}

// Compare orders instants chronologically.
func (i Instant) Compare(other Instant) int {
	return cmp.Compare(i, other)
}

// String formats the instant as its millisecond value.
func (i Instant) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// Span is a hull over instants: a single point in time or a time range.
type Span struct {
	hull order.Hull[Instant]
}

// NewSpan builds a span enclosing the given instants.
func NewSpan(instants ...Instant) Span {
	return Span{hull: order.NewHull(instants...)}
}

// At is a span over a single instant.
func At(ms int64) Span {
	return NewSpan(Instant(ms))
}

// Between is the span from start to end.
func Between(start, end time.Time) Span {
	return NewSpan(FromTime(start), FromTime(end))
}

// Empty reports whether the span holds no instants.
func (s Span) Empty() bool {
	return s.hull.Empty()
}

// Len returns the number of instants the span was built from.
func (s Span) Len() int {
	return s.hull.Len()
}

// Start returns the earliest instant.
func (s Span) Start() (Instant, bool) {
	return s.hull.Start()
}

// End returns the latest instant.
func (s Span) End() (Instant, bool) {
	return s.hull.End()
}

// Instants returns the sorted instants of the span.
func (s Span) Instants() []Instant {
	return s.hull.Items()
}

// Duration is the distance between start and end.
func (s Span) Duration() time.Duration {
	start, ok := s.Start()
	if !ok {
		return 0
	}
	end, _ := s.End()
	return time.Duration(end-start) * time.Millisecond
}

// Inside reports whether i falls within the span.
func (s Span) Inside(i Instant) bool {
	return s.hull.Inside(i)
}

// Compare orders spans by start, then end. Empty spans sort first.
func (s Span) Compare(other Span) int {
	return s.hull.Compare(other.hull)
}

// CompareInstant orders the span against a point; a point inside compares equal.
func (s Span) CompareInstant(i Instant) int {
	return s.hull.CompareOne(i)
}

// Concat returns a span enclosing both spans.
func (s Span) Concat(other Span) Span {
	return Span{hull: s.hull.Merge(other.hull)}
}

// Absorb returns a span that also encloses i.
func (s Span) Absorb(i Instant) Span {
	return Span{hull: s.hull.Absorb(i)}
}

// Collapse reduces the span to its two extremes, or a single point when they
// coincide.
func (s Span) Collapse() Span {
	start, ok := s.Start()
	if !ok {
		return s
	}
	end, _ := s.End()
	if start == end {
		return NewSpan(start)
	}
	return NewSpan(start, end)
}

// String delta-encodes the collapsed span: "start" for a point and
// "startΔ(end-start)" for a range. An empty span encodes as "".
func (s Span) String() string {
	start, ok := s.Start()
	if !ok {
		return ""
	}
	end, _ := s.End()
	if end > start {
		return start.String() + Delta + strconv.FormatInt(int64(end-start), 10)
	}
	return start.String()
}

// Encode delta-encodes every instant of the span, "t0Δd1Δd2...".
func (s Span) Encode() string {
	var b strings.Builder
	var prev Instant
	for n, i := range s.Instants() {
		if n == 0 {
			b.WriteString(i.String())
		} else {
			b.WriteString(Delta)
			b.WriteString(strconv.FormatInt(int64(i-prev), 10))
		}
		prev = i
	}
	return b.String()
}

// ParseSpan decodes a delta-encoded span. The empty string is the empty span.
func ParseSpan(s string) (Span, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Span{}, nil
	}

	terms := strings.Split(s, Delta)
	instants := make([]Instant, 0, len(terms))

	var acc int64
	for _, term := range terms {
		d, err := strconv.ParseInt(strings.TrimSpace(term), 10, 64)
		if err != nil {
			return Span{}, fmt.Errorf("%w: %q: %v", ErrMalformedSpan, s, err)
		}
		acc += d
		instants = append(instants, Instant(acc))
	}

	return NewSpan(instants...), nil
}

// MustParseSpan is ParseSpan for static inputs; it panics on malformed input.
func MustParseSpan(s string) Span {
	span, err := ParseSpan(s)
	if err != nil {
		panic(err)
	}
	return span
}
