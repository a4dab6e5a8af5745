package health

import (
	"slices"
)

// Tracker is a boolean that turns on with any of its start events and off with
// any of its end events.
type Tracker struct {
	name  string
	start []EventType
	end   []EventType
	ok    bool
}

// NewTracker returns a tracker that is initially off.
func NewTracker(name string, start, end []EventType) Tracker {
	return Tracker{name: name, start: start, end: end}
}

// Name returns the tracker's status name.
func (t *Tracker) Name() string {
	return t.name
}

// Observe applies ev and reports whether the value changed.
func (t *Tracker) Observe(ev EventType) bool {
	switch {
	case slices.Contains(t.end, ev):
		return t.Assume(false)
	case slices.Contains(t.start, ev):
		return t.Assume(true)
	default:
		return false
	}
}

// Assume forces the value, for when local knowledge is better than the
// events. It reports whether the value changed.
func (t *Tracker) Assume(ok bool) bool {
	changed := t.ok != ok
	t.ok = ok
	return changed
}

// OK returns the current value.
func (t *Tracker) OK() bool {
	return t.ok
}

// Predicates are the activity trackers of one recognizer.
type Predicates struct {
	// Started covers the window between deciding to start and the
	// recognizer confirming it.
	Started Tracker
	Running Tracker
	Audio   Tracker
	Sound   Tracker
	Speech  Tracker
}

// NewPredicates wires each tracker to its event pair.
func NewPredicates() Predicates {
	return Predicates{
		Started: NewTracker("started", []EventType{EventConfigure}, []EventType{EventStart}),
		Running: NewTracker("running", []EventType{EventStart}, []EventType{EventEnd}),
		Audio:   NewTracker("audio", []EventType{EventAudioStart}, []EventType{EventAudioEnd}),
		Sound:   NewTracker("sound", []EventType{EventSoundStart}, []EventType{EventSoundEnd}),
		Speech:  NewTracker("speech", []EventType{EventSpeechStart}, []EventType{EventSpeechEnd}),
	}
}

// Observe feeds ev to every tracker and returns the names of those that changed.
func (p *Predicates) Observe(ev EventType) []string {
	var changed []string
	for _, t := range p.all() {
		if t.Observe(ev) {
			changed = append(changed, t.name)
		}
	}
	// the recognizer ending implies no more audio, sound or speech
	if ev == EventEnd {
		for _, t := range []*Tracker{&p.Audio, &p.Sound, &p.Speech} {
			if t.Assume(false) {
				changed = append(changed, t.name)
			}
		}
	}
	return changed
}

func (p *Predicates) all() []*Tracker {
	return []*Tracker{&p.Started, &p.Running, &p.Audio, &p.Sound, &p.Speech}
}
