// Package health tracks recognizer activity and decides when the recognizer
// has to be started, stopped or aborted.
package health

import (
	"fmt"
)

// EventType is a lifecycle event fired by the recognizer, plus Configure
// which the controller records itself when it begins a start.
type EventType int

const (
	EventStart EventType = iota
	EventEnd
	EventAudioStart
	EventAudioEnd
	EventSoundStart
	EventSoundEnd
	EventSpeechStart
	EventSpeechEnd
	EventResult
	EventNoMatch
	EventError
	EventConfigure
)

var eventNames = [...]string{
	EventStart:       "start",
	EventEnd:         "end",
	EventAudioStart:  "audiostart",
	EventAudioEnd:    "audioend",
	EventSoundStart:  "soundstart",
	EventSoundEnd:    "soundend",
	EventSpeechStart: "speechstart",
	EventSpeechEnd:   "speechend",
	EventResult:      "result",
	EventNoMatch:     "nomatch",
	EventError:       "error",
	EventConfigure:   "configure",
}

// String returns the event name as the recognizer fires it.
func (e EventType) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("unknown(%d)", int(e))
}

// ParseEventType maps an event name to its type.
func ParseEventType(s string) (EventType, error) {
	for i, name := range eventNames {
		if name == s {
			return EventType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// Meaningful reports whether the event proves the recognizer is alive. Every
// recognizer event is; Configure is ours.
func (e EventType) Meaningful() bool {
	return e >= EventStart && e <= EventError
}
