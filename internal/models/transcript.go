// Package models defines the wire documents for transcripts and caption events.
package models

// Line classes carried in LineDocument.Class.
const (
	ClassFinal     = "final"
	ClassAbandoned = "abandoned"
	ClassInterim   = "interim"
)

// Event types carried in CaptionEvent.EventType.
const (
	EventSettled  = "caption.settled"
	EventSnapshot = "caption.snapshot"
)

// TranscriptDocument is the read-only rendering handoff for a transcript.
// Index and Length are the watermarks, -1 when unset.
type TranscriptDocument struct {
	SessionID string         `json:"sessionId,omitempty"`
	Index     int            `json:"index"`
	Length    int            `json:"length"`
	Lines     []LineDocument `json:"lines"`
}

// LineDocument is one transcript line. Index is -1 for lines without a slot.
type LineDocument struct {
	Class      string           `json:"class"`
	Index      int              `json:"index"`
	Translated bool             `json:"translated,omitempty"`
	When       string           `json:"when"`
	Branches   []BranchDocument `json:"branches"`
}

// BranchDocument is one candidate transcription. When is delta-encoded.
type BranchDocument struct {
	When       string  `json:"when"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
	Source     string  `json:"source"`
	Lang       string  `json:"lang,omitempty"`
	Text       string  `json:"text"`
	Error      string  `json:"error,omitempty"`
}

// CaptionEvent is the payload published for settled lines and live snapshots.
type CaptionEvent struct {
	EventType string              `json:"eventType"`
	SessionID string              `json:"sessionId"`
	Principal string              `json:"principal"`
	Timestamp int64               `json:"timestamp"`
	Lines     []LineDocument      `json:"lines,omitempty"`
	Snapshot  *TranscriptDocument `json:"snapshot,omitempty"`
}
