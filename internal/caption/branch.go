// Package caption holds the transcript model: branches (candidate
// transcriptions), alternatives (one result slot) and the transcript that
// reconciles them into final, abandoned and interim lines.
package caption

import (
	"live-caption-service/internal/dated"
	"live-caption-service/internal/order"
)

// Provenance tags for Branch.Source.
const (
	SourceSpeechAPI   = "speech-api"
	SourceTranslation = "deepl"
	SourceOpenAI      = "openai"
	SourceRecognizer  = "SpeechRecognition API"
)

// Branch is one candidate transcription fragment.
type Branch struct {
	When       dated.Span
	Confidence order.Value[float64]
	Final      bool
	Text       string
	Source     string
	Language   string
	Error      string
}

// NewBranch builds a speech branch.
func NewBranch(when dated.Span, confidence float64, final bool, text, source, language string) Branch {
	return Branch{
		When:       when,
		Confidence: order.Of(confidence),
		Final:      final,
		Text:       text,
		Source:     source,
		Language:   language,
	}
}

// ErrorBranch builds a final branch describing a producer fault. The text
// carries the message when there is one and the code otherwise.
func ErrorBranch(when dated.Span, code, source, message string) Branch {
	text := message
	if text == "" {
		text = code
	}
	return Branch{
		When:       when,
		Confidence: order.Of(-1.0),
		Final:      true,
		Text:       text,
		Source:     source,
		Error:      code,
	}
}

// Interim is the inverse of Final.
func (b Branch) Interim() bool {
	return !b.Final
}

// IsError reports whether the branch describes a fault rather than speech.
func (b Branch) IsError() bool {
	return b.Error != ""
}

// Compare orders branches by time, then by ascending confidence, so the last
// branch among equally timed ones is the most confident. Text breaks the
// remaining ties to keep sorting deterministic.
func (b Branch) Compare(other Branch) int {
	if c := b.When.Compare(other.When); c != 0 {
		return c
	}
	if c := b.Confidence.Compare(other.Confidence); c != 0 {
		return c
	}
	return order.Of(b.Text).Compare(order.Of(other.Text))
}
