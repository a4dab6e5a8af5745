package caption

import (
	"live-caption-service/internal/dated"
)

// NoMatchMessage describes a nomatch event from the producer.
const NoMatchMessage = "API did not recognise valid voice inputs and has abandoned any partial results"

// ErrorLine fabricates an unindexed final line carrying a producer fault, so it
// flows through reconciliation untouched and shows up inline in the captions.
func ErrorLine(at dated.Instant, code, source, message string) Alternatives {
	if source == "" {
		source = "Generic Error Event"
	}
	return Unindexed([]Branch{ErrorBranch(dated.NewSpan(at), code, source, message)}, true)
}

// TranslationLine wraps a translated branch into an unindexed final line.
func TranslationLine(b Branch) Alternatives {
	line := Unindexed([]Branch{b}, true)
	line.Translated = true
	return line
}
