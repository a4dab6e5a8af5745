package captioner

import (
	"errors"
	"fmt"
	"time"

	"live-caption-service/internal/caption"
	"live-caption-service/internal/dated"
	"live-caption-service/internal/service/recognizer"
)

// errorSource tags lines fabricated from recognizer error events.
const errorSource = "SpeechRecognition API Error Event"

// errNegativeIndex marks updates skipped as malformed.
var errNegativeIndex = errors.New("negative result index")

// update is one queued recognizer contribution: either a result event still
// to be converted, or a line fabricated on arrival.
type update struct {
	event    recognizer.Event
	language string
	line     *caption.Alternatives
}

func speechUpdate(ev recognizer.Event, language string) update {
	return update{event: ev, language: language}
}

func faultUpdate(line caption.Alternatives) update {
	return update{line: &line}
}

// errorLine fabricates the line for a recognizer error event.
func errorLine(ev recognizer.Event) caption.Alternatives {
	return caption.ErrorLine(dated.FromTime(ev.Timestamp), ev.ErrorCode, errorSource, ev.Message)
}

// noMatchLine fabricates the line for a nomatch event.
func noMatchLine(at time.Time) caption.Alternatives {
	return caption.ErrorLine(dated.FromTime(at), "nomatch", caption.SourceRecognizer, caption.NoMatchMessage)
}

// transcript converts u into a transcript reconciled against the watermarks
// the event reported. Results[i] describes slot ResultIndex+i. A result event
// with no alternatives still carries its watermarks, which abandon every live
// slot from ResultIndex on.
func (u update) transcript() (caption.Transcript, error) {
	if u.line != nil {
		return caption.NewTranscript([]caption.Alternatives{*u.line}, caption.Watermarks{}), nil
	}

	ev := u.event
	if err := ev.Validate(); err != nil {
		return caption.Transcript{}, err
	}
	if ev.ResultIndex < 0 {
		return caption.Transcript{}, fmt.Errorf("slot %d: %w", ev.ResultIndex, errNegativeIndex)
	}

	when := dated.NewSpan(dated.FromTime(ev.Timestamp))
	lines := make([]caption.Alternatives, 0, len(ev.Results))
	for i, res := range ev.Results {
		if len(res.Alternatives) == 0 {
			continue
		}
		branches := make([]caption.Branch, 0, len(res.Alternatives))
		for _, alt := range res.Alternatives {
			branches = append(branches, caption.NewBranch(
				when, alt.Confidence, res.Final, alt.Transcript, caption.SourceSpeechAPI, u.language,
			))
		}
		lines = append(lines, caption.NewAlternatives(branches, ev.ResultIndex+i, res.Final))
	}
	return caption.NewTranscript(lines, caption.At(ev.ResultIndex, ev.ResultLength())), nil
}
