package caption

import (
	"fmt"

	"live-caption-service/internal/dated"
	"live-caption-service/internal/models"
	"live-caption-service/internal/order"
)

// EncodeTranscript renders t into its wire document.
func EncodeTranscript(t Transcript) models.TranscriptDocument {
	doc := models.TranscriptDocument{
		Index:  -1,
		Length: -1,
		Lines:  make([]models.LineDocument, 0, t.Len()),
	}
	if i, ok := t.wm.Index(); ok {
		doc.Index = i
	}
	if l, ok := t.wm.Length(); ok {
		doc.Length = l
	}
	for line := range t.All() {
		doc.Lines = append(doc.Lines, EncodeLine(line))
	}
	return doc
}

// EncodeLine renders one line.
func EncodeLine(a Alternatives) models.LineDocument {
	doc := models.LineDocument{
		Class:      a.State().String(),
		Index:      -1,
		Translated: a.Translated,
		When:       a.When().String(),
		Branches:   make([]models.BranchDocument, 0, a.Len()),
	}
	if i, ok := a.Index(); ok {
		doc.Index = i
	}
	for b := range a.branches.All() {
		doc.Branches = append(doc.Branches, models.BranchDocument{
			When:       b.When.String(),
			Confidence: b.Confidence.V,
			Final:      b.Final,
			Source:     b.Source,
			Lang:       b.Language,
			Text:       b.Text,
			Error:      b.Error,
		})
	}
	return doc
}

// DecodeTranscript rebuilds a transcript from its wire document. Lines keep
// the class they were encoded with.
func DecodeTranscript(doc models.TranscriptDocument) (Transcript, error) {
	var wm Watermarks
	if doc.Index >= 0 {
		wm = wm.WithIndex(doc.Index)
	}
	if doc.Length >= 0 {
		wm = wm.WithLength(doc.Length)
	}

	lines := make([]Alternatives, 0, len(doc.Lines))
	for n, ld := range doc.Lines {
		line, err := DecodeLine(ld)
		if err != nil {
			return Transcript{}, fmt.Errorf("line %d: %w", n, err)
		}
		lines = append(lines, line)
	}

	return Transcript{lines: order.NewHull(lines...), wm: wm}, nil
}

// DecodeLine rebuilds one line. The class decides finality; an abandoned
// line never keeps an index.
func DecodeLine(doc models.LineDocument) (Alternatives, error) {
	state, err := ParseState(doc.Class)
	if err != nil {
		return Alternatives{}, err
	}

	branches := make([]Branch, 0, len(doc.Branches))
	for n, bd := range doc.Branches {
		when, err := dated.ParseSpan(bd.When)
		if err != nil {
			return Alternatives{}, fmt.Errorf("branch %d: %w", n, err)
		}
		branches = append(branches, Branch{
			When:       when,
			Confidence: order.Of(bd.Confidence),
			Final:      bd.Final,
			Text:       bd.Text,
			Source:     bd.Source,
			Language:   bd.Lang,
			Error:      bd.Error,
		})
	}

	final := state == StateFinal
	var line Alternatives
	if doc.Index >= 0 && state != StateAbandoned {
		line = NewAlternatives(branches, doc.Index, final)
	} else {
		line = Unindexed(branches, final)
	}
	line.Translated = doc.Translated
	return line, nil
}
