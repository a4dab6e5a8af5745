package caption

import (
	"encoding/json"
	"errors"
	"testing"

	"live-caption-service/internal/dated"
	"live-caption-service/internal/models"
)

func TestCodec_RoundTrip(t *testing.T) {
	tr := NewTranscript([]Alternatives{
		slot(0, true, speech(1000, "done", 0.9, true), speech(1300, "done!", 0.95, true)),
		slot(1, false, speech(1400, "going", 0.5, false)),
		slot(4, false, speech(1500, "lost", 0.2, false)),
		ErrorLine(1100, "network", "test", "offline"),
		TranslationLine(NewBranch(dated.NewSpan(1000, 1300), 1, true, "fertig", SourceTranslation, "DE")),
	}, At(1, 3))

	doc := EncodeTranscript(tr)
	if doc.Index != 1 || doc.Length != 3 {
		t.Errorf("expected watermarks 1/3, got %d/%d", doc.Index, doc.Length)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back models.TranscriptDocument
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	decoded, err := DecodeTranscript(back)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Len() != tr.Len() {
		t.Fatalf("expected %d lines, got %d", tr.Len(), decoded.Len())
	}
	for i, line := range tr.Lines() {
		got := decoded.Lines()[i]
		if !line.Equal(got) {
			t.Errorf("line %d: expected %+v, got %+v", i, EncodeLine(line), EncodeLine(got))
		}
		if line.When().Compare(got.When()) != 0 {
			t.Errorf("line %d: expected when %s, got %s", i, line.When(), got.When())
		}
	}
}

func TestCodec_Classes(t *testing.T) {
	tr := NewTranscript([]Alternatives{
		slot(0, true, speech(1000, "f", 0.9, true)),
		slot(1, false, speech(1100, "i", 0.5, false)),
		slot(2, false, speech(1200, "a", 0.5, false)),
	}, At(0, 2))

	doc := EncodeTranscript(tr)
	want := []struct {
		class string
		index int
	}{
		{models.ClassFinal, 0},
		{models.ClassInterim, 1},
		{models.ClassAbandoned, -1},
	}
	for i, w := range want {
		if doc.Lines[i].Class != w.class {
			t.Errorf("line %d: expected class %s, got %s", i, w.class, doc.Lines[i].Class)
		}
		if doc.Lines[i].Index != w.index {
			t.Errorf("line %d: expected index %d, got %d", i, w.index, doc.Lines[i].Index)
		}
	}
}

func TestCodec_Errors(t *testing.T) {
	_, err := DecodeTranscript(models.TranscriptDocument{
		Lines: []models.LineDocument{{Class: "bogus"}},
	})
	if err == nil {
		t.Error("expected error for unknown class")
	}

	_, err = DecodeTranscript(models.TranscriptDocument{
		Lines: []models.LineDocument{{
			Class:    models.ClassFinal,
			Index:    -1,
			Branches: []models.BranchDocument{{When: "12Δx"}},
		}},
	})
	if !errors.Is(err, dated.ErrMalformedSpan) {
		t.Errorf("expected ErrMalformedSpan, got %v", err)
	}
}
