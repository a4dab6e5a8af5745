package schema

import (
	"testing"

	"live-caption-service/internal/models"
)

func settledLine() models.LineDocument {
	return models.LineDocument{
		Class: models.ClassFinal,
		Index: -1,
		When:  "1000",
		Branches: []models.BranchDocument{
			{When: "1000", Confidence: 0.9, Final: true, Source: "speech-api", Text: "hello"},
		},
	}
}

func TestValidator_Validate(t *testing.T) {
	v := MustNew()

	tests := []struct {
		name    string
		event   models.CaptionEvent
		wantErr bool
	}{
		{
			name: "settled",
			event: models.CaptionEvent{
				EventType: models.EventSettled, SessionID: "s1", Timestamp: 1,
				Lines: []models.LineDocument{settledLine()},
			},
		},
		{
			name: "snapshot with empty transcript",
			event: models.CaptionEvent{
				EventType: models.EventSnapshot, SessionID: "s1", Timestamp: 1,
				Snapshot: &models.TranscriptDocument{Index: -1, Length: -1},
			},
		},
		{
			name: "settled without lines",
			event: models.CaptionEvent{
				EventType: models.EventSettled, SessionID: "s1", Timestamp: 1,
			},
			wantErr: true,
		},
		{
			name: "snapshot without transcript",
			event: models.CaptionEvent{
				EventType: models.EventSnapshot, SessionID: "s1", Timestamp: 1,
			},
			wantErr: true,
		},
		{
			name: "unknown event type",
			event: models.CaptionEvent{
				EventType: "caption.other", SessionID: "s1", Timestamp: 1,
				Lines: []models.LineDocument{settledLine()},
			},
			wantErr: true,
		},
		{
			name: "missing session",
			event: models.CaptionEvent{
				EventType: models.EventSettled, Timestamp: 1,
				Lines: []models.LineDocument{settledLine()},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.event)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidator_RejectsBadLine(t *testing.T) {
	v := MustNew()

	line := settledLine()
	line.Class = "pending"
	ev := models.CaptionEvent{
		EventType: models.EventSettled, SessionID: "s1", Timestamp: 1,
		Lines: []models.LineDocument{line},
	}
	if err := v.Validate(ev); err == nil {
		t.Error("expected error for unknown line class")
	}

	line = settledLine()
	line.Branches = nil
	ev.Lines = []models.LineDocument{line}
	if err := v.Validate(ev); err == nil {
		t.Error("expected error for line without branches")
	}
}

func TestValidator_ValidateJSON(t *testing.T) {
	v := MustNew()
	if err := v.ValidateJSON([]byte("{")); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
