package google

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"live-caption-service/internal/service/health"
	"live-caption-service/internal/service/recognizer"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 8000 {
		t.Errorf("expected default sample rate 8000, got %d", cfg.SampleRateHz)
	}
	if cfg.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.InterimResults)
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"linear16", speechpb.RecognitionConfig_LINEAR16}, // lowercase -> fallback
		{"invalid", speechpb.RecognitionConfig_LINEAR16},  // fallback
		{"", speechpb.RecognitionConfig_LINEAR16},         // fallback
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

// fakeStream replays queued responses and records requests.
type fakeStream struct {
	mu     sync.Mutex
	sent   []*speechpb.StreamingRecognizeRequest
	resp   chan *speechpb.StreamingRecognizeResponse
	errs   chan error
	closed bool
	ctx    context.Context
}

func (s *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	return nil
}

func (s *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	select {
	case r, ok := <-s.resp:
		if !ok {
			return nil, io.EOF
		}
		return r, nil
	case err := <-s.errs:
		return nil, err
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.resp)
	}
	return nil
}

type fakeClient struct {
	stream *fakeStream
}

func (c *fakeClient) Open(ctx context.Context) (Stream, error) {
	c.stream = &fakeStream{
		resp: make(chan *speechpb.StreamingRecognizeResponse, 8),
		errs: make(chan error, 1),
		ctx:  ctx,
	}
	return c.stream, nil
}

func (c *fakeClient) Close() error { return nil }

type recorder struct {
	mu     sync.Mutex
	events []recognizer.Event
}

func (r *recorder) OnEvent(ev recognizer.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []health.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []health.EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func response(final bool, text string, end time.Duration) *speechpb.StreamingRecognizeResponse {
	return &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{{
			IsFinal:       final,
			ResultEndTime: durationpb.New(end),
			Alternatives: []*speechpb.SpeechRecognitionAlternative{
				{Transcript: text, Confidence: 0.5},
			},
		}},
	}
}

func TestRecognizer_Session(t *testing.T) {
	client := &fakeClient{}
	r := NewWithClient(client, DefaultConfig())
	start := time.UnixMilli(1700000000000)
	r.now = func() time.Time { return start }
	rec := &recorder{}
	r.Listen(rec)

	want := recognizer.DefaultSettings()
	want.Language = "de-DE"
	want.Continuous = false
	recognizer.Apply(r, want)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Start(context.Background()); !recognizer.IsAlreadyStarted(err) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	cfg := client.stream.sent[0].GetStreamingConfig()
	if cfg.GetConfig().GetLanguageCode() != "de-DE" {
		t.Errorf("expected language de-DE, got %s", cfg.GetConfig().GetLanguageCode())
	}
	if !cfg.GetSingleUtterance() {
		t.Error("expected single utterance for non-continuous settings")
	}

	if err := r.SendAudio(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.stream.resp <- response(false, "hel", 200*time.Millisecond)
	client.stream.resp <- response(true, "hello", 500*time.Millisecond)
	client.stream.resp <- response(false, "again", 900*time.Millisecond)
	client.stream.resp <- &speechpb.StreamingRecognizeResponse{
		SpeechEventType: speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE,
	}
	_ = r.Stop()
	r.Wait()

	got := rec.types()
	expect := []health.EventType{
		health.EventStart, health.EventAudioStart,
		health.EventSpeechStart, health.EventResult, health.EventResult, health.EventResult,
		health.EventSpeechEnd, health.EventAudioEnd, health.EventEnd,
	}
	if len(got) != len(expect) {
		t.Fatalf("expected %v, got %v", expect, got)
	}
	for i := range expect {
		if got[i] != expect[i] {
			t.Errorf("event %d: expected %v, got %v", i, expect[i], got[i])
		}
	}

	rec.mu.Lock()
	results := []recognizer.Event{rec.events[3], rec.events[4], rec.events[5]}
	rec.mu.Unlock()

	if results[0].ResultIndex != 0 || results[1].ResultIndex != 0 || results[2].ResultIndex != 1 {
		t.Errorf("expected slots 0, 0, 1, got %d, %d, %d",
			results[0].ResultIndex, results[1].ResultIndex, results[2].ResultIndex)
	}
	if !results[1].Results[0].Final {
		t.Error("expected second result final")
	}
	if ts := results[1].Timestamp; !ts.Equal(start.Add(500 * time.Millisecond)) {
		t.Errorf("expected timestamp from result end time, got %v", ts)
	}

	if err := r.SendAudio(context.Background(), []byte{1}); err != recognizer.ErrNotStarted {
		t.Errorf("expected ErrNotStarted after end, got %v", err)
	}
}

func TestRecognizer_StreamErrorBecomesErrorEvent(t *testing.T) {
	client := &fakeClient{}
	r := NewWithClient(client, DefaultConfig())
	rec := &recorder{}
	r.Listen(rec)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.stream.errs <- grpcstatus.Error(codes.ResourceExhausted, "quota")
	r.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var found bool
	for _, ev := range rec.events {
		if ev.Type == health.EventError {
			found = true
			if ev.ErrorCode != codes.ResourceExhausted.String() || ev.Message != "quota" {
				t.Errorf("unexpected error event %+v", ev)
			}
		}
	}
	if !found {
		t.Error("expected an error event")
	}
	if last := rec.events[len(rec.events)-1]; last.Type != health.EventEnd {
		t.Errorf("expected end last, got %v", last.Type)
	}
}

func TestRecognizer_AbortEndsQuietly(t *testing.T) {
	client := &fakeClient{}
	r := NewWithClient(client, DefaultConfig())
	rec := &recorder{}
	r.Listen(rec)

	_ = r.Start(context.Background())
	_ = r.Abort()
	r.Wait()

	for _, ty := range rec.types() {
		if ty == health.EventError {
			t.Error("expected no error event for abort")
		}
	}
	if got := rec.types(); got[len(got)-1] != health.EventEnd {
		t.Errorf("expected end last, got %v", got)
	}
}
