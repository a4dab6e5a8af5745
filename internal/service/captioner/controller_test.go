package captioner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"live-caption-service/internal/events"
	"live-caption-service/internal/models"
	"live-caption-service/internal/service/health"
	"live-caption-service/internal/service/recognizer"
	"live-caption-service/internal/service/recognizer/mock"
	"live-caption-service/internal/service/translate"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func newMockPublisher() *events.Publisher {
	return events.New(&events.Config{Enabled: false})
}

// stepClock returns a clock that advances by step on every reading.
func stepClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.UnixMilli(1700000000000)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

func newTestController(rec recognizer.Recognizer) *Controller {
	return New(rec, newMockPublisher(), nil, DefaultConfig())
}

func result(slot int, final bool, text string, confidence float64) recognizer.Event {
	return recognizer.Event{
		Type:        health.EventResult,
		ResultIndex: slot,
		Results: []recognizer.Result{{
			Final:        final,
			Alternatives: []recognizer.Alternative{{Transcript: text, Confidence: confidence}},
		}},
	}
}

// best returns the text of the last sorted branch of each line.
func best(doc models.TranscriptDocument) []string {
	out := make([]string, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		out = append(out, l.Branches[len(l.Branches)-1].Text)
	}
	return out
}

func TestController_ResultsSettleIntoHistory(t *testing.T) {
	rec := mock.New(mock.WithClock(stepClock(10 * time.Millisecond)))
	c := newTestController(rec)
	ctx := context.Background()

	rec.Emit(result(0, false, "hel", 0.4))
	rec.Emit(result(0, true, "hello", 0.9))
	rec.Emit(result(1, false, "wor", 0.4))

	if !c.Process(ctx, false) {
		t.Fatal("expected process to run")
	}

	hist := c.History()
	if len(hist.Lines) != 1 {
		t.Fatalf("expected 1 history line, got %d", len(hist.Lines))
	}
	if hist.Lines[0].Class != models.ClassFinal || hist.Lines[0].Index != -1 {
		t.Errorf("expected detached final line, got class %s index %d", hist.Lines[0].Class, hist.Lines[0].Index)
	}
	if got := best(hist); got[0] != "hello" {
		t.Errorf("expected 'hello', got %q", got[0])
	}

	live := c.Transcript()
	if len(live.Lines) != 1 || live.Lines[0].Index != 1 || live.Lines[0].Class != models.ClassInterim {
		t.Fatalf("expected interim slot 1 live, got %+v", live.Lines)
	}
	if live.Index != 1 || live.Length != 2 {
		t.Errorf("expected watermarks 1/2, got %d/%d", live.Index, live.Length)
	}
	if live.SessionID != c.SessionID() {
		t.Errorf("expected session %s, got %s", c.SessionID(), live.SessionID)
	}

	c.Process(ctx, true)

	hist = c.History()
	if len(hist.Lines) != 2 {
		t.Fatalf("expected 2 history lines after full flush, got %d", len(hist.Lines))
	}
	if hist.Lines[1].Class != models.ClassAbandoned {
		t.Errorf("expected flushed interim to be abandoned, got %s", hist.Lines[1].Class)
	}
	if n := len(c.Transcript().Lines); n != 0 {
		t.Errorf("expected empty live transcript, got %d lines", n)
	}
}

func TestController_ScriptedSession(t *testing.T) {
	utterances := mock.DefaultUtterances[:2]
	rec := mock.New(mock.WithScript(mock.Script(utterances, time.Millisecond)))
	c := newTestController(rec)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec.Wait()
	c.Process(ctx, false)

	got := best(c.History())
	if len(got) != 2 || got[0] != utterances[0].Final || got[1] != utterances[1].Final {
		t.Errorf("expected both finals in order, got %q", got)
	}
	if c.Running() {
		t.Error("expected recognizer to have ended with the script")
	}
}

func TestController_NoMatchAndErrorLines(t *testing.T) {
	rec := mock.New(mock.WithClock(stepClock(10 * time.Millisecond)))
	c := newTestController(rec)

	rec.Emit(recognizer.Event{Type: health.EventNoMatch})
	rec.Emit(recognizer.Event{Type: health.EventError, ErrorCode: "network", Message: "offline"})
	c.Process(context.Background(), false)

	hist := c.History()
	if len(hist.Lines) != 2 {
		t.Fatalf("expected 2 history lines, got %d", len(hist.Lines))
	}

	noMatch := hist.Lines[0].Branches[0]
	if noMatch.Error != "nomatch" || noMatch.Source != "SpeechRecognition API" || !strings.Contains(noMatch.Text, "did not recognise") {
		t.Errorf("unexpected nomatch branch %+v", noMatch)
	}
	fault := hist.Lines[1].Branches[0]
	if fault.Error != "network" || fault.Text != "offline" || fault.Source != errorSource {
		t.Errorf("unexpected error branch %+v", fault)
	}
	if fault.Confidence != -1 {
		t.Errorf("expected confidence -1, got %v", fault.Confidence)
	}
}

func TestController_MalformedUpdateSkipped(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)

	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	rec.Emit(recognizer.Event{Type: health.EventResult})
	rec.Emit(result(-1, true, "nowhere", 0.9))
	c.Process(context.Background(), false)

	st := c.Status()
	if st.Queued != 0 || st.Live != 0 || st.History != 0 {
		t.Errorf("expected malformed updates dropped, got queued=%d live=%d history=%d", st.Queued, st.Live, st.History)
	}

	var warned map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var fields map[string]any
		if json.Unmarshal([]byte(line), &fields) == nil && fields["message"] == "skipping malformed update" {
			warned = fields
		}
	}
	if warned == nil {
		t.Fatalf("expected a malformed update warning, got %q", buf.String())
	}
	if warned["slot"] != float64(-1) {
		t.Errorf("expected slot -1, got %v", warned["slot"])
	}
	if warned["sessionId"] != c.SessionID() {
		t.Errorf("expected sessionId %q, got %v", c.SessionID(), warned["sessionId"])
	}
	if warned["component"] != "captioner" {
		t.Errorf("expected component captioner, got %v", warned["component"])
	}
}

func TestController_EmptyResultsAbandonSlots(t *testing.T) {
	rec := mock.New(mock.WithClock(stepClock(10 * time.Millisecond)))
	c := newTestController(rec)
	ctx := context.Background()

	rec.Emit(recognizer.Event{
		Type: health.EventResult,
		Results: []recognizer.Result{
			{Final: true, Alternatives: []recognizer.Alternative{{Transcript: "hello", Confidence: 0.9}}},
			{Final: false, Alternatives: []recognizer.Alternative{{Transcript: "wor", Confidence: 0.4}}},
		},
	})
	c.Process(ctx, false)

	if live := c.Transcript(); len(live.Lines) != 1 || live.Lines[0].Index != 1 {
		t.Fatalf("expected interim slot 1 live, got %+v", live.Lines)
	}

	rec.Emit(recognizer.Event{Type: health.EventResult, ResultIndex: 1, Results: []recognizer.Result{}})
	c.Process(ctx, false)

	if st := c.Status(); st.Live != 0 {
		t.Errorf("expected no live lines, got %d", st.Live)
	}
	hist := c.History()
	if len(hist.Lines) != 2 {
		t.Fatalf("expected 2 history lines, got %d", len(hist.Lines))
	}
	if hist.Lines[1].Class != models.ClassAbandoned {
		t.Errorf("expected slot 1 abandoned, got %s", hist.Lines[1].Class)
	}
	if got := best(hist); got[1] != "wor" {
		t.Errorf("expected 'wor', got %q", got[1])
	}
	if live := c.Transcript(); live.Index != 1 || live.Length != 1 {
		t.Errorf("expected watermarks 1/1, got %d/%d", live.Index, live.Length)
	}
}

func TestController_StartGuards(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Running() {
		t.Error("expected running after start")
	}
	if got := c.Status().State; got != "RUNNING" {
		t.Errorf("expected RUNNING, got %s", got)
	}

	if err := c.Start(ctx); !errors.Is(err, health.ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if starts, _, _ := rec.Calls(); starts != 1 {
		t.Errorf("expected 1 start, got %d", starts)
	}
}

// reentrant starts the controller again from inside the recognizer start.
type reentrant struct {
	*mock.Recognizer
	c      *Controller
	nested error
}

func (r *reentrant) Start(ctx context.Context) error {
	r.nested = r.c.Start(ctx)
	return r.Recognizer.Start(ctx)
}

func TestController_StartInProgress(t *testing.T) {
	rec := &reentrant{Recognizer: mock.New()}
	c := newTestController(rec)
	rec.c = c

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(rec.nested, health.ErrStartInProgress) {
		t.Errorf("expected ErrStartInProgress for nested start, got %v", rec.nested)
	}
}

func TestController_AlreadyStartedResyncs(t *testing.T) {
	rec := mock.New()
	rec.FailNextStart(recognizer.ErrAlreadyStarted)
	c := newTestController(rec)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("expected benign already-started, got %v", err)
	}
	if !c.Running() {
		t.Error("expected running to be assumed")
	}
	if c.Status().Started {
		t.Error("expected started cleared")
	}
}

func TestController_StartFailure(t *testing.T) {
	rec := mock.New()
	boom := errors.New("boom")
	rec.FailNextStart(boom)
	c := newTestController(rec)
	ctx := context.Background()

	if err := c.Start(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	st := c.Status()
	if st.Started || st.Running {
		t.Errorf("expected started and running cleared, got %+v", st.Status)
	}

	if err := c.Start(ctx); err != nil {
		t.Errorf("expected retry to succeed, got %v", err)
	}
}

func TestController_EscalationOncePerCrossing(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)
	ctx := context.Background()

	c.Pulse(ctx)
	if !c.Running() {
		t.Fatal("expected first pulse to start the recognizer")
	}
	rec.Stall(true)
	session := c.SessionID()

	for i := 1; i <= 79; i++ {
		c.Pulse(ctx)

		_, stops, aborts := rec.Calls()
		wantStops, wantAborts := 0, 0
		if i > 50 {
			wantStops = 1
		}
		if i > 75 {
			wantAborts = 1
		}
		if stops != wantStops || aborts != wantAborts {
			t.Fatalf("tick %d: expected %d stops and %d aborts, got %d and %d", i, wantStops, wantAborts, stops, aborts)
		}
	}
	if got := c.Status().Phase; got != "panic" {
		t.Errorf("expected panic at tick 79, got %s", got)
	}

	boom := errors.New("boom")
	rec.FailNextStart(boom, boom)

	// Ticks 80 and 81 force a start that fails, so recovery persists.
	c.Pulse(ctx)
	c.Pulse(ctx)
	if st := c.Status(); st.Ticks != 81 || st.Phase != "recovery" {
		t.Errorf("expected recovery at tick 81, got %d %s", st.Ticks, st.Phase)
	}

	// Tick 82 forces a start the stalled recognizer answers with
	// already-started; the counter is rearmed.
	c.Pulse(ctx)
	st := c.Status()
	if st.Ticks != 0 || st.Phase != "healthy" {
		t.Errorf("expected rearmed counter, got %d %s", st.Ticks, st.Phase)
	}
	if !st.Running {
		t.Error("expected running assumed after resync")
	}
	if c.SessionID() == session {
		t.Error("expected a new session after recovery")
	}

	starts, stops, aborts := rec.Calls()
	if starts != 1 || stops != 1 || aborts != 1 {
		t.Errorf("expected 1/1/1 calls, got %d/%d/%d", starts, stops, aborts)
	}
}

func TestController_PulseRestartsEndedRecognizer(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)
	ctx := context.Background()

	c.Pulse(ctx)
	_ = rec.Stop()
	if c.Running() {
		t.Fatal("expected end to clear running")
	}

	c.Pulse(ctx)
	if starts, _, _ := rec.Calls(); starts != 2 {
		t.Errorf("expected restart on next pulse, got %d starts", starts)
	}
}

func TestController_NestedProcessIsNoop(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)
	ctx := context.Background()

	rec.Emit(result(0, true, "hello", 0.9))

	var nested []bool
	c.now = func() time.Time {
		if len(nested) == 0 {
			nested = append(nested, c.Process(ctx, false))
		}
		return time.Now()
	}

	if !c.Process(ctx, false) {
		t.Fatal("expected outer process to run")
	}
	if len(nested) != 1 || nested[0] {
		t.Errorf("expected nested process to be a no-op, got %v", nested)
	}
	if n := len(c.History().Lines); n != 1 {
		t.Errorf("expected the update merged once, got %d history lines", n)
	}
}

func TestController_AllowanceDefersRemainder(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)
	c.now = stepClock(10 * time.Second)
	ctx := context.Background()

	rec.Emit(result(0, true, "one", 0.9))
	rec.Emit(result(1, true, "two", 0.9))
	rec.Emit(result(2, true, "three", 0.9))

	for _, want := range []int{2, 1, 0} {
		c.Process(ctx, false)
		if got := c.Status().Queued; got != want {
			t.Errorf("expected %d queued, got %d", want, got)
		}
	}
	if n := len(c.History().Lines); n != 3 {
		t.Errorf("expected 3 history lines, got %d", n)
	}
}

// upper translates by upper-casing.
type upper struct{}

func (upper) Name() string { return translate.ProviderDeepL }

func (upper) Translate(_ context.Context, text, _ string) ([]translate.LanguageString, error) {
	return []translate.LanguageString{{Language: "xx", Text: strings.ToUpper(text)}}, nil
}

func TestController_TranslationsReachHistory(t *testing.T) {
	rec := mock.New()
	q := translate.NewQueue(upper{}, 0, time.Second)
	c := New(rec, newMockPublisher(), q, DefaultConfig())
	ctx := context.Background()

	rec.Emit(result(0, true, "hello", 0.9))
	rec.Emit(result(1, false, "wor", 0.4))
	c.Process(ctx, true)
	q.Wait()
	c.Snapshot(ctx, false)

	hist := c.History()
	if len(hist.Lines) != 3 {
		t.Fatalf("expected speech, abandoned and translated lines, got %d", len(hist.Lines))
	}
	var translated []models.LineDocument
	for _, l := range hist.Lines {
		if l.Translated {
			translated = append(translated, l)
		}
	}
	if len(translated) != 1 {
		t.Fatalf("expected only the final line translated, got %d", len(translated))
	}
	b := translated[0].Branches[0]
	if b.Text != "HELLO" || b.Source != translate.ProviderDeepL || b.Lang != "xx" {
		t.Errorf("unexpected translated branch %+v", b)
	}
}

func TestController_UpdateSettings(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)
	ctx := context.Background()

	bad := recognizer.DefaultSettings()
	bad.MaxAlternatives = 0
	if err := c.UpdateSettings(bad); err == nil {
		t.Error("expected error for invalid settings")
	}

	if err := c.Start(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.UpdateSettings(recognizer.DefaultSettings()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, stops, _ := rec.Calls(); stops != 0 {
		t.Errorf("expected unchanged settings to leave the recognizer alone, got %d stops", stops)
	}

	want := recognizer.DefaultSettings()
	want.Language = "de-DE"
	if err := c.UpdateSettings(want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Running() {
		t.Error("expected settings change to stop the recognizer")
	}

	c.Pulse(ctx)
	if got := rec.Settings().Language; got != "de-DE" {
		t.Errorf("expected de-DE applied on restart, got %s", got)
	}
	if starts, _, _ := rec.Calls(); starts != 2 {
		t.Errorf("expected 2 starts, got %d", starts)
	}
}

func TestController_Subscribe(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)

	ch, cancel := c.Subscribe()
	rec.Emit(result(0, false, "hel", 0.4))
	c.Process(context.Background(), false)

	select {
	case doc := <-ch:
		if len(doc.Lines) != 1 || doc.Lines[0].Class != models.ClassInterim {
			t.Errorf("unexpected snapshot %+v", doc)
		}
	default:
		t.Fatal("expected a snapshot after processing")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after cancel")
	}
}

func TestController_RunStartsRecognizer(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := c.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if starts, _, _ := rec.Calls(); starts != 1 {
		t.Errorf("expected 1 start, got %d", starts)
	}
}

func TestController_ShutdownFlushes(t *testing.T) {
	rec := mock.New()
	c := newTestController(rec)
	ctx := context.Background()

	_ = c.Start(ctx)
	rec.Emit(result(0, false, "hel", 0.4))

	if err := c.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Running() {
		t.Error("expected recognizer stopped")
	}
	hist := c.History()
	if len(hist.Lines) != 1 || hist.Lines[0].Class != models.ClassAbandoned {
		t.Errorf("expected flushed abandoned line, got %+v", hist.Lines)
	}
}
