// Package mock provides a scripted recognizer for running and testing
// without cloud credentials. It fires the same event sequence a browser
// speech recognizer does: start, audio/sound/speech bookends, result events
// carrying a resultIndex watermark, and end.
package mock

import (
	"context"
	"sync"
	"time"

	"live-caption-service/internal/service/health"
	"live-caption-service/internal/service/recognizer"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive interim transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"I want", "I want to", "I want to cancel"},
		Final:      "I want to cancel my subscription",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Yes", "Yes please"},
		Final:      "Yes please go ahead",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"Can you", "Can you help", "Can you help me with"},
		Final:      "Can you help me with my account",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"Thank you"},
		Final:      "Thank you very much",
		Confidence: 0.98,
	},
}

// Step is one scripted event, fired Delay after the previous one.
type Step struct {
	Delay time.Duration
	Event recognizer.Event
}

// Script turns utterances into the event sequence of one recognition
// session. Each utterance occupies the next result slot; resultIndex points at
// the slot being revised, as browsers report it.
func Script(utterances []SimulatedUtterance, pace time.Duration) []Step {
	ev := func(t health.EventType) Step {
		return Step{Delay: pace, Event: recognizer.Event{Type: t}}
	}

	steps := []Step{ev(health.EventAudioStart), ev(health.EventSoundStart)}
	for slot, u := range utterances {
		steps = append(steps, ev(health.EventSpeechStart))
		for _, p := range u.Partials {
			steps = append(steps, result(pace, slot, false, p, u.Confidence/2))
		}
		steps = append(steps, result(pace, slot, true, u.Final, u.Confidence))
		steps = append(steps, ev(health.EventSpeechEnd))
	}
	return append(steps, ev(health.EventSoundEnd), ev(health.EventAudioEnd))
}

func result(pace time.Duration, slot int, final bool, text string, confidence float64) Step {
	return Step{Delay: pace, Event: recognizer.Event{
		Type:        health.EventResult,
		ResultIndex: slot,
		Results: []recognizer.Result{{
			Final:        final,
			Alternatives: []recognizer.Alternative{{Transcript: text, Confidence: confidence}},
		}},
	}}
}

// Recognizer implements recognizer.Recognizer with scripted events.
type Recognizer struct {
	mu       sync.Mutex
	listener recognizer.Listener
	settings recognizer.Settings
	script   []Step
	now      func() time.Time

	running  bool
	stalled  bool
	startErr []error
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	starts, stops, aborts int
}

// Option configures a mock recognizer.
type Option func(*Recognizer)

// WithScript plays steps after every successful Start, then ends the session.
func WithScript(steps []Step) Option {
	return func(r *Recognizer) { r.script = steps }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recognizer) { r.now = now }
}

// New creates a mock recognizer with default settings.
func New(opts ...Option) *Recognizer {
	r := &Recognizer{
		settings: recognizer.DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Listen registers the listener.
func (r *Recognizer) Listen(l recognizer.Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
}

// Settings returns the applied settings.
func (r *Recognizer) Settings() recognizer.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// Configure replaces the settings.
func (r *Recognizer) Configure(s recognizer.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = s
}

// FailNextStart makes the next Start calls return errs, one per call.
func (r *Recognizer) FailNextStart(errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr = append(r.startErr, errs...)
}

// Stall makes the recognizer ignore Stop and Abort, like a zombie session
// that never fires end.
func (r *Recognizer) Stall(stalled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stalled = stalled
}

// Start fires start and plays the script, if any.
func (r *Recognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if len(r.startErr) > 0 {
		err := r.startErr[0]
		r.startErr = r.startErr[1:]
		r.mu.Unlock()
		return err
	}
	if r.running {
		r.mu.Unlock()
		return recognizer.ErrAlreadyStarted
	}
	r.running = true
	r.starts++
	script := r.script
	var playCtx context.Context
	if len(script) > 0 {
		playCtx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	r.mu.Unlock()

	r.Emit(recognizer.Event{Type: health.EventStart})

	if playCtx != nil {
		r.wg.Add(1)
		go r.play(playCtx, script)
	}
	return nil
}

func (r *Recognizer) play(ctx context.Context, steps []Step) {
	defer r.wg.Done()

	for _, s := range steps {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Delay):
		}
		r.Emit(s.Event)
	}
	r.end()
}

// Stop ends the session unless stalled.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	r.stops++
	r.mu.Unlock()
	return r.halt()
}

// Abort ends the session unless stalled.
func (r *Recognizer) Abort() error {
	r.mu.Lock()
	r.aborts++
	r.mu.Unlock()
	return r.halt()
}

func (r *Recognizer) halt() error {
	r.mu.Lock()
	if r.stalled {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.end()
	return nil
}

func (r *Recognizer) end() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.Emit(recognizer.Event{Type: health.EventEnd})
}

// Emit stamps ev and delivers it to the listener synchronously.
func (r *Recognizer) Emit(ev recognizer.Event) {
	r.mu.Lock()
	l := r.listener
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}
	r.mu.Unlock()

	if l != nil {
		l.OnEvent(ev)
	}
}

// Wait blocks until scripted playback has finished or been cancelled.
func (r *Recognizer) Wait() {
	r.wg.Wait()
}

// Running reports whether a session is active.
func (r *Recognizer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Calls returns how often Start succeeded and Stop and Abort were called.
func (r *Recognizer) Calls() (starts, stops, aborts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops, r.aborts
}
