// Package captioner drives a speech recognizer and turns its result stream
// into a live transcript and a settled history. It keeps the recognizer
// alive through the health lifecycle: stopping it when it turns zombie,
// aborting it on panic and force-restarting it when it needs recovery.
package captioner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"live-caption-service/internal/caption"
	"live-caption-service/internal/events"
	"live-caption-service/internal/models"
	"live-caption-service/internal/observability/logging"
	"live-caption-service/internal/observability/metrics"
	"live-caption-service/internal/service/health"
	"live-caption-service/internal/service/recognizer"
	"live-caption-service/internal/service/translate"
)

const component = "captioner"

// Config holds the controller's health bands and the recognizer settings
// applied on every start.
type Config struct {
	Provider   string
	Thresholds health.Thresholds
	Timing     health.Timing
	Settings   recognizer.Settings
}

// DefaultConfig returns the standard health bands and recognizer settings.
func DefaultConfig() Config {
	return Config{
		Provider:   "mock",
		Thresholds: health.DefaultThresholds(),
		Timing:     health.DefaultTiming(),
		Settings:   recognizer.DefaultSettings(),
	}
}

// Status is a read-only view of the controller.
type Status struct {
	health.Status
	SessionID string              `json:"sessionId"`
	Queued    int                 `json:"queued"`
	Live      int                 `json:"live"`
	History   int                 `json:"history"`
	Settings  recognizer.Settings `json:"settings"`
}

// Controller owns one recognizer and the transcripts built from it.
// It implements recognizer.Listener.
//
// Locking: mu guards the queue, both transcripts, the session id and the
// settings. It is never held across calls into the recognizer, which may
// deliver events synchronously.
type Controller struct {
	rec          recognizer.Recognizer
	lifecycle    *health.Lifecycle
	publisher    *events.Publisher
	translations *translate.Queue
	metrics      *metrics.Metrics
	log          zerolog.Logger
	now          func() time.Time

	inFlight atomic.Bool

	mu       sync.RWMutex
	queue    []update
	live     caption.Transcript
	history  caption.Transcript
	session  string
	settings recognizer.Settings
	subs     subscribers
}

// New creates a controller and registers it as rec's listener.
func New(rec recognizer.Recognizer, publisher *events.Publisher, translations *translate.Queue, cfg Config) *Controller {
	if translations == nil {
		translations = translate.NewQueue(translate.Disabled{}, 0, 0)
	}
	c := &Controller{
		rec:          rec,
		lifecycle:    health.NewLifecycle(cfg.Thresholds, cfg.Timing),
		publisher:    publisher,
		translations: translations,
		metrics:      metrics.DefaultMetrics,
		log:          logging.WithRecognizer(component, cfg.Provider),
		now:          time.Now,
		session:      uuid.NewString(),
		settings:     cfg.Settings,
	}
	rec.Listen(c)
	return c
}

// OnEvent records a recognizer event. Results, errors and nomatch are queued
// for the next processing pass; every event feeds the health predicates.
func (c *Controller) OnEvent(ev recognizer.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}

	changed := c.lifecycle.Observe(ev.Type, ev.Timestamp)
	c.metrics.RecordEvent(ev.Type.String())
	if len(changed) > 0 {
		c.log.Debug().Str("event", ev.Type.String()).Strs("changed", changed).Msg("predicates changed")
	}

	var u update
	switch ev.Type {
	case health.EventResult:
		c.mu.RLock()
		language := c.settings.Language
		c.mu.RUnlock()
		u = speechUpdate(ev, language)
	case health.EventError:
		c.log.Warn().Str("code", ev.ErrorCode).Str("message", ev.Message).Msg("recognizer error")
		u = faultUpdate(errorLine(ev))
	case health.EventNoMatch:
		u = faultUpdate(noMatchLine(ev.Timestamp))
	default:
		return
	}

	c.mu.Lock()
	c.queue = append(c.queue, u)
	c.mu.Unlock()
}

// Process merges queued updates into the live transcript, oldest first, and
// then snapshots. It stops early once the pass has used up the current pulse
// delay; what is left stays queued for the next pass. A call made while
// another pass is running returns false without doing anything.
func (c *Controller) Process(ctx context.Context, full bool) bool {
	if !c.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer c.inFlight.Store(false)

	allowance := c.lifecycle.Delay()
	start := c.now()

	var (
		batch   caption.Transcript
		faults  []caption.Alternatives
		merged  int
		overrun bool
	)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			break
		}
		u := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		t, err := u.transcript()
		if err != nil {
			c.metrics.RecordMalformed()
			logger := logging.WithSlot(c.SessionID(), u.event.ResultIndex)
			logger.Warn().
				Err(err).
				Str("component", component).
				Msg("skipping malformed update")
			continue
		}
		if u.line != nil {
			faults = append(faults, t.Lines()...)
		} else {
			batch = batch.Load(t)
		}
		merged++

		if elapsed := c.now().Sub(start); elapsed > allowance {
			c.mu.RLock()
			left := len(c.queue)
			c.mu.RUnlock()
			if left > 0 {
				overrun = true
				c.log.Warn().
					Dur("elapsed", elapsed).
					Dur("allowance", allowance).
					Int("merged", merged).
					Int("deferred", left).
					Msg("processing overran its allowance")
				break
			}
		}
	}

	c.mu.Lock()
	if merged > 0 {
		c.live = c.live.Concat(append(batch.Lines(), faults...), batch.Watermarks())
	}
	queued, live := len(c.queue), c.live.Len()
	c.mu.Unlock()

	c.snapshot(ctx, full, merged > 0)
	c.metrics.RecordProcess(queued, live, overrun, c.now().Sub(start).Seconds())
	return true
}

// Snapshot moves settled lines, or every line when full is set, from the live
// transcript into history and drains finished translations into history.
func (c *Controller) Snapshot(ctx context.Context, full bool) {
	c.snapshot(ctx, full, false)
}

func (c *Controller) snapshot(ctx context.Context, full, changed bool) {
	translated := c.translations.Drain()

	c.mu.Lock()
	settled, live := c.live.Split(full)
	c.live = live
	moved := make([]caption.Alternatives, 0, len(settled)+len(translated))
	moved = append(moved, settled...)
	for _, b := range translated {
		moved = append(moved, caption.TranslationLine(b))
	}
	if len(moved) > 0 {
		c.history = c.history.Concat(moved, caption.Watermarks{})
	}
	session := c.session
	doc := c.encode(c.live)
	c.mu.Unlock()

	if len(moved) == 0 && !changed {
		return
	}

	docs := make([]models.LineDocument, 0, len(moved))
	for _, line := range moved {
		c.metrics.RecordSettled(line.State().String())
		docs = append(docs, caption.EncodeLine(line))
	}
	for _, line := range settled {
		c.translations.Submit(ctx, line)
	}

	c.publishSettled(ctx, session, docs)
	c.publishSnapshot(ctx, session, doc)
	c.subs.broadcast(doc)
}

// Start starts the recognizer. In recovery the local guards are bypassed and
// a new session begins; otherwise a start is rejected while another is in
// progress or the recognizer is running. The live transcript is flushed to
// history first, since a restarted recognizer reuses slot numbers.
func (c *Controller) Start(ctx context.Context) error {
	return c.start(ctx, c.lifecycle.Phase() == health.PhaseRecovery)
}

func (c *Controller) start(ctx context.Context, force bool) error {
	if err := c.lifecycle.BeginStart(force); err != nil {
		c.metrics.RecordStartRejected(rejectReason(err))
		c.log.Warn().Err(err).Str("state", c.lifecycle.State().String()).Msg("start rejected")
		return err
	}

	c.mu.RLock()
	want := c.settings
	c.mu.RUnlock()
	if recognizer.Apply(c.rec, want) {
		c.log.Info().Str("language", want.Language).Bool("continuous", want.Continuous).Msg("recognizer settings applied")
	}

	c.Process(ctx, true)

	err := c.rec.Start(ctx)
	c.metrics.RecordRecognizerCall("start", err)
	switch {
	case err == nil:
		c.lifecycle.StartDone(false, force)
	case recognizer.IsAlreadyStarted(err):
		c.log.Info().Msg("recognizer already started, assuming it is running")
		c.lifecycle.StartDone(true, force)
	default:
		c.lifecycle.StartFailed()
		c.log.Error().Err(err).Bool("forced", force).Msg("recognizer start failed")
		return fmt.Errorf("start recognizer: %w", err)
	}

	if force {
		c.newSession()
	}
	return nil
}

func (c *Controller) newSession() {
	c.mu.Lock()
	prev := c.session
	c.session = uuid.NewString()
	next := c.session
	c.mu.Unlock()

	logger := logging.WithSession(next)
	logger.Warn().
		Str("component", component).
		Str("previousSession", prev).
		Msg("recognizer recovered, new session")
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, health.ErrStartInProgress):
		return "in_progress"
	case errors.Is(err, health.ErrAlreadyRunning):
		return "running"
	default:
		return "other"
	}
}

// Pulse runs one scheduler step: the tick counter advances and the actions
// the lifecycle decides on are carried out.
func (c *Controller) Pulse(ctx context.Context) {
	actions := c.lifecycle.Pulse()
	st := c.lifecycle.Status()
	c.metrics.RecordPulse(st.Ticks, int(c.lifecycle.Phase()))

	for _, a := range actions {
		switch a {
		case health.ActionStart:
			_ = c.start(ctx, false)
		case health.ActionForceStart:
			_ = c.start(ctx, true)
		case health.ActionProcess:
			c.Process(ctx, false)
		case health.ActionStop, health.ActionAbort:
			c.halt(a, st.Ticks)
		}
	}
}

// halt requests a stop or abort. The request is recorded before the call, as
// the recognizer may answer with end before the call returns.
func (c *Controller) halt(a health.Action, ticks int) {
	c.lifecycle.Request(a)
	c.log.Warn().Str("action", a.String()).Int("ticks", ticks).Msg("recognizer unresponsive")

	var err error
	if a == health.ActionAbort {
		err = c.rec.Abort()
	} else {
		err = c.rec.Stop()
	}
	c.metrics.RecordRecognizerCall(a.String(), err)
	if err != nil {
		c.log.Error().Err(err).Str("action", a.String()).Msg("recognizer call failed")
	}
}

// Run pulses until ctx is done, waiting the lifecycle's adaptive delay
// between pulses.
func (c *Controller) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			c.Pulse(ctx)
			timer.Reset(c.lifecycle.Delay())
		}
	}
}

// Shutdown stops the recognizer, waits for outstanding translations and
// flushes everything into history.
func (c *Controller) Shutdown(ctx context.Context) error {
	var err error
	if c.lifecycle.Running() {
		c.lifecycle.Request(health.ActionStop)
		err = c.rec.Stop()
		c.metrics.RecordRecognizerCall(health.ActionStop.String(), err)
	}

	done := make(chan struct{})
	go func() {
		c.translations.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		c.log.Warn().Msg("shutdown before translations finished")
	}

	c.Process(ctx, true)
	c.subs.close()
	return err
}

// UpdateSettings replaces the recognizer settings. A running recognizer is
// stopped so the next pulse restarts it with the new settings.
func (c *Controller) UpdateSettings(s recognizer.Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	c.mu.Lock()
	changed := !c.settings.Equal(s)
	c.settings = s
	c.mu.Unlock()

	if !changed {
		return nil
	}
	c.log.Info().Str("language", s.Language).Int("maxAlternatives", s.MaxAlternatives).Msg("settings updated")

	if c.lifecycle.State() == health.StateRunning {
		c.halt(health.ActionStop, c.lifecycle.Status().Ticks)
	}
	return nil
}

// Settings returns the settings applied on the next start.
func (c *Controller) Settings() recognizer.Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SessionID returns the current caption session id.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Running reports whether the recognizer is believed to be running.
func (c *Controller) Running() bool {
	return c.lifecycle.Running()
}

// Transcript returns the live transcript.
func (c *Controller) Transcript() models.TranscriptDocument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encode(c.live)
}

// History returns every settled line.
func (c *Controller) History() models.TranscriptDocument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.encode(c.history)
}

// Status returns the lifecycle and transcript counters.
func (c *Controller) Status() Status {
	hs := c.lifecycle.Status()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		Status:    hs,
		SessionID: c.session,
		Queued:    len(c.queue),
		Live:      c.live.Len(),
		History:   c.history.Len(),
		Settings:  c.settings,
	}
}

// encode must be called with mu held.
func (c *Controller) encode(t caption.Transcript) models.TranscriptDocument {
	doc := caption.EncodeTranscript(t)
	doc.SessionID = c.session
	return doc
}

// publishSettled is a helper that logs publish failures.
func (c *Controller) publishSettled(ctx context.Context, session string, lines []models.LineDocument) {
	if c.publisher == nil || len(lines) == 0 {
		return
	}
	if err := c.publisher.PublishSettled(ctx, session, lines); err != nil {
		logger := logging.WithSession(session)
		logger.Error().
			Err(err).
			Str("component", component).
			Int("lines", len(lines)).
			Msg("Failed to publish settled lines")
	}
}

// publishSnapshot is a helper that logs publish failures.
func (c *Controller) publishSnapshot(ctx context.Context, session string, doc models.TranscriptDocument) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishSnapshot(ctx, session, doc); err != nil {
		logger := logging.WithSession(session)
		logger.Error().
			Err(err).
			Str("component", component).
			Msg("Failed to publish live snapshot")
	}
}
