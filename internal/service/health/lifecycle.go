package health

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the lifecycle state of the recognizer as seen locally.
type State int

const (
	// StateIdle - not running and no start in progress.
	StateIdle State = iota
	// StateStarting - start was requested and not yet confirmed.
	StateStarting
	// StateRunning - the recognizer confirmed it started.
	StateRunning
	// StateStopping - running, stop requested, waiting for end.
	StateStopping
	// StateAborting - running, abort requested, waiting for end.
	StateAborting
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateAborting:
		return "ABORTING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Active returns true if the recognizer is believed to be running.
func (s State) Active() bool {
	return s == StateRunning || s == StateStopping || s == StateAborting
}

// Errors for rejected starts.
var (
	ErrStartInProgress = errors.New("start already in progress")
	ErrAlreadyRunning  = errors.New("recognizer already running")
)

// Status is a read-only snapshot of the lifecycle.
type Status struct {
	State   string        `json:"state"`
	Started bool          `json:"started"`
	Running bool          `json:"running"`
	Audio   bool          `json:"audio"`
	Sound   bool          `json:"sound"`
	Speech  bool          `json:"speech"`
	Ticks   int           `json:"ticks"`
	Phase   string        `json:"phase"`
	Delay   time.Duration `json:"delayNs"`
}

// Lifecycle tracks one recognizer: the activity predicates, the tick counter
// and any outstanding stop or abort request. Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE ──BeginStart──→ STARTING ──start──→ RUNNING ──Request(stop|abort)──→ STOPPING|ABORTING
//	  ↑                     │                   │                                │
//	  └──── StartFailed ────┘                   └──────────── end ───────────────┴──→ IDLE
//
// Rules:
//   - BeginStart is rejected while STARTING or while running, unless forced
//   - a benign "already started" answer resyncs to RUNNING
//   - every recognizer event resets the tick counter
type Lifecycle struct {
	mu      sync.RWMutex
	preds   Predicates
	ticks   *Ticks
	pending State
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle(th Thresholds, timing Timing) *Lifecycle {
	return &Lifecycle{
		preds: NewPredicates(),
		ticks: NewTicks(th, timing),
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state()
}

func (l *Lifecycle) state() State {
	switch {
	case l.preds.Started.OK():
		return StateStarting
	case l.preds.Running.OK() && l.pending != StateIdle:
		return l.pending
	case l.preds.Running.OK():
		return StateRunning
	default:
		return StateIdle
	}
}

// Running returns true if the recognizer confirmed it is running.
func (l *Lifecycle) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.preds.Running.OK()
}

// Observe applies a recognizer event at at and returns the names of the
// predicates that changed.
func (l *Lifecycle) Observe(ev EventType, at time.Time) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := l.preds.Observe(ev)
	if ev == EventStart || ev == EventEnd {
		l.pending = StateIdle
	}
	if ev.Meaningful() {
		l.ticks.Reset(at)
	}
	return changed
}

// BeginStart moves to STARTING. Unless force is set it rejects a start while
// another is in progress or the recognizer is running.
func (l *Lifecycle) BeginStart(force bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !force {
		if l.preds.Started.OK() {
			return ErrStartInProgress
		}
		if l.preds.Running.OK() {
			return ErrAlreadyRunning
		}
	}
	l.preds.Observe(EventConfigure)
	return nil
}

// StartDone clears STARTING after the start call returned. If resync is set
// the recognizer said it was already running, which is assumed from now on.
// A forced start that succeeded rearms the tick counter.
func (l *Lifecycle) StartDone(resync, forced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.preds.Started.Assume(false)
	if resync {
		l.preds.Running.Assume(true)
	}
	if forced {
		l.pending = StateIdle
		l.ticks.Rearm()
	}
}

// StartFailed clears STARTING after the start call failed.
func (l *Lifecycle) StartFailed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.preds.Started.Assume(false)
}

// Request records an outstanding stop or abort. The request is cleared by
// the next start or end event.
func (l *Lifecycle) Request(a Action) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch a {
	case ActionStop:
		if l.pending != StateAborting {
			l.pending = StateStopping
		}
	case ActionAbort:
		l.pending = StateAborting
	}
}

// Pulse advances the tick counter and decides what the controller has to do.
func (l *Lifecycle) Pulse() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	phase, crossed := l.ticks.Tick()
	return Decide(l.state(), phase, crossed)
}

// Phase returns the current escalation phase.
func (l *Lifecycle) Phase() Phase {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ticks.Phase()
}

// Delay returns the time until the next pulse.
func (l *Lifecycle) Delay() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ticks.Delay()
}

// Status returns a snapshot of the lifecycle.
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Status{
		State:   l.state().String(),
		Started: l.preds.Started.OK(),
		Running: l.preds.Running.OK(),
		Audio:   l.preds.Audio.OK(),
		Sound:   l.preds.Sound.OK(),
		Speech:  l.preds.Speech.OK(),
		Ticks:   l.ticks.Count(),
		Phase:   l.ticks.Phase().String(),
		Delay:   l.ticks.Delay(),
	}
}
