package health

import (
	"errors"
	"fmt"
	"time"

	"live-caption-service/internal/streaming"
)

// Phase is the escalation level derived from the tick counter.
type Phase int

const (
	// PhaseHealthy - events are arriving.
	PhaseHealthy Phase = iota
	// PhaseZombie - quiet for a while; the recognizer gets a stop.
	PhaseZombie
	// PhasePanic - stop did not help; the recognizer gets an abort.
	PhasePanic
	// PhaseRecovery - local state is assumed diverged; start is forced.
	PhaseRecovery
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseHealthy:
		return "healthy"
	case PhaseZombie:
		return "zombie"
	case PhasePanic:
		return "panic"
	case PhaseRecovery:
		return "recovery"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// ErrInvalidThresholds is returned when thresholds are not strictly increasing.
var ErrInvalidThresholds = errors.New("health thresholds must satisfy 0 < zombie < panic < recovery")

// Thresholds are tick counts where escalation begins.
type Thresholds struct {
	ZombieAfter int `json:"zombieAfter"`
	PanicAfter  int `json:"panicAfter"`
	RecoveryAt  int `json:"recoveryAt"`
}

// DefaultThresholds returns the standard escalation ladder.
func DefaultThresholds() Thresholds {
	return Thresholds{ZombieAfter: 50, PanicAfter: 75, RecoveryAt: 80}
}

// Validate checks the ordering of the thresholds.
func (th Thresholds) Validate() error {
	if th.ZombieAfter <= 0 || th.PanicAfter <= th.ZombieAfter || th.RecoveryAt <= th.PanicAfter {
		return fmt.Errorf("%w: got %d/%d/%d", ErrInvalidThresholds, th.ZombieAfter, th.PanicAfter, th.RecoveryAt)
	}
	return nil
}

// Phase classifies a tick count: zombie above ZombieAfter, panic above
// PanicAfter, recovery from RecoveryAt on.
func (th Thresholds) Phase(ticks int) Phase {
	switch {
	case ticks >= th.RecoveryAt:
		return PhaseRecovery
	case ticks > th.PanicAfter:
		return PhasePanic
	case ticks > th.ZombieAfter:
		return PhaseZombie
	default:
		return PhaseHealthy
	}
}

// Timing bounds the adaptive pulse delay.
type Timing struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Window   int
}

// DefaultTiming returns the standard delay band.
func DefaultTiming() Timing {
	return Timing{MinDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second, Window: 20}
}

// Ticks counts pulses since the last meaningful event and derives the next
// pulse delay from recent event spacing. It is not safe for concurrent use;
// Lifecycle guards it.
type Ticks struct {
	th     Thresholds
	timing Timing
	n      int
	phase  Phase
	last   time.Time
	dev    *streaming.Deviation
}

// NewTicks returns a counter at zero.
func NewTicks(th Thresholds, timing Timing) *Ticks {
	if timing.MaxDelay < timing.MinDelay {
		timing.MaxDelay = timing.MinDelay
	}
	return &Ticks{
		th:     th,
		timing: timing,
		dev:    streaming.NewDeviation(timing.Window),
	}
}

// Reset records an event at at: the time since the previous event becomes a
// timing sample and the counter returns to zero.
func (t *Ticks) Reset(at time.Time) {
	if !t.last.IsZero() && at.After(t.last) {
		t.dev.Sample(float64(at.Sub(t.last).Milliseconds()))
	}
	if at.After(t.last) {
		t.last = at
	}
	t.Rearm()
}

// Rearm zeroes the counter without taking a timing sample.
func (t *Ticks) Rearm() {
	t.n = 0
	t.phase = PhaseHealthy
}

// Tick advances the counter. It returns the phase and whether this tick
// entered it, so escalation can fire once per threshold crossing.
func (t *Ticks) Tick() (Phase, bool) {
	t.n++
	phase := t.th.Phase(t.n)
	crossed := phase != t.phase
	t.phase = phase
	return phase, crossed
}

// Count returns the ticks since the last reset.
func (t *Ticks) Count() int {
	return t.n
}

// Phase returns the current phase.
func (t *Ticks) Phase() Phase {
	return t.phase
}

// Delay is the time until the next pulse: mean plus one standard deviation
// of recent event spacing, clamped to the band and stretched the longer the
// recognizer stays quiet.
func (t *Ticks) Delay() time.Duration {
	base := t.timing.MinDelay
	if t.dev.Samples() > 0 {
		ms := t.dev.Mean() + t.dev.StdDev()
		base = clamp(time.Duration(ms*float64(time.Millisecond)), t.timing.MinDelay, t.timing.MaxDelay)
	}
	scale := 1.0
	if t.th.ZombieAfter > 0 {
		scale += float64(t.n) / float64(t.th.ZombieAfter)
	}
	return clamp(time.Duration(float64(base)*scale), t.timing.MinDelay, t.timing.MaxDelay)
}

func clamp(d, lo, hi time.Duration) time.Duration {
	return max(lo, min(d, hi))
}
