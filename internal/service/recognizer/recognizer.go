// Package recognizer defines the interface for upstream speech recognizers
// (Google, browser-style mocks, etc.) and the events they fire.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"live-caption-service/internal/service/health"
)

// Errors reported by recognizers and event validation.
var (
	// ErrAlreadyStarted is returned by Start when the recognizer is already
	// active. Callers treat it as a state resync, not a failure.
	ErrAlreadyStarted   = errors.New("recognizer already started")
	ErrMissingResults   = errors.New("result event without results")
	ErrMissingTimestamp = errors.New("event without timestamp")
	ErrNotStarted       = errors.New("recognizer not started")
)

// IsAlreadyStarted reports whether err belongs to the "already active" class.
func IsAlreadyStarted(err error) bool {
	return errors.Is(err, ErrAlreadyStarted)
}

// Settings are the recognizer parameters pushed from the settings store.
type Settings struct {
	Language        string `toml:"language" json:"language" validate:"required,bcp47_language_tag"`
	Continuous      bool   `toml:"continuous" json:"continuous"`
	InterimResults  bool   `toml:"interim_results" json:"interimResults"`
	MaxAlternatives int    `toml:"max_alternatives" json:"maxAlternatives" validate:"min=1,max=30"`
}

// DefaultSettings returns continuous US English recognition with interim results.
func DefaultSettings() Settings {
	return Settings{
		Language:        "en-US",
		Continuous:      true,
		InterimResults:  true,
		MaxAlternatives: 3,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the settings against their tags.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid recognizer settings: %w", err)
	}
	return nil
}

// Equal reports whether both settings would configure a recognizer the same way.
func (s Settings) Equal(other Settings) bool {
	return s == other
}

// Alternative is one candidate transcription of a result.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is one result slot of a result event.
type Result struct {
	Final        bool
	Alternatives []Alternative
}

// Event is one event fired by a recognizer.
//
// For result events, Results holds the slots from ResultIndex onwards:
// Results[0] is slot ResultIndex. Slots below ResultIndex are settled.
type Event struct {
	Type        health.EventType
	Timestamp   time.Time
	ResultIndex int
	Results     []Result
	ErrorCode   string
	Message     string
}

// ResultLength is one past the highest live slot.
func (e Event) ResultLength() int {
	return e.ResultIndex + len(e.Results)
}

// Validate rejects malformed events.
func (e Event) Validate() error {
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if e.Type == health.EventResult && e.Results == nil {
		return ErrMissingResults
	}
	return nil
}

// Listener receives recognizer events.
type Listener interface {
	OnEvent(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

// OnEvent calls f.
func (f ListenerFunc) OnEvent(ev Event) {
	f(ev)
}

// Recognizer is the control surface of an upstream speech recognizer.
// Stop and Abort are requests: the recognizer confirms them with an end event.
type Recognizer interface {
	// Start begins recognition. It returns ErrAlreadyStarted if active.
	Start(ctx context.Context) error

	// Stop asks the recognizer to finish and deliver pending results.
	Stop() error

	// Abort asks the recognizer to end immediately, dropping pending results.
	Abort() error

	// Settings returns the parameters currently applied.
	Settings() Settings

	// Configure replaces the parameters used by the next Start.
	Configure(s Settings)

	// Listen registers the listener for all events.
	Listen(l Listener)
}

// Apply pushes want onto r only when it differs from what r has. It reports
// whether anything changed.
func Apply(r Recognizer, want Settings) bool {
	if r.Settings().Equal(want) {
		return false
	}
	r.Configure(want)
	return true
}
