package health

import (
	"fmt"
)

// Action is a side effect the controller performs on a pulse.
type Action int

const (
	// ActionStart - start the recognizer, subject to the start guards.
	ActionStart Action = iota
	// ActionForceStart - start the recognizer bypassing the start guards.
	ActionForceStart
	// ActionProcess - reconcile queued updates.
	ActionProcess
	// ActionAbort - abort the recognizer.
	ActionAbort
	// ActionStop - stop the recognizer.
	ActionStop
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionForceStart:
		return "force-start"
	case ActionProcess:
		return "process"
	case ActionAbort:
		return "abort"
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("unknown(%d)", int(a))
	}
}

// Decide computes the actions for one pulse from the lifecycle state and the
// phase the tick counter is in. crossed is true on the tick that entered
// phase; stop and abort are only issued then.
//
// In recovery the start is forced on every pulse until one succeeds. A
// recognizer that is not running is started, one that is running has its
// updates processed and, on entering zombie or panic, gets a stop or abort.
func Decide(s State, phase Phase, crossed bool) []Action {
	if phase == PhaseRecovery {
		return []Action{ActionForceStart}
	}
	if !s.Active() {
		return []Action{ActionStart}
	}

	actions := []Action{ActionProcess}
	if crossed {
		switch phase {
		case PhasePanic:
			actions = append(actions, ActionAbort)
		case PhaseZombie:
			actions = append(actions, ActionStop)
		}
	}
	return actions
}
