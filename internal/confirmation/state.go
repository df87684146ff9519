// Package confirmation drives the human review of unresolved receipt items.
// A pure state machine decides which actions are legal; the Workflow wraps
// it with a queue of pending items and applies decisions through storage.
package confirmation

import (
	"fmt"

	"github.com/Veraticus/pantry/internal/common"
)

// State is a step of the review cycle.
type State int

// Review states. Associated, Created and Skipped are terminal sub-states that
// settle back to Idle.
const (
	StateIdle State = iota
	StatePresenting
	StateAssociated
	StateCreated
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePresenting:
		return "presenting"
	case StateAssociated:
		return "associated"
	case StateCreated:
		return "created"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is a decision that settles to Idle.
func (s State) Terminal() bool {
	return s == StateAssociated || s == StateCreated || s == StateSkipped
}

// Event is a human or system action on the review cycle.
type Event int

// Review events.
const (
	EventPresent Event = iota
	EventAssociate
	EventCreate
	EventSkip
	EventSettle
)

func (e Event) String() string {
	switch e {
	case EventPresent:
		return "present"
	case EventAssociate:
		return "associate"
	case EventCreate:
		return "create"
	case EventSkip:
		return "skip"
	case EventSettle:
		return "settle"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// transition returns the state reached by applying e in s.
func transition(s State, e Event) (State, error) {
	switch {
	case s == StateIdle && e == EventPresent:
		return StatePresenting, nil
	case s == StatePresenting && e == EventAssociate:
		return StateAssociated, nil
	case s == StatePresenting && e == EventCreate:
		return StateCreated, nil
	case s == StatePresenting && e == EventSkip:
		return StateSkipped, nil
	case s.Terminal() && e == EventSettle:
		return StateIdle, nil
	}
	return s, fmt.Errorf("%w: cannot %s while %s", common.ErrInvalidTransition, e, s)
}
