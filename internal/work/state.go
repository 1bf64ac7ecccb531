package work

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a single node.
type State int

const (
	StatePending State = iota
	StateInProgress
	StateComplete
	StateFailed
)

// AllStates lists every state in declaration order.
func AllStates() []State {
	return []State{StatePending, StateInProgress, StateComplete, StateFailed}
}

// String returns the persisted name of the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ParseState converts a persisted state name back to a State.
func ParseState(s string) (State, error) {
	for _, st := range AllStates() {
		if st.String() == s {
			return st, nil
		}
	}
	return StatePending, fmt.Errorf("unknown state %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// legalTransitions is the complete transition table. Complete is terminal;
// Failed can be retried.
var legalTransitions = map[State][]State{
	StatePending:    {StateInProgress},
	StateInProgress: {StateComplete, StateFailed},
	StateFailed:     {StateInProgress},
}

// CanTransition reports whether from → to is a legal transition.
func CanTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is wrapped by every TransitionError.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrNotFound is returned when a lookup by ID finds no node.
var ErrNotFound = errors.New("node not found")

// TransitionError describes a rejected transition.
type TransitionError struct {
	Kind Kind
	ID   string
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %q: invalid state transition from %s to %s", e.Kind, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
