package verify

import "fmt"

// Decision is the outcome of a completion check.
type Decision struct {
	Allowed         bool
	RejectionReason string
}

// Gate is the single enforcement point consulted before a node is marked
// complete.
type Gate struct {
	tracker *Tracker
}

// NewGate creates a gate backed by tracker.
func NewGate(tracker *Tracker) *Gate {
	return &Gate{tracker: tracker}
}

// ValidateCompletion allows completion only when a passing verdict is on
// record for (scope, id).
func (g *Gate) ValidateCompletion(scope Scope, id string) Decision {
	passed, ok := g.tracker.Lookup(scope, id)
	switch {
	case !ok:
		return Decision{
			RejectionReason: fmt.Sprintf("Cannot mark %s %q complete: no verification on record. Run verification against its acceptance criteria first.", scope, id),
		}
	case !passed:
		return Decision{
			RejectionReason: fmt.Sprintf("Cannot mark %s %q complete: the last verification failed. Address the reported gaps and verify again.", scope, id),
		}
	default:
		return Decision{Allowed: true}
	}
}
