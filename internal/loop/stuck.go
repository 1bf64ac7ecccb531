package loop

import (
	"slices"

	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/state"
	"github.com/thruflo/gantry/internal/work"
)

// DetectStuck checks if the loop is stuck by analyzing history.
// A loop is considered stuck if the completed count hasn't increased
// for the last N iterations where N is the threshold.
func DetectStuck(history []state.History, threshold int) bool {
	if threshold <= 0 || len(history) < threshold {
		return false
	}

	recent := history[len(history)-threshold:]

	first := recent[0].Completed
	for _, entry := range recent[1:] {
		if entry.Completed != first {
			return false
		}
	}

	return true
}

// CalculateProgress returns the number of complete nodes and the total
// number of nodes in the tree, the module included.
func CalculateProgress(m *work.Module) (completed, total int) {
	tally := work.Count(m.Descendants())
	completed, total = tally.Complete, tally.Total()+1
	if m.State() == work.StateComplete {
		completed++
	}
	return completed, total
}

// ProgressRate calculates the completion rate over recent history.
// Returns nodes completed per iteration (averaged over the window).
func ProgressRate(history []state.History, window int) float64 {
	if len(history) < 2 {
		return 0
	}

	if window > len(history) {
		window = len(history)
	}

	recent := history[len(history)-window:]
	if len(recent) < 2 {
		return 0
	}

	iterations := len(recent) - 1
	return float64(recent[len(recent)-1].Completed-recent[0].Completed) / float64(iterations)
}

// Attempts counts the trailing iterations spent on task. The count stops at
// an iteration on another task, and includes but stops at one where a human
// overrode churn detection.
func Attempts(history []state.History, task string) int {
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Task != task {
			break
		}
		n++
		if slices.Contains(h.Overridden, guardrail.NameChurnDetection) {
			break
		}
	}
	return n
}

// Focus returns the first task in document order that is not itself
// complete, or nil when every task is.
func Focus(m *work.Module) *work.Task {
	for _, t := range m.Tasks() {
		if t.State() != work.StateComplete {
			return t
		}
	}
	return nil
}
