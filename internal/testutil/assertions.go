package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/state"
	"github.com/thruflo/gantry/internal/work"
)

// AssertTaskState asserts the own state of the task with the given id.
func AssertTaskState(t *testing.T, m *work.Module, task string, want work.State) {
	t.Helper()
	found, err := m.FindTask("", task)
	require.NoError(t, err)
	assert.Equal(t, want, found.State(), "task %s state mismatch", task)
}

// AssertAggregateState asserts the state derived from n's subtree.
func AssertAggregateState(t *testing.T, n *work.Node, want work.State) {
	t.Helper()
	require.NotNil(t, n, "node is nil")
	assert.Equal(t, want, n.ComputeAggregateState(), "%s aggregate state mismatch", n.ID())
}

// AssertTally asserts how many nodes of m, m included, are complete.
func AssertTally(t *testing.T, m *work.Module, complete, total int) {
	t.Helper()
	tally := work.Count(m.Descendants())
	if m.State() == work.StateComplete {
		tally.Complete++
	} else {
		tally.Pending++
	}
	assert.Equal(t, total, tally.Total(), "total nodes mismatch")
	assert.Equal(t, complete, tally.Complete, "complete nodes mismatch")
}

// AssertHistoryLength asserts the history has the expected length.
func AssertHistoryLength(t *testing.T, history []state.History, expected int) {
	t.Helper()
	assert.Len(t, history, expected, "history length mismatch")
}

// AssertHistoryProgress asserts the completed count of the last entry.
func AssertHistoryProgress(t *testing.T, history []state.History, expectedCompleted int) {
	t.Helper()
	require.NotEmpty(t, history, "history is empty")
	last := history[len(history)-1]
	assert.Equal(t, expectedCompleted, last.Completed,
		"completed nodes in last history entry mismatch")
}
