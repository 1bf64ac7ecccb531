package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/config"
	"github.com/thruflo/gantry/internal/state"
	"github.com/thruflo/gantry/internal/testutil"
	"github.com/thruflo/gantry/internal/work"
)

// diligentAgent verifies the task in focus along with every parent, ticks
// off its open subtasks, then marks the task complete.
const diligentAgent = `calls=""
for s in $GANTRY_SUBTASKS; do
  sub="{\"scope\":\"task\",\"id\":\"$GANTRY_TASK\",\"subtask\":\"$s\"}"
  calls="$calls{\"tool\":\"start\",\"input\":$sub},{\"tool\":\"mark_complete\",\"input\":$sub},"
done
printf '{"summary":"worked on %s","verifications":[{"scope":"task","id":"%s"},{"scope":"component","id":"api"},{"scope":"component","id":"worker"},{"scope":"module","id":"billing"}],"calls":[%s{"tool":"mark_complete","input":{"scope":"task","id":"%s"}}]}\n' "$GANTRY_TASK" "$GANTRY_TASK" "$calls" "$GANTRY_TASK"`

// spendingAgent burns a premium request per iteration and completes nothing.
const spendingAgent = `echo '{"summary":"spent","usage":{"requests":1,"premium_requests":1}}'`

func decodeHeadless(t *testing.T, out string) HeadlessResult {
	t.Helper()
	var hr HeadlessResult
	require.NoError(t, json.Unmarshal([]byte(out), &hr), out)
	return hr
}

func TestRunCommand_HeadlessCompletes(t *testing.T) {
	t.Parallel()

	dir, store := setupImported(t, func(c *config.Config) {
		c.Agent.Command = diligentAgent
		c.Verification.Command = "true"
	})

	out, err := execute(t, dir, "", "run", "--headless", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)

	hr := decodeHeadless(t, out)
	assert.Equal(t, testutil.SampleModule, hr.Module)
	assert.Equal(t, "completed", hr.Reason)
	assert.Equal(t, 3, hr.Iterations)
	assert.Equal(t, 8, hr.Total)
	assert.Empty(t, hr.Error)

	m := loadTree(t, store)
	assert.Equal(t, work.StateComplete, m.State())
	testutil.AssertTally(t, m, 8, 8)
	testutil.AssertAggregateState(t, m.Node, work.StateComplete)
	for _, task := range []string{"invoices", "refunds", "reminders"} {
		testutil.AssertTaskState(t, m, task, work.StateComplete)
	}

	info, err := store.GetSession(testutil.SampleModule)
	require.NoError(t, err)
	assert.Equal(t, state.SessionStatusCompleted, info.Status)
	assert.Equal(t, 3, info.Iterations)

	history, err := store.LoadHistory(testutil.SampleModule)
	require.NoError(t, err)
	testutil.AssertHistoryLength(t, history, 3)
	assert.Equal(t, "worked on reminders", history[2].Summary)
}

func TestRunCommand_BlockDeclinedWithoutTerminal(t *testing.T) {
	t.Parallel()

	dir, store := setupImported(t, func(c *config.Config) {
		c.Agent.Command = spendingAgent
		c.Guardrails.Resource.PremiumRequestBudget = 1
	})

	out, err := execute(t, dir, "y\n", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "resource-limit")
	assert.Contains(t, out, "not a terminal; stopping at the block")
	assert.Contains(t, out, "blocked after 2 iteration(s)")

	info, err := store.GetSession(testutil.SampleModule)
	require.NoError(t, err)
	assert.Equal(t, state.SessionStatusBlocked, info.Status)
	assert.Equal(t, "blocked", info.ExitReason)
	assert.EqualValues(t, 1, info.Usage.PremiumRequests)
}

func TestRunCommand_HeadlessBlocked(t *testing.T) {
	t.Parallel()

	dir, _ := setupImported(t, func(c *config.Config) {
		c.Agent.Command = spendingAgent
		c.Guardrails.Resource.PremiumRequestBudget = 1
	})

	out, err := execute(t, dir, "", "run", "--headless")
	require.NoError(t, err)

	hr := decodeHeadless(t, out)
	assert.Equal(t, "blocked", hr.Reason)
	assert.Equal(t, 2, hr.Iterations)
	assert.Contains(t, hr.Message, "resource-limit")
	assert.Equal(t, 0, hr.Completed)
}

func TestRunCommand_ResumesUsage(t *testing.T) {
	t.Parallel()

	dir, store := setupImported(t, func(c *config.Config) {
		c.Agent.Command = spendingAgent
		c.Guardrails.Resource.PremiumRequestBudget = 1
	})

	_, err := execute(t, dir, "", "run", "--headless")
	require.NoError(t, err)

	// The spent budget is restored, so the next run blocks straight away.
	out, err := execute(t, dir, "", "run", "--headless")
	require.NoError(t, err)
	hr := decodeHeadless(t, out)
	assert.Equal(t, "blocked", hr.Reason)
	assert.Equal(t, 2, hr.Iterations, "numbering continues after the one recorded iteration")

	// Blocked iterations never reach the agent, so they leave no history.
	history, err := store.LoadHistory(testutil.SampleModule)
	require.NoError(t, err)
	testutil.AssertHistoryLength(t, history, 1)
}

func TestRunCommand_Crash(t *testing.T) {
	t.Parallel()

	dir, store := setupImported(t, func(c *config.Config) {
		c.Agent.Command = "echo boom >&2; exit 3"
	})

	out, err := execute(t, dir, "", "run", "--headless")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop crashed")
	assert.Contains(t, err.Error(), "boom")

	hr := decodeHeadless(t, out)
	assert.Equal(t, "crash", hr.Reason)
	assert.Contains(t, hr.Error, "boom")

	info, err := store.GetSession(testutil.SampleModule)
	require.NoError(t, err)
	assert.Equal(t, state.SessionStatusStopped, info.Status)
}

func TestRunCommand_NoAgent(t *testing.T) {
	t.Parallel()

	dir, _ := setupImported(t, nil)
	_, err := execute(t, dir, "", "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no agent configured")
}
