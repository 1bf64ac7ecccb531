package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/state"
	"github.com/thruflo/gantry/internal/testutil"
)

func TestPlanCommand(t *testing.T) {
	t.Parallel()

	dir, store := testutil.SetupTestDir(t)
	testutil.WriteTestFile(t, dir, "plans/billing.yaml", []byte(testutil.SamplePlanYAML))

	out, err := execute(t, dir, "", "plan", "plans/billing.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported billing")
	assert.Contains(t, out, "invoices")
	assert.Contains(t, out, "reminders")

	info, err := store.GetSession(testutil.SampleModule)
	require.NoError(t, err)
	assert.Equal(t, "plans/billing.yaml", info.PlanSource)
	assert.Equal(t, state.SessionStatusIdle, info.Status)

	m := loadTree(t, store)
	testutil.AssertTally(t, m, 0, 8)
}

func TestPlanCommand_ExistingSession(t *testing.T) {
	t.Parallel()

	dir, store := setupImported(t, nil)
	testutil.WriteTestFile(t, dir, "plan.yaml", []byte(testutil.SamplePlanYAML))

	_, err := execute(t, dir, "", "plan", "plan.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, dir, "", "plan", "--force", "plan.yaml")
	require.NoError(t, err)
	assert.True(t, store.SessionExists(testutil.SampleModule))
}

func TestPlanCommand_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		file    string
		wantErr string
	}{
		{"missing file", "", "nope.yaml", "failed to read plan file"},
		{"not yaml", "id: [", "bad.yaml", "failed to parse plan"},
		{"no module id", "name: Nameless\n", "noid.yaml", "module id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir, _ := testutil.SetupTestDir(t)
			if tt.content != "" {
				testutil.WriteTestFile(t, dir, tt.file, []byte(tt.content))
			}

			_, err := execute(t, dir, "", "plan", tt.file)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
