package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/testutil"
	"github.com/thruflo/gantry/internal/verify"
)

func TestCheckCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		history bool
		args    []string
		want    []string
	}{
		{
			name: "focus task",
			args: []string{"check"},
			want: []string{"Checking task invoices (0 prior attempts)", guardrail.NameResourceLimit, guardrail.NameChurnDetection, "Outcome: pass"},
		},
		{
			name: "attempts near the churn limit warn",
			args: []string{"check", "--iterations", "2"},
			want: []string{"(2 prior attempts)", "Change approach", "Outcome: warn"},
		},
		{
			name:    "attempts from history",
			history: true,
			args:    []string{"check", testutil.SampleModule},
			want:    []string{"Checking task invoices (3 prior attempts)", "needs human review", "Outcome: block"},
		},
		{
			name:    "explicit task ignores another task's history",
			history: true,
			args:    []string{"check", "--task", "reminders"},
			want:    []string{"Checking task reminders (0 prior attempts)", "Outcome: pass"},
		},
		{
			name: "unverified boundary",
			args: []string{"check", "--boundary", "component:api"},
			want: []string{"Checking closing component:api", guardrail.NameQualityGate, "Cannot mark component", "Outcome: block"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir, store := setupImported(t, nil)
			if tt.history {
				require.NoError(t, store.SaveHistory(testutil.SampleModule, testutil.SampleHistoryStuck()))
			}

			out, err := execute(t, dir, "", tt.args...)
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestCheckCommand_VerifiedBoundaryPasses(t *testing.T) {
	t.Parallel()

	dir, _ := setupImported(t, nil)
	_, err := execute(t, dir, "", "verify", "component", "api", "--pass")
	require.NoError(t, err)

	out, err := execute(t, dir, "", "check", "--boundary", "component:api")
	require.NoError(t, err)
	assert.Contains(t, out, "Outcome: pass")
}

func TestCheckCommand_DoesNotSave(t *testing.T) {
	t.Parallel()

	dir, store := setupImported(t, nil)
	_, err := execute(t, dir, "", "check")
	require.NoError(t, err)

	history, err := store.LoadHistory(testutil.SampleModule)
	require.NoError(t, err)
	assert.Empty(t, history)
	_, ok := recorded(t, dir, verify.ScopeTask, "invoices")
	assert.False(t, ok)
}

func TestCheckCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"malformed boundary", []string{"check", "--boundary", "api"}, "want scope:id"},
		{"unknown boundary scope", []string{"check", "--boundary", "epic:api"}, "unknown verification scope"},
		{"unknown boundary node", []string{"check", "--boundary", "component:nope"}, "nope"},
		{"unknown task", []string{"check", "--task", "nope"}, "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir, _ := setupImported(t, nil)

			_, err := execute(t, dir, "", tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
