package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/config"
	"github.com/thruflo/gantry/internal/work"
)

func TestSamplePlan(t *testing.T) {
	t.Parallel()

	plan := SamplePlan()
	assert.Equal(t, SampleModule, plan.ID)

	m, err := plan.Build()
	require.NoError(t, err)
	assert.Len(t, m.Components(), 2)
	assert.Len(t, m.Tasks(), 3)
	AssertTaskState(t, m, "invoices", work.StatePending)
	AssertTally(t, m, 0, 8)

	// Each call returns a fresh plan.
	plan.Components[0].Tasks[0].Name = "changed"
	assert.Equal(t, "Invoices endpoint", SamplePlan().Components[0].Tasks[0].Name)
}

func TestSampleHistory(t *testing.T) {
	t.Parallel()

	AssertHistoryLength(t, SampleHistory(), 3)
	AssertHistoryProgress(t, SampleHistory(), 3)
	AssertHistoryProgress(t, SampleHistoryStuck(), 0)
}

func TestSetupTestDir(t *testing.T) {
	t.Parallel()

	dir, store := SetupTestDir(t)
	require.NotNil(t, store)
	assert.Equal(t, dir, store.BasePath())
	assert.DirExists(t, filepath.Join(dir, config.Dir, "sessions"))

	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultLimits(), cfg.Limits)
}

func TestSetupTestDirWithConfig(t *testing.T) {
	t.Parallel()

	dir, _ := SetupTestDirWithConfig(t, func(c *config.Config) {
		c.Agent.Command = "echo '{}'"
		c.Limits.MaxIterations = 7
	})

	cfg, err := config.LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "echo '{}'", cfg.Agent.Command)
	assert.Equal(t, 7, cfg.Limits.MaxIterations)
}

func TestImportSamplePlan(t *testing.T) {
	t.Parallel()

	_, store := SetupTestDir(t)
	ImportSamplePlan(t, store)

	assert.True(t, store.SessionExists(SampleModule))
	loaded, err := store.LoadPlan(SampleModule)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, SamplePlan().Components[1].ID, loaded.Components[1].ID)
}

func TestMustMarshalJSON(t *testing.T) {
	t.Parallel()

	data := MustMarshalJSON(t, map[string]int{"a": 1})
	var got map[string]int
	MustUnmarshalJSON(t, data, &got)
	assert.Equal(t, 1, got["a"])
}

func TestWriteTestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	WriteTestFile(t, dir, "nested/dir/file.txt", []byte("content"))

	data, err := os.ReadFile(filepath.Join(dir, "nested", "dir", "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestAssertAggregateState(t *testing.T) {
	t.Parallel()

	m, err := SamplePlan().Build()
	require.NoError(t, err)
	AssertAggregateState(t, m.Node, work.StatePending)
}
