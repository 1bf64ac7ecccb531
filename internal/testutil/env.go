package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/config"
	"github.com/thruflo/gantry/internal/state"
)

// SetupTestDir creates a temporary directory with a .gantry/config.yaml
// holding the defaults. Returns the directory and a Store over it.
func SetupTestDir(t *testing.T) (string, *state.Store) {
	t.Helper()
	return SetupTestDirWithConfig(t, nil)
}

// SetupTestDirWithConfig is SetupTestDir with fn applied to the default
// config before it is written.
func SetupTestDirWithConfig(t *testing.T, fn func(*config.Config)) (string, *state.Store) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, config.Dir, "sessions"), 0o755))

	cfg := config.DefaultConfig()
	if fn != nil {
		fn(&cfg)
	}
	require.NoError(t, config.ValidateConfig(&cfg))
	require.NoError(t, config.SaveConfig(dir, &cfg))

	return dir, state.NewStore(dir)
}

// ImportSamplePlan creates a session for SamplePlan in store, the way
// `gantry plan` does.
func ImportSamplePlan(t *testing.T, store *state.Store) *state.Plan {
	t.Helper()

	plan := SamplePlan()
	require.NoError(t, store.CreateSession(&state.Session{Module: plan.ID, PlanSource: "plan.yaml"}))
	require.NoError(t, store.SavePlan(plan.ID, plan))
	return plan
}

// MustMarshalJSON marshals a value to JSON, failing the test on error.
func MustMarshalJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// MustUnmarshalJSON unmarshals JSON data into v, failing the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v))
}

// WriteTestFile writes content to a file in the test directory.
// Creates parent directories as needed.
func WriteTestFile(t *testing.T, basePath, relativePath string, content []byte) {
	t.Helper()
	fullPath := filepath.Join(basePath, relativePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0o755))
	require.NoError(t, os.WriteFile(fullPath, content, 0o644))
}
