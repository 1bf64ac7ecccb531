package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/guardrail"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, Dir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return tmpDir
}

func TestLoadConfig_Default(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig(), *cfg)
	assert.Equal(t, DefaultMaxIterations, cfg.Limits.MaxIterations)
	assert.True(t, cfg.Guardrails.Quality.Enabled)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Parallel()

	tmpDir := writeConfig(t, `limits:
  max_iterations: 100
  no_progress_threshold: 8
guardrails:
  resource:
    premium_request_budget: 300
    warn_fraction: 0.7
    block_fraction: 0.95
  churn:
    threshold: 4
  tools:
    max_file_reads: 6
    max_command_retries: 2
    tool_call_threshold: 80
  quality:
    enabled: false
verification:
  command: make verify
agent:
  command: ./run-agent.sh
logging:
  level: debug
  format: json
metrics:
  addr: 127.0.0.1:9464
`)

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Limits.MaxIterations)
	assert.Equal(t, 8, cfg.Limits.NoProgressThreshold)
	assert.Equal(t, 300, cfg.Guardrails.Resource.PremiumRequestBudget)
	assert.Equal(t, 0.7, cfg.Guardrails.Resource.WarnFraction)
	assert.Equal(t, 0.95, cfg.Guardrails.Resource.BlockFraction)
	assert.Equal(t, 4, cfg.Guardrails.Churn.Threshold)
	assert.Equal(t, ToolsGuardrail{MaxFileReads: 6, MaxCommandRetries: 2, ToolCallThreshold: 80}, cfg.Guardrails.Tools)
	assert.False(t, cfg.Guardrails.Quality.Enabled)
	assert.Equal(t, "make verify", cfg.Verification.Command)
	assert.Equal(t, "./run-agent.sh", cfg.Agent.Command)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "127.0.0.1:9464", cfg.Metrics.Addr)
}

func TestLoadConfig_PartialFile(t *testing.T) {
	t.Parallel()

	tmpDir := writeConfig(t, `guardrails:
  churn:
    threshold: 7
`)

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Guardrails.Churn.Threshold)
	assert.Equal(t, DefaultMaxIterations, cfg.Limits.MaxIterations)
	assert.Equal(t, DefaultPremiumRequestBudget, cfg.Guardrails.Resource.PremiumRequestBudget)
	assert.Equal(t, guardrail.DefaultWarnFraction, cfg.Guardrails.Resource.WarnFraction)
	assert.True(t, cfg.Guardrails.Quality.Enabled)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(writeConfig(t, `limits: [`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"zero max_iterations", "limits:\n  max_iterations: 0\n", "limits.max_iterations"},
		{"negative no_progress_threshold", "limits:\n  no_progress_threshold: -1\n", "limits.no_progress_threshold"},
		{"zero budget", "guardrails:\n  resource:\n    premium_request_budget: 0\n", "guardrails.resource.premium_request_budget"},
		{"warn above one", "guardrails:\n  resource:\n    warn_fraction: 1.5\n    block_fraction: 2\n", "guardrails.resource.warn_fraction"},
		{"block not above warn", "guardrails:\n  resource:\n    warn_fraction: 0.9\n    block_fraction: 0.9\n", "guardrails.resource.block_fraction"},
		{"zero churn threshold", "guardrails:\n  churn:\n    threshold: 0\n", "guardrails.churn.threshold"},
		{"zero file reads", "guardrails:\n  tools:\n    max_file_reads: 0\n", "guardrails.tools.max_file_reads"},
		{"zero retries", "guardrails:\n  tools:\n    max_command_retries: 0\n", "guardrails.tools.max_command_retries"},
		{"zero tool calls", "guardrails:\n  tools:\n    tool_call_threshold: 0\n", "guardrails.tools.tool_call_threshold"},
		{"bad log level", "logging:\n  level: chatty\n", "logging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GANTRY_LIMITS__MAX_ITERATIONS", "12")
	t.Setenv("GANTRY_GUARDRAILS__CHURN__THRESHOLD", "9")
	t.Setenv("GANTRY_VERIFICATION__COMMAND", "go test ./...")
	t.Setenv("GANTRY_GUARDRAILS__QUALITY__ENABLED", "false")

	tmpDir := writeConfig(t, `limits:
  max_iterations: 100
verification:
  command: make verify
`)

	cfg, err := LoadConfig(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Limits.MaxIterations, "environment wins over the file")
	assert.Equal(t, 9, cfg.Guardrails.Churn.Threshold)
	assert.Equal(t, "go test ./...", cfg.Verification.Command)
	assert.False(t, cfg.Guardrails.Quality.Enabled)
}

func TestEnvKey(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"GANTRY_LIMITS__MAX_ITERATIONS":                       "limits.max_iterations",
		"GANTRY_GUARDRAILS__RESOURCE__PREMIUM_REQUEST_BUDGET": "guardrails.resource.premium_request_budget",
		"GANTRY_METRICS__ADDR":                                "metrics.addr",
		"GANTRY_":                                             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Agent.Command = "./agent"
	cfg.Guardrails.Churn.Threshold = 5

	require.NoError(t, SaveConfig(tmpDir, &cfg))

	loaded, err := LoadConfig(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestGuardrailSettings(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, guardrail.DefaultSettings(), cfg.GuardrailSettings())

	cfg.Guardrails.Quality.Enabled = false
	cfg.Guardrails.Tools.ToolCallThreshold = 10
	s := cfg.GuardrailSettings()
	assert.False(t, s.QualityGate)
	assert.Equal(t, 10, s.ToolCallThreshold)
}
