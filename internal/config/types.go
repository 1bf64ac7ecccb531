package config

import (
	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/logging"
)

// Limits defines operational boundaries for a gantry session.
type Limits struct {
	MaxIterations       int `koanf:"max_iterations" yaml:"max_iterations"`
	NoProgressThreshold int `koanf:"no_progress_threshold" yaml:"no_progress_threshold"`
}

// ResourceGuardrail configures the premium request budget.
type ResourceGuardrail struct {
	PremiumRequestBudget int     `koanf:"premium_request_budget" yaml:"premium_request_budget"`
	WarnFraction         float64 `koanf:"warn_fraction" yaml:"warn_fraction"`
	BlockFraction        float64 `koanf:"block_fraction" yaml:"block_fraction"`
}

// ChurnGuardrail configures repeated-attempt detection.
type ChurnGuardrail struct {
	Threshold int `koanf:"threshold" yaml:"threshold"`
}

// ToolsGuardrail configures tool discipline warnings.
type ToolsGuardrail struct {
	MaxFileReads      int `koanf:"max_file_reads" yaml:"max_file_reads"`
	MaxCommandRetries int `koanf:"max_command_retries" yaml:"max_command_retries"`
	ToolCallThreshold int `koanf:"tool_call_threshold" yaml:"tool_call_threshold"`
}

// QualityGuardrail toggles the verification gate in the pipeline.
type QualityGuardrail struct {
	Enabled bool `koanf:"enabled" yaml:"enabled"`
}

// Guardrails groups per-policy settings.
type Guardrails struct {
	Resource ResourceGuardrail `koanf:"resource" yaml:"resource"`
	Churn    ChurnGuardrail    `koanf:"churn" yaml:"churn"`
	Tools    ToolsGuardrail    `koanf:"tools" yaml:"tools"`
	Quality  QualityGuardrail  `koanf:"quality" yaml:"quality"`
}

// Verification names the oracle command. Empty means verdicts are recorded
// by hand with `gantry verify`.
type Verification struct {
	Command string `koanf:"command" yaml:"command"`
}

// Agent names the command run once per loop iteration.
type Agent struct {
	Command string `koanf:"command" yaml:"command"`
}

// Metrics configures the Prometheus endpoint. Empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// Config represents the .gantry/config.yaml file.
type Config struct {
	Limits       Limits         `koanf:"limits" yaml:"limits"`
	Guardrails   Guardrails     `koanf:"guardrails" yaml:"guardrails"`
	Verification Verification   `koanf:"verification" yaml:"verification"`
	Agent        Agent          `koanf:"agent" yaml:"agent"`
	Logging      logging.Config `koanf:"logging" yaml:"logging"`
	Metrics      Metrics        `koanf:"metrics" yaml:"metrics"`
}

// GuardrailSettings converts the guardrail section into pipeline settings.
func (c *Config) GuardrailSettings() guardrail.Settings {
	g := c.Guardrails
	return guardrail.Settings{
		PremiumRequestBudget: g.Resource.PremiumRequestBudget,
		WarnFraction:         g.Resource.WarnFraction,
		BlockFraction:        g.Resource.BlockFraction,
		ChurnThreshold:       g.Churn.Threshold,
		MaxFileReads:         g.Tools.MaxFileReads,
		MaxCommandRetries:    g.Tools.MaxCommandRetries,
		ToolCallThreshold:    g.Tools.ToolCallThreshold,
		QualityGate:          g.Quality.Enabled,
	}
}
