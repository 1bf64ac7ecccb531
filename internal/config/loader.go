package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/logging"
)

// Default values for Config.
const (
	DefaultMaxIterations        = 50
	DefaultNoProgressThreshold  = 5
	DefaultPremiumRequestBudget = 100
)

// Dir is the per-project directory holding config and sessions.
const Dir = ".gantry"

// EnvPrefix marks environment overrides. A double underscore separates
// nesting levels: GANTRY_GUARDRAILS__CHURN__THRESHOLD=5 sets
// guardrails.churn.threshold.
const EnvPrefix = "GANTRY_"

// DefaultLimits returns limits with sensible default values.
func DefaultLimits() Limits {
	return Limits{
		MaxIterations:       DefaultMaxIterations,
		NoProgressThreshold: DefaultNoProgressThreshold,
	}
}

// DefaultGuardrails mirrors guardrail.DefaultSettings.
func DefaultGuardrails() Guardrails {
	return Guardrails{
		Resource: ResourceGuardrail{
			PremiumRequestBudget: DefaultPremiumRequestBudget,
			WarnFraction:         guardrail.DefaultWarnFraction,
			BlockFraction:        guardrail.DefaultBlockFraction,
		},
		Churn: ChurnGuardrail{Threshold: guardrail.DefaultChurnThreshold},
		Tools: ToolsGuardrail{
			MaxFileReads:      guardrail.DefaultMaxFileReads,
			MaxCommandRetries: guardrail.DefaultMaxCommandRetries,
			ToolCallThreshold: guardrail.DefaultToolCallThreshold,
		},
		Quality: QualityGuardrail{Enabled: true},
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Limits:     DefaultLimits(),
		Guardrails: DefaultGuardrails(),
		Logging:    logging.DefaultConfig(),
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Path returns the config file location under basePath.
func Path(basePath string) string {
	return filepath.Join(basePath, Dir, "config.yaml")
}

// LoadConfig reads .gantry/config.yaml from basePath, then applies GANTRY_*
// environment overrides. Missing fields keep their defaults and a missing
// file yields the defaults.
func LoadConfig(basePath string) (*Config, error) {
	k := koanf.New(".")

	data, err := os.ReadFile(Path(basePath))
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// envKey maps GANTRY_LIMITS__MAX_ITERATIONS to limits.max_iterations.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	if key == "" {
		return ""
	}
	return strings.ReplaceAll(key, "__", ".")
}

// SaveConfig writes cfg to .gantry/config.yaml, creating the directory.
func SaveConfig(basePath string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Join(basePath, Dir), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(Path(basePath), data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ValidateConfig checks that all config values are valid.
func ValidateConfig(cfg *Config) error {
	if cfg.Limits.MaxIterations <= 0 {
		return ValidationError{Field: "limits.max_iterations", Message: "must be positive"}
	}
	if cfg.Limits.NoProgressThreshold <= 0 {
		return ValidationError{Field: "limits.no_progress_threshold", Message: "must be positive"}
	}

	r := cfg.Guardrails.Resource
	if r.PremiumRequestBudget <= 0 {
		return ValidationError{Field: "guardrails.resource.premium_request_budget", Message: "must be positive"}
	}
	if r.WarnFraction <= 0 || r.WarnFraction > 1 {
		return ValidationError{Field: "guardrails.resource.warn_fraction", Message: "must be in (0, 1]"}
	}
	if r.BlockFraction <= r.WarnFraction {
		return ValidationError{Field: "guardrails.resource.block_fraction", Message: "must be greater than warn_fraction"}
	}
	if cfg.Guardrails.Churn.Threshold <= 0 {
		return ValidationError{Field: "guardrails.churn.threshold", Message: "must be positive"}
	}

	tools := cfg.Guardrails.Tools
	if tools.MaxFileReads <= 0 {
		return ValidationError{Field: "guardrails.tools.max_file_reads", Message: "must be positive"}
	}
	if tools.MaxCommandRetries <= 0 {
		return ValidationError{Field: "guardrails.tools.max_command_retries", Message: "must be positive"}
	}
	if tools.ToolCallThreshold <= 0 {
		return ValidationError{Field: "guardrails.tools.tool_call_threshold", Message: "must be positive"}
	}

	if err := cfg.Logging.Validate(); err != nil {
		return ValidationError{Field: "logging", Message: err.Error()}
	}

	return nil
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
