package guardrail

import "fmt"

// Settings carries the configured thresholds for the standard pipeline.
type Settings struct {
	PremiumRequestBudget int
	WarnFraction         float64
	BlockFraction        float64
	ChurnThreshold       int
	MaxFileReads         int
	MaxCommandRetries    int
	ToolCallThreshold    int
	QualityGate          bool
}

// DefaultSettings returns the documented defaults with a budget of 100
// premium requests.
func DefaultSettings() Settings {
	return Settings{
		PremiumRequestBudget: 100,
		WarnFraction:         DefaultWarnFraction,
		BlockFraction:        DefaultBlockFraction,
		ChurnThreshold:       DefaultChurnThreshold,
		MaxFileReads:         DefaultMaxFileReads,
		MaxCommandRetries:    DefaultMaxCommandRetries,
		ToolCallThreshold:    DefaultToolCallThreshold,
		QualityGate:          true,
	}
}

// NewStandardPipeline builds the four standard guardrails. When the quality
// gate is disabled or validator is nil its slot is held by a NoOp.
func NewStandardPipeline(s Settings, usage UsageSource, validator CompletionValidator, opts ...PipelineOption) (*Pipeline, error) {
	resource, err := NewResourceLimit(usage, s.PremiumRequestBudget, s.WarnFraction, s.BlockFraction)
	if err != nil {
		return nil, err
	}
	churn, err := NewChurnDetection(s.ChurnThreshold)
	if err != nil {
		return nil, err
	}
	tools, err := NewToolDiscipline(s.MaxFileReads, s.MaxCommandRetries, s.ToolCallThreshold)
	if err != nil {
		return nil, err
	}

	var quality Guardrail = NewNoOp(NameQualityGate, OrderQualityGate)
	if s.QualityGate && validator != nil {
		q, err := NewQualityGate(validator)
		if err != nil {
			return nil, fmt.Errorf("quality gate: %w", err)
		}
		quality = q
	}

	p := NewPipeline(opts...)
	p.Register(resource, churn, quality, tools)
	return p, nil
}
