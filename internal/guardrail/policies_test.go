package guardrail

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/verify"
)

func TestResourceLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		used     int
		expected Outcome
	}{
		{0, OutcomePass},
		{79, OutcomePass},
		{80, OutcomeWarn},
		{89, OutcomeWarn},
		{90, OutcomeBlock},
		{95, OutcomeBlock},
		{120, OutcomeBlock},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("used_%d", tt.used), func(t *testing.T) {
			t.Parallel()

			g, err := NewResourceLimit(stubUsage(tt.used), 100, 0.80, 0.90)
			require.NoError(t, err)

			r, err := g.Evaluate(context.Background(), mustContext(t))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, r.Outcome())
		})
	}
}

func TestResourceLimit_Messages(t *testing.T) {
	t.Parallel()

	g, err := NewResourceLimit(stubUsage(92), 100, 0.80, 0.90)
	require.NoError(t, err)

	r, err := g.Evaluate(context.Background(), mustContext(t))
	require.NoError(t, err)
	assert.Equal(t, "Premium request budget exceeded (92/100). User confirmation required to continue.", MessageOf(r))

	assert.Equal(t, NameResourceLimit, g.Name())
	assert.Equal(t, OrderResourceLimit, g.Order())
	assert.True(t, g.ShortCircuitOnBlock())
}

func TestResourceLimit_Override(t *testing.T) {
	t.Parallel()

	g, err := NewResourceLimit(stubUsage(95), 100, 0.80, 0.90)
	require.NoError(t, err)

	var _ Overrider = g
	g.Override()
	assert.Equal(t, 200, g.Budget())

	r, err := g.Evaluate(context.Background(), mustContext(t))
	require.NoError(t, err)
	assert.Equal(t, OutcomePass, r.Outcome())
}

func TestResourceLimit_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		usage  UsageSource
		budget int
		warn   float64
		block  float64
	}{
		{"nil usage", nil, 100, 0.8, 0.9},
		{"zero budget", stubUsage(0), 0, 0.8, 0.9},
		{"negative budget", stubUsage(0), -5, 0.8, 0.9},
		{"zero warn", stubUsage(0), 100, 0, 0.9},
		{"block equals warn", stubUsage(0), 100, 0.8, 0.8},
		{"block below warn", stubUsage(0), 100, 0.9, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewResourceLimit(tt.usage, tt.budget, tt.warn, tt.block)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestChurnDetection(t *testing.T) {
	t.Parallel()

	g, err := NewChurnDetection(3)
	require.NoError(t, err)
	assert.False(t, g.ShortCircuitOnBlock())

	tests := []struct {
		iterations int
		expected   Outcome
	}{
		{0, OutcomePass},
		{1, OutcomePass},
		{2, OutcomeWarn},
		{3, OutcomeBlock},
		{5, OutcomeBlock},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("iteration_%d", tt.iterations), func(t *testing.T) {
			t.Parallel()

			gc := mustContext(t, WithTask("parse-invoices"), WithIterations(tt.iterations))
			r, err := g.Evaluate(context.Background(), gc)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, r.Outcome())
			if tt.expected != OutcomePass {
				assert.Contains(t, MessageOf(r), "parse-invoices")
			}
		})
	}
}

func TestChurnDetection_NoTaskInFocus(t *testing.T) {
	t.Parallel()

	g, err := NewChurnDetection(3)
	require.NoError(t, err)

	r, err := g.Evaluate(context.Background(), mustContext(t, WithIterations(10)))
	require.NoError(t, err)
	assert.Equal(t, Passed(), r)
}

func TestChurnDetection_ThresholdOne(t *testing.T) {
	t.Parallel()

	g, err := NewChurnDetection(1)
	require.NoError(t, err)

	r, err := g.Evaluate(context.Background(), mustContext(t, WithTask("t"), WithIterations(0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomePass, r.Outcome())

	r, err = g.Evaluate(context.Background(), mustContext(t, WithTask("t"), WithIterations(1)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlock, r.Outcome())
}

func TestChurnDetection_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewChurnDetection(0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = NewChurnDetection(-1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestQualityGate(t *testing.T) {
	t.Parallel()

	tracker := verify.NewTracker()
	g, err := NewQualityGate(verify.NewGate(tracker))
	require.NoError(t, err)
	assert.True(t, g.ShortCircuitOnBlock())

	ctx := context.Background()

	r, err := g.Evaluate(ctx, mustContext(t, WithTask("t1")))
	require.NoError(t, err)
	assert.Equal(t, OutcomePass, r.Outcome(), "no boundary means nothing to gate")

	boundary := mustContext(t, WithTask("t1"), WithBoundary(verify.ScopeTask, "t1"))
	r, err = g.Evaluate(ctx, boundary)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlock, r.Outcome())
	assert.Contains(t, MessageOf(r), "t1")

	tracker.RecordVerification(verify.ScopeTask, "t1", true)
	r, err = g.Evaluate(ctx, boundary)
	require.NoError(t, err)
	assert.Equal(t, OutcomePass, r.Outcome())
}

type denyAll struct{}

func (denyAll) ValidateCompletion(verify.Scope, string) verify.Decision { return verify.Decision{} }

func TestQualityGate_FallbackReason(t *testing.T) {
	t.Parallel()

	g, err := NewQualityGate(denyAll{})
	require.NoError(t, err)

	r, err := g.Evaluate(context.Background(), mustContext(t, WithBoundary(verify.ScopeModule, "billing")))
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlock, r.Outcome())
	assert.NotEmpty(t, MessageOf(r))
}

func TestQualityGate_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewQualityGate(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestToolDiscipline(t *testing.T) {
	t.Parallel()

	g, err := NewToolDiscipline(3, 3, 50)
	require.NoError(t, err)
	assert.False(t, g.ShortCircuitOnBlock())

	tests := []struct {
		name     string
		opts     []ContextOption
		expected Outcome
		contains []string
	}{
		{
			name:     "within limits",
			opts:     []ContextOption{WithToolCalls(50), WithFileReads(map[string]int{"main.go": 3}), WithCommandRetries(map[string]int{"go test": 3})},
			expected: OutcomePass,
		},
		{
			name:     "file re-read",
			opts:     []ContextOption{WithFileReads(map[string]int{"main.go": 4, "util.go": 1})},
			expected: OutcomeWarn,
			contains: []string{`"main.go"`},
		},
		{
			name:     "command retried",
			opts:     []ContextOption{WithCommandRetries(map[string]int{"go test ./...": 4})},
			expected: OutcomeWarn,
			contains: []string{`"go test ./..."`, "Diagnose"},
		},
		{
			name:     "too many tool calls",
			opts:     []ContextOption{WithToolCalls(51)},
			expected: OutcomeWarn,
			contains: []string{"Plan the remaining steps"},
		},
		{
			name:     "escalated tool calls",
			opts:     []ContextOption{WithToolCalls(101)},
			expected: OutcomeWarn,
			contains: []string{"more than double"},
		},
		{
			name:     "several problems in one warning",
			opts:     []ContextOption{WithToolCalls(60), WithFileReads(map[string]int{"b.go": 5, "a.go": 9})},
			expected: OutcomeWarn,
			contains: []string{`"a.go"`, `"b.go"`, "tool calls"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r, err := g.Evaluate(context.Background(), mustContext(t, tt.opts...))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, r.Outcome())
			for _, s := range tt.contains {
				assert.Contains(t, MessageOf(r), s)
			}
		})
	}
}

func TestToolDiscipline_InvalidConfig(t *testing.T) {
	t.Parallel()

	for _, args := range [][3]int{{0, 3, 50}, {3, 0, 50}, {3, 3, 0}, {-1, 3, 50}} {
		_, err := NewToolDiscipline(args[0], args[1], args[2])
		assert.ErrorIs(t, err, ErrInvalidConfig, "args %v", args)
	}
}

func TestPoliciesHonourCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resource, err := NewResourceLimit(stubUsage(0), 10, 0.5, 0.9)
	require.NoError(t, err)
	churn, err := NewChurnDetection(3)
	require.NoError(t, err)
	quality, err := NewQualityGate(denyAll{})
	require.NoError(t, err)
	tools, err := NewToolDiscipline(1, 1, 1)
	require.NoError(t, err)

	for _, g := range []Guardrail{resource, churn, quality, tools, NewNoOp("noop", 1)} {
		_, err := g.Evaluate(ctx, mustContext(t))
		assert.ErrorIs(t, err, context.Canceled, g.Name())
	}
}
