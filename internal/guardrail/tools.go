package guardrail

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Default ToolDiscipline thresholds.
const (
	DefaultMaxFileReads      = 3
	DefaultMaxCommandRetries = 3
	DefaultToolCallThreshold = 50
)

// ToolDiscipline warns about wasteful tool use within an iteration:
// re-reading the same file, retrying the same command, or making too many
// tool calls overall. Past twice the tool call threshold the warning
// escalates. It never blocks.
type ToolDiscipline struct {
	maxFileReads      int
	maxCommandRetries int
	toolCallThreshold int
}

// NewToolDiscipline validates that every threshold is positive.
func NewToolDiscipline(maxFileReads, maxCommandRetries, toolCallThreshold int) (*ToolDiscipline, error) {
	for _, p := range []struct {
		name  string
		value int
	}{
		{"max file reads", maxFileReads},
		{"max command retries", maxCommandRetries},
		{"tool call threshold", toolCallThreshold},
	} {
		if p.value <= 0 {
			return nil, fmt.Errorf("%w: %s %s must be positive, got %d", ErrInvalidConfig, NameToolDiscipline, p.name, p.value)
		}
	}
	return &ToolDiscipline{
		maxFileReads:      maxFileReads,
		maxCommandRetries: maxCommandRetries,
		toolCallThreshold: toolCallThreshold,
	}, nil
}

func (t *ToolDiscipline) Name() string              { return NameToolDiscipline }
func (t *ToolDiscipline) Order() int                { return OrderToolDiscipline }
func (t *ToolDiscipline) ShortCircuitOnBlock() bool { return false }

// Evaluate collects every discipline problem into a single warning.
func (t *ToolDiscipline) Evaluate(ctx context.Context, gc Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var problems []string

	reads := gc.FileReadCounts()
	for _, path := range sortedKeys(reads) {
		if n := reads[path]; n > t.maxFileReads {
			problems = append(problems, fmt.Sprintf(
				"File %q was read %d times (max %d). Keep what you need from it instead of re-reading.",
				path, n, t.maxFileReads))
		}
	}

	retries := gc.CommandRetryCounts()
	for _, command := range sortedKeys(retries) {
		if n := retries[command]; n > t.maxCommandRetries {
			problems = append(problems, fmt.Sprintf(
				"Command %q was retried %d times (max %d). Diagnose the failure before running it again.",
				command, n, t.maxCommandRetries))
		}
	}

	calls := gc.ToolCallCount()
	switch {
	case calls > 2*t.toolCallThreshold:
		problems = append(problems, fmt.Sprintf(
			"Made %d tool calls this iteration, more than double the limit of %d. Stop exploring and commit to a concrete change now.",
			calls, t.toolCallThreshold))
	case calls > t.toolCallThreshold:
		problems = append(problems, fmt.Sprintf(
			"Made %d tool calls this iteration (limit %d). Plan the remaining steps before calling more tools.",
			calls, t.toolCallThreshold))
	}

	if len(problems) == 0 {
		return Passed(), nil
	}
	return Warned(strings.Join(problems, "\n")), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
