package guardrail

import (
	"context"
	"fmt"
)

// DefaultChurnThreshold is the attempt count at which a task is considered
// stuck.
const DefaultChurnThreshold = 3

// ChurnDetection flags a task that keeps being attempted without completing.
// It warns one attempt before the threshold and blocks at the threshold, but
// never stops the rest of the pipeline.
type ChurnDetection struct {
	threshold int
}

// NewChurnDetection validates that threshold is positive.
func NewChurnDetection(threshold int) (*ChurnDetection, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: %s threshold must be positive, got %d", ErrInvalidConfig, NameChurnDetection, threshold)
	}
	return &ChurnDetection{threshold: threshold}, nil
}

func (c *ChurnDetection) Name() string              { return NameChurnDetection }
func (c *ChurnDetection) Order() int                { return OrderChurnDetection }
func (c *ChurnDetection) ShortCircuitOnBlock() bool { return false }

// Threshold returns the configured attempt limit.
func (c *ChurnDetection) Threshold() int { return c.threshold }

// Evaluate checks the focus task's attempt count. Without a task in focus
// there is nothing to churn on.
func (c *ChurnDetection) Evaluate(ctx context.Context, gc Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	task, ok := gc.TaskName()
	if !ok {
		return Passed(), nil
	}

	n := gc.IterationCount()
	switch {
	case n >= c.threshold:
		return Blocked(fmt.Sprintf(
			"Task %q has been attempted %d times without completing (limit %d). It needs human review: split it into smaller subtasks or clarify the requirements.",
			task, n, c.threshold)), nil
	case n > 0 && n >= c.threshold-1:
		return Warned(fmt.Sprintf(
			"Task %q has been attempted %d times (limit %d). Change approach: re-read the acceptance criteria and tackle the smallest failing piece first.",
			task, n, c.threshold)), nil
	default:
		return Passed(), nil
	}
}
