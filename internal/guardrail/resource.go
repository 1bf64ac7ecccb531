package guardrail

import (
	"context"
	"fmt"
	"sync"
)

// Default ResourceLimit thresholds.
const (
	DefaultWarnFraction  = 0.80
	DefaultBlockFraction = 0.90
)

// UsageSource reports premium request consumption for the session.
type UsageSource interface {
	PremiumRequests() int
}

// ResourceLimit warns as premium request usage approaches the budget and
// blocks once it crosses the block fraction. A confirmed override raises the
// budget by its original size.
type ResourceLimit struct {
	usage         UsageSource
	warnFraction  float64
	blockFraction float64
	increment     int

	mu     sync.Mutex
	budget int
}

// NewResourceLimit validates the thresholds. budget must be positive and
// 0 < warnFraction < blockFraction.
func NewResourceLimit(usage UsageSource, budget int, warnFraction, blockFraction float64) (*ResourceLimit, error) {
	if usage == nil {
		return nil, fmt.Errorf("%w: %s needs a usage source", ErrInvalidConfig, NameResourceLimit)
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: %s budget must be positive, got %d", ErrInvalidConfig, NameResourceLimit, budget)
	}
	if warnFraction <= 0 || blockFraction <= 0 {
		return nil, fmt.Errorf("%w: %s fractions must be positive, got warn=%v block=%v", ErrInvalidConfig, NameResourceLimit, warnFraction, blockFraction)
	}
	if blockFraction <= warnFraction {
		return nil, fmt.Errorf("%w: %s block fraction %v must exceed warn fraction %v", ErrInvalidConfig, NameResourceLimit, blockFraction, warnFraction)
	}
	return &ResourceLimit{
		usage:         usage,
		warnFraction:  warnFraction,
		blockFraction: blockFraction,
		increment:     budget,
		budget:        budget,
	}, nil
}

func (r *ResourceLimit) Name() string              { return NameResourceLimit }
func (r *ResourceLimit) Order() int                { return OrderResourceLimit }
func (r *ResourceLimit) ShortCircuitOnBlock() bool { return true }

// Budget returns the current premium request budget.
func (r *ResourceLimit) Budget() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.budget
}

// Override raises the budget after a human confirmed continuing.
func (r *ResourceLimit) Override() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budget += r.increment
}

// Evaluate compares usage against the budget.
func (r *ResourceLimit) Evaluate(ctx context.Context, _ Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	used := r.usage.PremiumRequests()
	budget := r.Budget()
	ratio := float64(used) / float64(budget)

	switch {
	case ratio >= r.blockFraction:
		return Blocked(fmt.Sprintf(
			"Premium request budget exceeded (%d/%d). User confirmation required to continue.",
			used, budget)), nil
	case ratio >= r.warnFraction:
		return Warned(fmt.Sprintf(
			"Premium request usage at %.0f%% of budget (%d/%d). Prioritise finishing the current task and avoid exploratory requests.",
			ratio*100, used, budget)), nil
	default:
		return Passed(), nil
	}
}
