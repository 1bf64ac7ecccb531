// Package guardrail implements the policy checks evaluated on every agent
// loop iteration and completion attempt, and the Pipeline that orders and
// short-circuits them.
//
// A guardrail reads a Context snapshot (plus any trackers injected at
// construction) and returns a Result: Pass, Warn with guidance for the next
// agent turn, or Block with the reason the loop must pause for a human.
// Expected outcomes are data; only cancellation and collaborator failures are
// returned as errors.
package guardrail

import (
	"context"
	"errors"
)

// Guardrail is a single policy.
type Guardrail interface {
	// Name identifies the guardrail in logs, metrics and result trails.
	Name() string
	// Order positions the guardrail in the pipeline; lower runs first.
	Order() int
	// ShortCircuitOnBlock stops the pipeline after this guardrail blocks.
	ShortCircuitOnBlock() bool
	// Evaluate checks gc. It must not modify the work tree.
	Evaluate(ctx context.Context, gc Context) (Result, error)
}

// Overrider is implemented by guardrails whose Block a human may override,
// such as raising an exhausted budget.
type Overrider interface {
	Override()
}

// ErrInvalidConfig is wrapped by every constructor validation failure.
var ErrInvalidConfig = errors.New("invalid guardrail configuration")

// Standard pipeline positions.
const (
	OrderResourceLimit  = 100
	OrderChurnDetection = 200
	OrderQualityGate    = 300
	OrderToolDiscipline = 400
)

// Standard guardrail names.
const (
	NameResourceLimit  = "resource-limit"
	NameChurnDetection = "churn-detection"
	NameQualityGate    = "quality-gate"
	NameToolDiscipline = "tool-discipline"
)

// NoOp is a pass-through guardrail holding a pipeline slot for a policy that
// has no wiring, such as the quality gate when verification is disabled.
type NoOp struct {
	name  string
	order int
}

// NewNoOp creates a pass-through guardrail.
func NewNoOp(name string, order int) *NoOp {
	return &NoOp{name: name, order: order}
}

func (n *NoOp) Name() string              { return n.name }
func (n *NoOp) Order() int                { return n.order }
func (n *NoOp) ShortCircuitOnBlock() bool { return false }

// Evaluate always passes unless ctx is already done.
func (n *NoOp) Evaluate(ctx context.Context, _ Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Passed(), nil
}
