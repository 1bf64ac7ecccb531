package guardrail

import (
	"context"
	"fmt"

	"github.com/thruflo/gantry/internal/verify"
)

// CompletionValidator decides whether a node may be marked complete.
// *verify.Gate satisfies it.
type CompletionValidator interface {
	ValidateCompletion(scope verify.Scope, id string) verify.Decision
}

// QualityGate blocks a completion boundary that has no passing
// verification on record. Outside a completion attempt it passes.
type QualityGate struct {
	validator CompletionValidator
}

// NewQualityGate requires a validator; use NewNoOp when verification is not
// wired.
func NewQualityGate(validator CompletionValidator) (*QualityGate, error) {
	if validator == nil {
		return nil, fmt.Errorf("%w: %s needs a completion validator", ErrInvalidConfig, NameQualityGate)
	}
	return &QualityGate{validator: validator}, nil
}

func (q *QualityGate) Name() string              { return NameQualityGate }
func (q *QualityGate) Order() int                { return OrderQualityGate }
func (q *QualityGate) ShortCircuitOnBlock() bool { return true }

// Evaluate consults the validator for the context's boundary.
func (q *QualityGate) Evaluate(ctx context.Context, gc Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, ok := gc.Boundary()
	if !ok {
		return Passed(), nil
	}

	d := q.validator.ValidateCompletion(b.Scope, b.ID)
	if d.Allowed {
		return Passed(), nil
	}
	reason := d.RejectionReason
	if reason == "" {
		reason = fmt.Sprintf("Cannot mark %s %q complete without a passing verification.", b.Scope, b.ID)
	}
	return Blocked(reason), nil
}
