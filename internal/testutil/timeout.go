package testutil

import (
	"context"
	"testing"
	"time"
)

const (
	// CommandTimeout bounds tests that run agent or verifier commands.
	CommandTimeout = 30 * time.Second

	// EvalTimeout bounds tests that stay in process: pipeline evaluations and
	// loops driven by an AgentFunc.
	EvalTimeout = 5 * time.Second

	// cleanupMargin is kept free before the test binary's -timeout fires so
	// a stalled test fails with its own error instead of a panic dump.
	cleanupMargin = 10 * time.Second
)

// Bounded returns a context that ends after limit, at the test's deadline
// less cleanupMargin if that comes first, or when the test finishes.
func Bounded(t *testing.T, limit time.Duration) context.Context {
	t.Helper()

	deadline := time.Now().Add(limit)
	if td, ok := t.Deadline(); ok {
		if early := td.Add(-cleanupMargin); early.Before(deadline) && time.Until(early) > 0 {
			deadline = early
		}
	}
	ctx, cancel := context.WithDeadline(t.Context(), deadline)
	t.Cleanup(cancel)
	return ctx
}

// CommandContext bounds a test that shells out.
func CommandContext(t *testing.T) context.Context {
	t.Helper()
	return Bounded(t, CommandTimeout)
}

// EvalContext bounds an in-process test.
func EvalContext(t *testing.T) context.Context {
	t.Helper()
	return Bounded(t, EvalTimeout)
}
