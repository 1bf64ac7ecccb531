package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thruflo/gantry/internal/verify"
)

func TestFold(t *testing.T) {
	t.Parallel()

	describe := func(r Result) string {
		return Fold(r,
			func() string { return "ok" },
			func(m string) string { return "warn:" + m },
			func(m string) string { return "block:" + m },
		)
	}

	assert.Equal(t, "ok", describe(Passed()))
	assert.Equal(t, "warn:slow", describe(Warned("slow")))
	assert.Equal(t, "block:stop", describe(Blocked("stop")))
}

func TestResultMessagesAreMandatory(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { Warned("") })
	assert.Panics(t, func() { Blocked("") })
	assert.Equal(t, "", MessageOf(Passed()))
}

func TestNewContext(t *testing.T) {
	t.Parallel()

	_, err := NewContext("")
	assert.ErrorIs(t, err, ErrInvalidContext)

	_, err = NewContext("m", WithIterations(-1))
	assert.ErrorIs(t, err, ErrInvalidContext)

	_, err = NewContext("m", WithToolCalls(-1))
	assert.ErrorIs(t, err, ErrInvalidContext)

	_, err = NewContext("m", WithBoundary(verify.ScopeTask, ""))
	assert.ErrorIs(t, err, ErrInvalidContext)

	gc, err := NewContext("m")
	require.NoError(t, err)
	_, hasTask := gc.TaskName()
	assert.False(t, hasTask)
	_, hasBoundary := gc.Boundary()
	assert.False(t, hasBoundary)
	assert.Nil(t, gc.FileReadCounts())
}

func TestContextIsASnapshot(t *testing.T) {
	t.Parallel()

	reads := map[string]int{"a.go": 1}
	gc, err := NewContext("m", WithFileReads(reads))
	require.NoError(t, err)

	reads["a.go"] = 99
	assert.Equal(t, 1, gc.FileReadCounts()["a.go"], "caller mutation must not leak in")

	out := gc.FileReadCounts()
	out["a.go"] = 42
	assert.Equal(t, 1, gc.FileReadCounts()["a.go"], "returned map must be a copy")
}

func TestContextEqual(t *testing.T) {
	t.Parallel()

	build := func(opts ...ContextOption) Context {
		gc, err := NewContext("m", opts...)
		require.NoError(t, err)
		return gc
	}

	base := []ContextOption{
		WithTask("t"), WithIterations(2), WithToolCalls(4),
		WithFileReads(map[string]int{"a": 1}),
		WithCommandRetries(map[string]int{"make": 2}),
		WithBoundary(verify.ScopeTask, "t"),
	}

	a, b := build(base...), build(base...)
	assert.True(t, a.Equal(b))

	assert.False(t, a.Equal(build(append(base, WithIterations(3))...)))
	assert.False(t, a.Equal(build(append(base, WithFileReads(map[string]int{"a": 2}))...)))
	assert.False(t, a.Equal(build(append(base, WithBoundary(verify.ScopeComponent, "t"))...)))
	assert.False(t, a.Equal(build(base[:5]...)), "missing boundary")

	assert.True(t, build().Equal(build(WithFileReads(map[string]int{}))), "nil and empty maps are equal")
}
