package guardrail

import (
	"errors"
	"fmt"
	"maps"

	"github.com/thruflo/gantry/internal/verify"
)

// Boundary names the node being finalized when a completion is attempted.
type Boundary struct {
	Scope verify.Scope
	ID    string
}

// Context is the immutable per-evaluation snapshot guardrails read. Build it
// with NewContext; the zero value is not valid.
type Context struct {
	moduleName     string
	taskName       string
	iterationCount int
	toolCallCount  int
	fileReads      map[string]int
	commandRetries map[string]int
	boundary       *Boundary
}

// ContextOption sets an optional Context field.
type ContextOption func(*Context)

// WithTask puts a task in focus.
func WithTask(name string) ContextOption {
	return func(c *Context) { c.taskName = name }
}

// WithIterations sets how many iterations the focus task has had.
func WithIterations(n int) ContextOption {
	return func(c *Context) { c.iterationCount = n }
}

// WithToolCalls sets the tool invocations made in the current iteration.
func WithToolCalls(n int) ContextOption {
	return func(c *Context) { c.toolCallCount = n }
}

// WithFileReads sets per-file read counts. The map is copied.
func WithFileReads(counts map[string]int) ContextOption {
	return func(c *Context) { c.fileReads = maps.Clone(counts) }
}

// WithCommandRetries sets per-command retry counts. The map is copied.
func WithCommandRetries(counts map[string]int) ContextOption {
	return func(c *Context) { c.commandRetries = maps.Clone(counts) }
}

// WithBoundary marks the evaluation as a completion attempt for scope/id.
func WithBoundary(scope verify.Scope, id string) ContextOption {
	return func(c *Context) { c.boundary = &Boundary{Scope: scope, ID: id} }
}

// ErrInvalidContext is wrapped by NewContext validation failures.
var ErrInvalidContext = errors.New("invalid guardrail context")

// NewContext builds a snapshot. The module name is required and counts must
// not be negative.
func NewContext(moduleName string, opts ...ContextOption) (Context, error) {
	c := Context{moduleName: moduleName}
	for _, opt := range opts {
		opt(&c)
	}

	if c.moduleName == "" {
		return Context{}, fmt.Errorf("%w: module name is required", ErrInvalidContext)
	}
	if c.iterationCount < 0 {
		return Context{}, fmt.Errorf("%w: iteration count %d is negative", ErrInvalidContext, c.iterationCount)
	}
	if c.toolCallCount < 0 {
		return Context{}, fmt.Errorf("%w: tool call count %d is negative", ErrInvalidContext, c.toolCallCount)
	}
	if c.boundary != nil && c.boundary.ID == "" {
		return Context{}, fmt.Errorf("%w: completion boundary needs an id", ErrInvalidContext)
	}
	return c, nil
}

// ModuleName returns the module in focus.
func (c Context) ModuleName() string { return c.moduleName }

// TaskName returns the task in focus and whether there is one.
func (c Context) TaskName() (string, bool) { return c.taskName, c.taskName != "" }

// IterationCount returns the attempts made on the focus task.
func (c Context) IterationCount() int { return c.iterationCount }

// ToolCallCount returns the tool invocations in the current iteration.
func (c Context) ToolCallCount() int { return c.toolCallCount }

// FileReadCounts returns a copy of the per-file read counts (nil if unset).
func (c Context) FileReadCounts() map[string]int { return maps.Clone(c.fileReads) }

// CommandRetryCounts returns a copy of the per-command retry counts (nil if
// unset).
func (c Context) CommandRetryCounts() map[string]int { return maps.Clone(c.commandRetries) }

// Boundary returns the completion boundary, if this is a completion attempt.
func (c Context) Boundary() (Boundary, bool) {
	if c.boundary == nil {
		return Boundary{}, false
	}
	return *c.boundary, true
}

// Equal reports whether every field of c and other matches. Nil and empty
// count maps compare equal.
func (c Context) Equal(other Context) bool {
	if c.moduleName != other.moduleName ||
		c.taskName != other.taskName ||
		c.iterationCount != other.iterationCount ||
		c.toolCallCount != other.toolCallCount {
		return false
	}
	if !maps.Equal(c.fileReads, other.fileReads) || !maps.Equal(c.commandRetries, other.commandRetries) {
		return false
	}
	switch {
	case c.boundary == nil && other.boundary == nil:
		return true
	case c.boundary == nil || other.boundary == nil:
		return false
	default:
		return *c.boundary == *other.boundary
	}
}
