// Package tools implements the status tools an agent calls to move work
// through its lifecycle. Every completion goes through the verification gate
// before the node transitions.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/thruflo/gantry/internal/logging"
	"github.com/thruflo/gantry/internal/metrics"
	"github.com/thruflo/gantry/internal/verify"
	"github.com/thruflo/gantry/internal/work"
)

// Tool names exposed to the agent.
const (
	ToolMarkComplete = "mark_complete"
	ToolStart        = "start"
	ToolFail         = "fail"
)

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ErrBadRequest is wrapped when a tool call cannot be decoded or names an
// unknown tool.
var ErrBadRequest = errors.New("bad tool request")

// Request addresses one node. Component disambiguates a task ID shared by
// several components. A task-scoped request naming a Subtask addresses that
// checklist item instead of the task.
type Request struct {
	Scope     verify.Scope `json:"scope"`
	ID        string       `json:"id"`
	Module    string       `json:"module"`
	Component string       `json:"component,omitempty"`
	Subtask   string       `json:"subtask,omitempty"`
}

// target names the addressed node in responses.
func (r Request) target() string {
	if r.Scope == verify.ScopeTask && r.Subtask != "" {
		return fmt.Sprintf("subtask %q of task %q", r.Subtask, r.ID)
	}
	return fmt.Sprintf("%s %q", r.Scope, r.ID)
}

// Response is relayed back to the agent verbatim.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func success(format string, args ...any) Response {
	return Response{Status: StatusSuccess, Message: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...any) Response {
	return Response{Status: StatusError, Message: fmt.Sprintf(format, args...)}
}

// OK reports whether the call succeeded.
func (r Response) OK() bool { return r.Status == StatusSuccess }

// Handler serves status tools for a single module.
type Handler struct {
	module  *work.Module
	gate    *verify.Gate
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewHandler creates a handler. logger and m may be nil.
func NewHandler(module *work.Module, gate *verify.Gate, logger *logging.Logger, m *metrics.Metrics) *Handler {
	return &Handler{module: module, gate: gate, logger: logger, metrics: m}
}

// Dispatch decodes input, runs the named tool and encodes its response.
// Only malformed calls and cancellation are returned as errors; rejected
// transitions are error responses.
func (h *Handler) Dispatch(ctx context.Context, tool string, input json.RawMessage) (json.RawMessage, error) {
	var req Request
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadRequest, tool, err)
	}

	var (
		resp Response
		err  error
	)
	switch tool {
	case ToolMarkComplete:
		resp, err = h.MarkComplete(ctx, req)
	case ToolStart:
		resp, err = h.Start(ctx, req)
	case ToolFail:
		resp, err = h.Fail(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unknown tool %q", ErrBadRequest, tool)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// MarkComplete completes a node if the gate allows it and every child is
// complete. Subtasks carry no verification of their own; they are ticked off
// directly and checked when their task completes.
func (h *Handler) MarkComplete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	node, resp, ok := h.resolve(req)
	if !ok {
		return resp, nil
	}

	if node.Kind() != work.KindSubtask {
		decision := h.gate.ValidateCompletion(req.Scope, req.ID)
		if !decision.Allowed {
			h.metrics.RecordRejection(string(req.Scope))
			h.logger.Warn("completion rejected",
				zap.String("scope", string(req.Scope)),
				zap.String("id", req.ID),
				zap.String("reason", decision.RejectionReason),
			)
			return failure("%s", decision.RejectionReason), nil
		}
	}

	if open := incomplete(node); len(open) > 0 {
		return failure("Cannot mark %s complete: %d child node(s) are not complete (first: %q).",
			req.target(), len(open), open[0]), nil
	}

	if err := h.transition(node, work.StateComplete); err != nil {
		return failure("%v", err), nil
	}
	return success("Marked %s complete.", req.target()), nil
}

// Start moves a Pending or Failed node to InProgress.
func (h *Handler) Start(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	node, resp, ok := h.resolve(req)
	if !ok {
		return resp, nil
	}
	if err := h.transition(node, work.StateInProgress); err != nil {
		return failure("%v", err), nil
	}
	return success("Started %s.", req.target()), nil
}

// Fail moves an InProgress node to Failed.
func (h *Handler) Fail(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	node, resp, ok := h.resolve(req)
	if !ok {
		return resp, nil
	}
	if err := h.transition(node, work.StateFailed); err != nil {
		return failure("%v", err), nil
	}
	return success("Marked %s failed.", req.target()), nil
}

func (h *Handler) transition(node *work.Node, to work.State) error {
	from := node.State()
	if err := node.TransitionTo(to); err != nil {
		h.logger.Warn("transition rejected", zap.Error(err))
		return err
	}
	h.metrics.RecordTransition(node.Kind().String(), to.String())
	h.logger.Debug("transition",
		zap.String("kind", node.Kind().String()),
		zap.String("id", node.ID()),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	return nil
}

// resolve finds the node a request addresses. When it fails the returned
// response explains why.
func (h *Handler) resolve(req Request) (*work.Node, Response, bool) {
	if req.ID == "" {
		return nil, failure("id is required"), false
	}
	if req.Module != "" && req.Module != h.module.ID() {
		return nil, failure("Unknown module %q; this session works on %q.", req.Module, h.module.ID()), false
	}

	if req.Subtask != "" && req.Scope != verify.ScopeTask {
		return nil, failure("Subtask %q needs scope %q, not %q.", req.Subtask, verify.ScopeTask, req.Scope), false
	}

	switch req.Scope {
	case verify.ScopeModule:
		if req.ID != h.module.ID() {
			return nil, failure("Unknown module %q; this session works on %q.", req.ID, h.module.ID()), false
		}
		return h.module.Node, Response{}, true
	case verify.ScopeComponent:
		c, err := h.module.Component(req.ID)
		if err != nil {
			return nil, failure("%v", err), false
		}
		return c.Node, Response{}, true
	case verify.ScopeTask:
		t, err := h.module.FindTask(req.Component, req.ID)
		if err != nil {
			return nil, failure("%v", err), false
		}
		if req.Subtask == "" {
			return t.Node, Response{}, true
		}
		st, err := t.Subtask(req.Subtask)
		if err != nil {
			return nil, failure("%v", err), false
		}
		return st.Node, Response{}, true
	default:
		return nil, failure("Unknown scope %q; expected task, component or module (name subtasks with a task scope and \"subtask\").", req.Scope), false
	}
}

// incomplete lists the children not yet marked complete. Each child has been
// closed through this handler, so own states are checked, not aggregates.
func incomplete(n *work.Node) []string {
	var open []string
	for _, c := range n.Children() {
		if c.State() != work.StateComplete {
			open = append(open, c.ID())
		}
	}
	return open
}
