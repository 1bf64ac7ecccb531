package loop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/thruflo/gantry/internal/config"
	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/logging"
	"github.com/thruflo/gantry/internal/metrics"
	"github.com/thruflo/gantry/internal/state"
	"github.com/thruflo/gantry/internal/tools"
	"github.com/thruflo/gantry/internal/usage"
	"github.com/thruflo/gantry/internal/verify"
	"github.com/thruflo/gantry/internal/work"
)

const tracerName = "github.com/thruflo/gantry/internal/loop"

// ExitReason indicates why the loop stopped.
type ExitReason int

const (
	ExitReasonUnknown       ExitReason = iota
	ExitReasonDone                     // Module complete
	ExitReasonMaxIterations            // Hit iteration limit
	ExitReasonBlocked                  // A guardrail blocked and nobody overrode it, or the agent gave up
	ExitReasonStuck                    // No progress for N iterations
	ExitReasonCancelled                // Context cancelled
	ExitReasonCrash                    // Agent, oracle wiring or state machine failure
)

// String returns a human-readable description of the exit reason.
func (r ExitReason) String() string {
	switch r {
	case ExitReasonDone:
		return "completed"
	case ExitReasonMaxIterations:
		return "max iterations"
	case ExitReasonBlocked:
		return "blocked"
	case ExitReasonStuck:
		return "stuck"
	case ExitReasonCancelled:
		return "cancelled"
	case ExitReasonCrash:
		return "crash"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a loop execution.
type Result struct {
	Reason     ExitReason
	Iterations int
	// Trail is the pipeline trail that stopped the loop, when a guardrail did.
	Trail   []guardrail.Evaluation
	Message string
	Error   error
}

// Confirmer asks a human whether to continue past a Block.
type Confirmer interface {
	Confirm(ctx context.Context, trail []guardrail.Evaluation) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, trail []guardrail.Evaluation) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, trail []guardrail.Evaluation) (bool, error) {
	return f(ctx, trail)
}

// Options holds the collaborators of a Loop. Module, Pipeline, Agent and
// Tools are required.
type Options struct {
	Module   *work.Module
	Plan     *state.Plan // acceptance criteria and persisted states
	Pipeline *guardrail.Pipeline
	Agent    Agent
	Tools    *tools.Handler
	Recorder *verify.Recorder // nil disables agent-requested verification
	Usage    *usage.Tracker
	// Confirmer is consulted on a Block. Without one every Block ends the run.
	Confirmer Confirmer
	Store     *state.Store // nil keeps everything in memory
	Limits    config.Limits
	History   []state.History // prior iterations when resuming
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
	Now       func() time.Time
}

// Loop manages the agent iteration loop for one module.
type Loop struct {
	module    *work.Module
	plan      *state.Plan
	pipeline  *guardrail.Pipeline
	agent     Agent
	tools     *tools.Handler
	recorder  *verify.Recorder
	usage     *usage.Tracker
	confirmer Confirmer
	store     *state.Store
	limits    config.Limits
	logger    *logging.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time

	iteration int
	history   []state.History
	attempts  map[string]int
	last      *Report
	guidance  []string
}

// New validates opts and creates a Loop. Zero limits take the defaults.
func New(opts Options) (*Loop, error) {
	switch {
	case opts.Module == nil:
		return nil, errors.New("loop: module is required")
	case opts.Pipeline == nil:
		return nil, errors.New("loop: guardrail pipeline is required")
	case opts.Agent == nil:
		return nil, errors.New("loop: agent is required")
	case opts.Tools == nil:
		return nil, errors.New("loop: tool handler is required")
	}

	l := &Loop{
		module:    opts.Module,
		plan:      opts.Plan,
		pipeline:  opts.Pipeline,
		agent:     opts.Agent,
		tools:     opts.Tools,
		recorder:  opts.Recorder,
		usage:     opts.Usage,
		confirmer: opts.Confirmer,
		store:     opts.Store,
		limits:    opts.Limits,
		logger:    opts.Logger.With(zap.String("module", opts.Module.ID())),
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		now:       opts.Now,
		history:   append([]state.History(nil), opts.History...),
		attempts:  make(map[string]int),
	}
	if l.usage == nil {
		l.usage = usage.NewTracker()
	}
	if l.limits.MaxIterations <= 0 {
		l.limits.MaxIterations = config.DefaultMaxIterations
	}
	if l.limits.NoProgressThreshold <= 0 {
		l.limits.NoProgressThreshold = config.DefaultNoProgressThreshold
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}
	if l.now == nil {
		l.now = time.Now
	}
	if n := len(l.history); n > 0 {
		last := l.history[n-1]
		l.iteration = last.Iteration
		if last.Task != "" {
			l.attempts[last.Task] = Attempts(l.history, last.Task)
		}
	}
	return l, nil
}

// History returns the iterations recorded so far, resumed ones included.
func (l *Loop) History() []state.History {
	return append([]state.History(nil), l.history...)
}

// Run executes the iteration loop until an exit condition is met.
func (l *Loop) Run(ctx context.Context) Result {
	for {
		if err := ctx.Err(); err != nil {
			return l.finish(Result{Reason: ExitReasonCancelled, Error: err})
		}

		done, err := l.finalize(ctx)
		if err != nil {
			return l.finish(l.failure(ctx, err))
		}
		if done {
			return l.finish(Result{Reason: ExitReasonDone})
		}

		if l.iteration >= l.limits.MaxIterations {
			return l.finish(Result{Reason: ExitReasonMaxIterations})
		}

		l.iteration++
		if res, stop := l.step(ctx); stop {
			return l.finish(res)
		}

		if DetectStuck(l.history, l.limits.NoProgressThreshold) {
			return l.finish(Result{
				Reason:  ExitReasonStuck,
				Message: fmt.Sprintf("no progress in the last %d iterations", l.limits.NoProgressThreshold),
			})
		}
	}
}

// step runs one iteration. It reports stop=true with the exit result when
// the loop must end.
func (l *Loop) step(ctx context.Context) (Result, bool) {
	ctx, span := l.tracer.Start(ctx, "loop.iteration",
		trace.WithAttributes(
			attribute.String("gantry.module", l.module.ID()),
			attribute.Int("gantry.iteration", l.iteration),
		))
	defer span.End()

	task := l.focus()
	turn := Turn{Iteration: l.iteration, Module: l.module.ID()}
	var opts []guardrail.ContextOption

	if task != nil {
		if err := l.start(task); err != nil {
			return l.spanFailure(ctx, span, err), true
		}
		id := task.ID()
		turn.Component = task.Component().ID()
		turn.Task = id
		turn.TaskName = task.Name()
		turn.Criteria = l.criteria(work.KindTask, id)
		turn.Subtasks = openSubtasks(task)
		turn.Attempt = l.attempts[id] + 1
		opts = append(opts, guardrail.WithTask(id), guardrail.WithIterations(l.attempts[id]))
		span.SetAttributes(attribute.String("gantry.task", id))
	}
	if l.last != nil {
		opts = append(opts,
			guardrail.WithToolCalls(l.last.ToolCallCount),
			guardrail.WithFileReads(l.last.FileReads),
			guardrail.WithCommandRetries(l.last.CommandRetries),
		)
	}

	gc, err := guardrail.NewContext(l.module.ID(), opts...)
	if err != nil {
		return l.spanFailure(ctx, span, err), true
	}
	trail, err := l.pipeline.Evaluate(ctx, gc)
	if err != nil {
		return l.spanFailure(ctx, span, err), true
	}

	var overridden []string
	if guardrail.IsBlocked(trail) {
		approved, err := l.confirm(ctx, trail)
		if err != nil {
			return l.spanFailure(ctx, span, err), true
		}
		if !approved {
			return Result{Reason: ExitReasonBlocked, Trail: trail, Message: blockMessage(trail)}, true
		}
		overridden = l.override(trail, turn.Task)
	}

	turn.Guidance = append(l.guidance, guardrail.Warnings(trail)...)
	l.guidance = nil

	l.logger.Info("iteration started",
		zap.Int("iteration", l.iteration),
		zap.String("task", turn.Task),
		zap.Int("attempt", turn.Attempt),
		zap.Int("guidance", len(turn.Guidance)),
	)

	report, err := l.agent.RunIteration(ctx, turn)
	if err != nil {
		return l.spanFailure(ctx, span, fmt.Errorf("agent iteration %d: %w", l.iteration, err)), true
	}
	l.metrics.RecordIteration()

	if err := l.usage.Add(report.Usage); err != nil {
		return l.spanFailure(ctx, span, fmt.Errorf("agent iteration %d: %w", l.iteration, err)), true
	}

	for _, req := range report.Verifications {
		if err := l.verify(ctx, req); err != nil {
			return l.spanFailure(ctx, span, err), true
		}
	}
	for _, call := range report.Calls {
		if err := l.dispatch(ctx, call); err != nil {
			return l.spanFailure(ctx, span, err), true
		}
	}

	if task != nil {
		if task.State() == work.StateComplete {
			delete(l.attempts, task.ID())
		} else {
			l.attempts[task.ID()]++
		}
	}
	l.last = &report

	completed, _ := CalculateProgress(l.module)
	entry := state.History{
		Iteration:  l.iteration,
		Task:       turn.Task,
		Summary:    report.Summary,
		Completed:  completed,
		Outcome:    guardrail.Worst(trail).String(),
		Warnings:   guardrail.Warnings(trail),
		Overridden: overridden,
		RecordedAt: l.now().UTC(),
	}
	l.history = append(l.history, entry)
	if err := l.persist(&entry); err != nil {
		return l.spanFailure(ctx, span, err), true
	}

	if report.Blocked != "" {
		return Result{Reason: ExitReasonBlocked, Message: report.Blocked}, true
	}
	return Result{}, false
}

func (l *Loop) focus() *work.Task {
	return Focus(l.module)
}

// openSubtasks lists the checklist items of t not yet complete.
func openSubtasks(t *work.Task) []string {
	var open []string
	for _, s := range t.Subtasks() {
		if s.State() != work.StateComplete {
			open = append(open, s.ID())
		}
	}
	return open
}

// start moves the focus task and its ancestors to InProgress. A Failed task
// is retried.
func (l *Loop) start(t *work.Task) error {
	for _, n := range []*work.Node{l.module.Node, t.Component().Node, t.Node} {
		switch n.State() {
		case work.StatePending, work.StateFailed:
			if err := l.transition(n, work.StateInProgress); err != nil {
				return err
			}
		}
	}
	return nil
}

// finalize closes components, then the module, whose children are all
// complete. Each close is a completion attempt evaluated by the pipeline and
// then put through the tool handler, so the verification gate decides it
// whatever guardrails are configured. A refusal leaves the node open and
// tells the agent what is missing. It reports whether the module is
// complete.
func (l *Loop) finalize(ctx context.Context) (bool, error) {
	for _, c := range l.module.Components() {
		if c.State() == work.StateComplete || !childrenComplete(c.Node) {
			continue
		}
		if _, err := l.close(ctx, c.Node, verify.ScopeComponent); err != nil {
			return false, err
		}
	}

	if l.module.State() != work.StateComplete && childrenComplete(l.module.Node) {
		if _, err := l.close(ctx, l.module.Node, verify.ScopeModule); err != nil {
			return false, err
		}
	}
	return l.module.State() == work.StateComplete, nil
}

func (l *Loop) close(ctx context.Context, n *work.Node, scope verify.Scope) (bool, error) {
	gc, err := guardrail.NewContext(l.module.ID(), guardrail.WithBoundary(scope, n.ID()))
	if err != nil {
		return false, err
	}
	trail, err := l.pipeline.Evaluate(ctx, gc)
	if err != nil {
		return false, err
	}
	if blocks := guardrail.Blocks(trail); len(blocks) > 0 {
		for _, b := range blocks {
			l.guidance = append(l.guidance,
				closeGuidance(scope, n.ID(), guardrail.MessageOf(b.Result), b.Guardrail == guardrail.NameQualityGate))
		}
		return false, nil
	}

	if n.State() == work.StatePending || n.State() == work.StateFailed {
		if err := l.transition(n, work.StateInProgress); err != nil {
			return false, err
		}
	}
	resp, err := l.tools.MarkComplete(ctx, tools.Request{Scope: scope, ID: n.ID(), Module: l.module.ID()})
	if err != nil {
		return false, err
	}
	if !resp.OK() {
		l.guidance = append(l.guidance, closeGuidance(scope, n.ID(), resp.Message, !l.verified(scope, n.ID())))
		return false, nil
	}
	l.logger.Info("node closed", zap.String("scope", string(scope)), zap.String("id", n.ID()))
	return true, nil
}

func closeGuidance(scope verify.Scope, id, reason string, needsVerification bool) string {
	msg := fmt.Sprintf("Everything under %s %q is complete but it cannot be closed yet: %s", scope, id, reason)
	if needsVerification {
		msg += fmt.Sprintf(" Request a verification with scope %q and id %q.", scope, id)
	}
	return msg
}

func (l *Loop) verified(scope verify.Scope, id string) bool {
	return l.recorder != nil && l.recorder.Tracker != nil && l.recorder.Tracker.IsVerified(scope, id)
}

func childrenComplete(n *work.Node) bool {
	for _, c := range n.Children() {
		if c.State() != work.StateComplete {
			return false
		}
	}
	return true
}

func (l *Loop) transition(n *work.Node, to work.State) error {
	from := n.State()
	if err := n.TransitionTo(to); err != nil {
		return err
	}
	l.metrics.RecordTransition(n.Kind().String(), to.String())
	l.logger.Debug("transition",
		zap.String("kind", n.Kind().String()),
		zap.String("id", n.ID()),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	return nil
}

func (l *Loop) confirm(ctx context.Context, trail []guardrail.Evaluation) (bool, error) {
	if l.confirmer == nil {
		return false, nil
	}
	return l.confirmer.Confirm(ctx, trail)
}

// override lifts the blocks a human approved: guardrails that support it
// raise their limits, and a churn block restarts the task's attempt count.
func (l *Loop) override(trail []guardrail.Evaluation, task string) []string {
	byName := make(map[string]guardrail.Guardrail)
	for _, g := range l.pipeline.Guardrails() {
		byName[g.Name()] = g
	}

	var names []string
	for _, b := range guardrail.Blocks(trail) {
		names = append(names, b.Guardrail)
		g := byName[b.Guardrail]
		if o, ok := g.(guardrail.Overrider); ok {
			o.Override()
		}
		if _, ok := g.(*guardrail.ChurnDetection); ok && task != "" {
			l.attempts[task] = 0
		}
		l.logger.Warn("guardrail overridden", zap.String("guardrail", b.Guardrail), zap.String("task", task))
	}
	return names
}

func (l *Loop) verify(ctx context.Context, req VerificationRequest) error {
	if l.recorder == nil {
		l.guidance = append(l.guidance, "No verifier is configured; verification requests are ignored. Ask a human to record a verdict.")
		return nil
	}

	scope, err := verify.ParseScope(req.Scope)
	if err != nil {
		l.guidance = append(l.guidance, fmt.Sprintf("Verification request for %q rejected: %v", req.ID, err))
		return nil
	}

	kind := map[verify.Scope]work.Kind{
		verify.ScopeTask:      work.KindTask,
		verify.ScopeComponent: work.KindComponent,
		verify.ScopeModule:    work.KindModule,
	}[scope]

	verdict, err := l.recorder.Run(ctx, verify.Request{
		Scope:    scope,
		ID:       req.ID,
		Evidence: req.Evidence,
		Criteria: l.criteria(kind, req.ID),
	})
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		l.logger.Error("verification failed to run", zap.Error(err))
		l.guidance = append(l.guidance, fmt.Sprintf("Verification of %s %q could not run: %v", scope, req.ID, err))
	case verdict.Passed:
		l.guidance = append(l.guidance, fmt.Sprintf("Verification of %s %q passed. You can mark it complete.", scope, req.ID))
	default:
		msg := fmt.Sprintf("Verification of %s %q failed.", scope, req.ID)
		if len(verdict.Gaps) > 0 {
			msg += " Gaps:\n- " + strings.Join(verdict.Gaps, "\n- ")
		}
		l.guidance = append(l.guidance, msg)
	}
	return nil
}

func (l *Loop) dispatch(ctx context.Context, call ToolCall) error {
	out, err := l.tools.Dispatch(ctx, call.Tool, call.Input)
	switch {
	case errors.Is(err, tools.ErrBadRequest):
		l.guidance = append(l.guidance, fmt.Sprintf("Tool call %s rejected: %v", call.Tool, err))
		return nil
	case err != nil:
		return err
	}

	var resp tools.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return fmt.Errorf("decode %s response: %w", call.Tool, err)
	}
	if !resp.OK() {
		l.guidance = append(l.guidance, fmt.Sprintf("%s: %s", call.Tool, resp.Message))
	}
	return nil
}

func (l *Loop) criteria(kind work.Kind, id string) []string {
	if l.plan == nil {
		return nil
	}
	return l.plan.CriteriaFor(kind, id)
}

// persist writes the tree, verdicts, history and usage after an iteration.
func (l *Loop) persist(entry *state.History) error {
	if l.store == nil {
		return nil
	}
	if err := l.saveState(); err != nil {
		return err
	}
	if entry != nil {
		if err := l.store.AppendHistory(l.module.ID(), *entry); err != nil {
			return fmt.Errorf("persist history: %w", err)
		}
	}
	return l.updateSession(func(s *state.Session) {
		s.Status = state.SessionStatusRunning
	})
}

func (l *Loop) saveState() error {
	id := l.module.ID()
	if l.plan != nil {
		l.plan.Capture(l.module)
		if err := l.store.SavePlan(id, l.plan); err != nil {
			return fmt.Errorf("persist plan: %w", err)
		}
	}
	if l.recorder != nil && l.recorder.Tracker != nil {
		if err := l.store.SaveVerifications(id, l.recorder.Tracker.Records()); err != nil {
			return fmt.Errorf("persist verifications: %w", err)
		}
	}
	return nil
}

func (l *Loop) updateSession(fn func(*state.Session)) error {
	err := l.store.UpdateSession(l.module.ID(), func(s *state.Session) {
		s.Iterations = l.iteration
		s.Usage = l.usage.Snapshot()
		fn(s)
	})
	if errors.Is(err, state.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// finish stamps the iteration count, saves final state and logs the exit.
func (l *Loop) finish(res Result) Result {
	res.Iterations = l.iteration

	if l.store != nil {
		err := l.saveState()
		if err == nil {
			err = l.updateSession(func(s *state.Session) {
				s.Status = sessionStatus(res.Reason)
				s.ExitReason = res.Reason.String()
			})
		}
		if err != nil {
			l.logger.Error("failed to save session state", zap.Error(err))
			if res.Error == nil {
				res.Error = err
			}
		}
	}

	fields := []zap.Field{zap.Stringer("reason", res.Reason), zap.Int("iterations", res.Iterations)}
	if res.Message != "" {
		fields = append(fields, zap.String("message", res.Message))
	}
	if res.Error != nil {
		fields = append(fields, zap.Error(res.Error))
	}
	l.logger.Info("loop exited", fields...)
	return res
}

func sessionStatus(r ExitReason) string {
	switch r {
	case ExitReasonDone:
		return state.SessionStatusCompleted
	case ExitReasonBlocked:
		return state.SessionStatusBlocked
	default:
		return state.SessionStatusStopped
	}
}

// failure classifies err: cancellation ends the run quietly, anything else
// is a crash.
func (l *Loop) failure(ctx context.Context, err error) Result {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{Reason: ExitReasonCancelled, Error: err}
	}
	return Result{Reason: ExitReasonCrash, Error: err}
}

func (l *Loop) spanFailure(ctx context.Context, span trace.Span, err error) Result {
	res := l.failure(ctx, err)
	if res.Reason == ExitReasonCrash {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res
}

func blockMessage(trail []guardrail.Evaluation) string {
	var msgs []string
	for _, b := range guardrail.Blocks(trail) {
		msgs = append(msgs, fmt.Sprintf("%s: %s", b.Guardrail, guardrail.MessageOf(b.Result)))
	}
	return strings.Join(msgs, "; ")
}
