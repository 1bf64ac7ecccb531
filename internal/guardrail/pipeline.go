package guardrail

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/thruflo/gantry/internal/logging"
	"github.com/thruflo/gantry/internal/metrics"
)

const tracerName = "github.com/thruflo/gantry/internal/guardrail"

// Evaluation is one entry of a pipeline trail.
type Evaluation struct {
	Guardrail string
	Order     int
	Result    Result
}

// Pipeline evaluates registered guardrails in ascending Order. It is meant
// for a single control flow; Register must not race with Evaluate.
type Pipeline struct {
	guardrails []Guardrail
	logger     *logging.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLogger logs warns and blocks.
func WithLogger(l *logging.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics records outcomes and durations.
func WithMetrics(m *metrics.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

// NewPipeline creates a pipeline holding guardrails in registration order.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// Register appends guardrails. Registration order breaks ties in Order.
func (p *Pipeline) Register(gs ...Guardrail) {
	p.guardrails = append(p.guardrails, gs...)
}

// Guardrails returns the registered guardrails in evaluation order.
func (p *Pipeline) Guardrails() []Guardrail {
	ordered := make([]Guardrail, len(p.guardrails))
	copy(ordered, p.guardrails)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order() < ordered[j].Order()
	})
	return ordered
}

// Evaluate runs every guardrail sequentially and returns the ordered trail.
// A Block from a guardrail with ShortCircuitOnBlock ends the run early. If
// ctx is cancelled the run stops at once and ctx's error is returned with no
// trail; a guardrail error is returned the same way.
func (p *Pipeline) Evaluate(ctx context.Context, gc Context) ([]Evaluation, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "guardrail.Pipeline.Evaluate",
		trace.WithAttributes(attribute.String("gantry.module", gc.ModuleName())))
	defer span.End()

	task, _ := gc.TaskName()
	log := p.logger.With(zap.String("module", gc.ModuleName()), zap.String("task", task))

	ordered := p.Guardrails()
	trail := make([]Evaluation, 0, len(ordered))

	for _, g := range ordered {
		if err := ctx.Err(); err != nil {
			return p.abort(span, err)
		}

		result, err := g.Evaluate(ctx, gc)
		if err != nil {
			return p.abort(span, fmt.Errorf("guardrail %s: %w", g.Name(), err))
		}
		if err := ctx.Err(); err != nil {
			return p.abort(span, err)
		}
		if result == nil {
			return p.abort(span, fmt.Errorf("guardrail %s returned no result", g.Name()))
		}

		trail = append(trail, Evaluation{Guardrail: g.Name(), Order: g.Order(), Result: result})
		p.metrics.RecordGuardrail(g.Name(), result.Outcome().String())
		span.AddEvent("guardrail", trace.WithAttributes(
			attribute.String("gantry.guardrail", g.Name()),
			attribute.String("gantry.outcome", result.Outcome().String()),
		))

		switch r := result.(type) {
		case Warn:
			log.Warn("guardrail warning", zap.String("guardrail", g.Name()), zap.String("message", r.Message()))
		case Block:
			log.Warn("guardrail blocked", zap.String("guardrail", g.Name()), zap.String("message", r.Message()))
			if g.ShortCircuitOnBlock() {
				p.metrics.RecordShortCircuit(g.Name())
				span.SetAttributes(attribute.String("gantry.short_circuit", g.Name()))
				p.metrics.ObserveEvaluation(time.Since(start).Seconds())
				return trail, nil
			}
		}
	}

	p.metrics.ObserveEvaluation(time.Since(start).Seconds())
	return trail, nil
}

func (p *Pipeline) abort(span trace.Span, err error) ([]Evaluation, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// IsBlocked reports whether any evaluation in the trail blocked.
func IsBlocked(trail []Evaluation) bool {
	return len(Blocks(trail)) > 0
}

// Blocks returns the blocking entries of a trail.
func Blocks(trail []Evaluation) []Evaluation {
	var out []Evaluation
	for _, e := range trail {
		if e.Result.Outcome() == OutcomeBlock {
			out = append(out, e)
		}
	}
	return out
}

// Warnings returns the warn messages of a trail in order.
func Warnings(trail []Evaluation) []string {
	var out []string
	for _, e := range trail {
		if w, ok := e.Result.(Warn); ok {
			out = append(out, w.Message())
		}
	}
	return out
}

// Worst returns the most severe outcome in the trail.
func Worst(trail []Evaluation) Outcome {
	worst := OutcomePass
	for _, e := range trail {
		if o := e.Result.Outcome(); o > worst {
			worst = o
		}
	}
	return worst
}

// Summary renders the trail as one line per guardrail.
func Summary(trail []Evaluation) string {
	var sb strings.Builder
	for _, e := range trail {
		fmt.Fprintf(&sb, "[%d] %s: %s\n", e.Order, e.Guardrail, e.Result.Outcome())
		if msg := MessageOf(e.Result); msg != "" {
			fmt.Fprintf(&sb, "      %s\n", msg)
		}
	}
	return sb.String()
}
