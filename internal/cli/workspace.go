package cli

import (
	"errors"
	"fmt"

	"github.com/thruflo/gantry/internal/config"
	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/logging"
	"github.com/thruflo/gantry/internal/metrics"
	"github.com/thruflo/gantry/internal/state"
	"github.com/thruflo/gantry/internal/usage"
	"github.com/thruflo/gantry/internal/verify"
	"github.com/thruflo/gantry/internal/work"
)

// workspace is a directory holding .gantry/.
type workspace struct {
	base   string
	cfg    *config.Config
	store  *state.Store
	logger *logging.Logger
}

func openWorkspace(opts *globalOptions) (*workspace, error) {
	base, err := opts.basePath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(base)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &workspace{base: base, cfg: cfg, store: state.NewStore(base), logger: logger}, nil
}

// resolveModule picks the module named in args, or the only session when
// none is named.
func (w *workspace) resolveModule(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}

	sessions, err := w.store.ListSessions()
	if err != nil {
		return "", fmt.Errorf("failed to list sessions: %w", err)
	}
	switch len(sessions) {
	case 0:
		return "", errors.New("no sessions found; import a plan with 'gantry plan <file>'")
	case 1:
		return sessions[0].Module, nil
	default:
		return "", fmt.Errorf("%d sessions found; name the module", len(sessions))
	}
}

// session is everything persisted for one module, rebuilt in memory.
type session struct {
	info    *state.Session
	plan    *state.Plan
	module  *work.Module
	tracker *verify.Tracker
	usage   *usage.Tracker
	history []state.History
}

func (w *workspace) loadSession(module string) (*session, error) {
	info, err := w.store.GetSession(module)
	if err != nil {
		return nil, err
	}

	plan, err := w.store.LoadPlan(module)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("session %q has no plan; run 'gantry plan' first", module)
	}
	tree, err := plan.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild %q: %w", module, err)
	}

	records, err := w.store.LoadVerifications(module)
	if err != nil {
		return nil, err
	}
	tracker := verify.NewTracker()
	tracker.Restore(records)

	history, err := w.store.LoadHistory(module)
	if err != nil {
		return nil, err
	}

	u := usage.NewTracker()
	u.Restore(info.Usage)

	return &session{
		info:    info,
		plan:    plan,
		module:  tree,
		tracker: tracker,
		usage:   u,
		history: history,
	}, nil
}

// saveSession writes back the tree states, verdicts and usage.
func (w *workspace) saveSession(s *session) error {
	id := s.module.ID()
	s.plan.Capture(s.module)
	if err := w.store.SavePlan(id, s.plan); err != nil {
		return err
	}
	if err := w.store.SaveVerifications(id, s.tracker.Records()); err != nil {
		return err
	}
	return w.store.UpdateSession(id, func(info *state.Session) {
		info.Usage = s.usage.Snapshot()
	})
}

// pipeline builds the configured guardrails over the session's trackers.
func (w *workspace) pipeline(s *session, m *metrics.Metrics) (*guardrail.Pipeline, error) {
	return guardrail.NewStandardPipeline(
		w.cfg.GuardrailSettings(),
		s.usage,
		verify.NewGate(s.tracker),
		guardrail.WithLogger(w.logger),
		guardrail.WithMetrics(m),
	)
}
