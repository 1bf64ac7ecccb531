package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thruflo/gantry/internal/guardrail"
	"github.com/thruflo/gantry/internal/loop"
	"github.com/thruflo/gantry/internal/metrics"
	"github.com/thruflo/gantry/internal/tui"
	"github.com/thruflo/gantry/internal/verify"
)

func newCheckCmd(opts *globalOptions) *cobra.Command {
	var (
		module     string
		task       string
		iterations int
		boundary   string
	)

	cmd := &cobra.Command{
		Use:   "check [module]",
		Short: "Evaluate the guardrail pipeline once",
		Long: `Runs the configured guardrails against the session as it stands and prints
the trail. Nothing is saved.

By default the task in focus is checked with the attempts recorded in the
session history. Use --boundary component:<id> (or task:, module:) to see
whether a node could be closed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if module == "" && len(args) > 0 {
				module = args[0]
			}

			ws, err := openWorkspace(opts)
			if err != nil {
				return err
			}
			name, err := ws.resolveModule([]string{module})
			if err != nil {
				return err
			}
			s, err := ws.loadSession(name)
			if err != nil {
				return err
			}

			var ctxOpts []guardrail.ContextOption
			if boundary != "" {
				scope, id, err := parseBoundary(boundary)
				if err != nil {
					return err
				}
				if _, err := lookup(s.module, scope, id); err != nil {
					return err
				}
				ctxOpts = append(ctxOpts, guardrail.WithBoundary(scope, id))
			} else {
				if task == "" {
					if t := loop.Focus(s.module); t != nil {
						task = t.ID()
					}
				}
				if task != "" {
					if _, err := s.module.FindTask("", task); err != nil {
						return err
					}
					if !cmd.Flags().Changed("iterations") {
						iterations = loop.Attempts(s.history, task)
					}
					ctxOpts = append(ctxOpts, guardrail.WithTask(task), guardrail.WithIterations(iterations))
				}
			}

			gc, err := guardrail.NewContext(s.module.ID(), ctxOpts...)
			if err != nil {
				return err
			}
			pipeline, err := ws.pipeline(s, metrics.New())
			if err != nil {
				return err
			}
			trail, err := pipeline.Evaluate(cmd.Context(), gc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			subject := "module " + s.module.ID()
			switch {
			case boundary != "":
				subject = "closing " + boundary
			case task != "":
				subject = fmt.Sprintf("task %s (%d prior attempts)", task, iterations)
			}
			fmt.Fprintf(out, "Checking %s\n\n", subject)
			fmt.Fprintln(out, tui.RenderTrail(trail, tui.NewTerminal(out).Width()))
			fmt.Fprintf(out, "\nOutcome: %s\n", tui.FormatOutcome(guardrail.Worst(trail)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&module, "module", "m", "", "module (default: the only session)")
	cmd.Flags().StringVar(&task, "task", "", "task to check (default: the task in focus)")
	cmd.Flags().IntVar(&iterations, "iterations", 0, "prior attempts on the task (default: from history)")
	cmd.Flags().StringVar(&boundary, "boundary", "", "check closing a node, as scope:id")
	return cmd
}

func parseBoundary(s string) (verify.Scope, string, error) {
	scope, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return "", "", fmt.Errorf("invalid boundary %q: want scope:id", s)
	}
	parsed, err := verify.ParseScope(scope)
	if err != nil {
		return "", "", err
	}
	return parsed, id, nil
}
