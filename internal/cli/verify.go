package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thruflo/gantry/internal/verify"
	"github.com/thruflo/gantry/internal/work"
)

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	var (
		module   string
		pass     bool
		fail     bool
		gaps     []string
		evidence string
	)

	cmd := &cobra.Command{
		Use:   "verify <task|component|module> <id>",
		Short: "Record a verification verdict",
		Long: `Asks the configured verifier (verification.command) to judge a node and
records the verdict. Use --pass or --fail to record a human verdict instead.

Only a passing verdict lets the node be marked complete.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pass && fail {
				return errors.New("--pass and --fail are mutually exclusive")
			}
			scope, err := verify.ParseScope(args[0])
			if err != nil {
				return err
			}
			id := args[1]

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

			kind, err := lookup(s.module, scope, id)
			if err != nil {
				return err
			}

			var verifier verify.Verifier
			switch {
			case pass || fail:
				verifier = verify.VerifierFunc(func(context.Context, verify.Request) (verify.Verdict, error) {
					return verify.Verdict{Passed: pass, Gaps: gaps}, nil
				})
			case ws.cfg.Verification.Command != "":
				verifier = &verify.CommandVerifier{Command: ws.cfg.Verification.Command, Dir: ws.base}
			default:
				return errors.New("no verifier configured; set verification.command or pass --pass/--fail")
			}

			recorder := &verify.Recorder{Verifier: verifier, Tracker: s.tracker, Logger: ws.logger}
			verdict, err := recorder.Run(cmd.Context(), verify.Request{
				Scope:    scope,
				ID:       id,
				Evidence: evidence,
				Criteria: s.plan.CriteriaFor(kind, id),
			})
			if err != nil {
				return err
			}
			if err := ws.saveSession(s); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if verdict.Passed {
				fmt.Fprintf(out, "Verification of %s %q passed.\n", scope, id)
				return nil
			}
			fmt.Fprintf(out, "Verification of %s %q failed.\n", scope, id)
			if len(verdict.Gaps) > 0 {
				fmt.Fprintf(out, "  - %s\n", strings.Join(verdict.Gaps, "\n  - "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&module, "module", "m", "", "module (default: the only session)")
	cmd.Flags().BoolVar(&pass, "pass", false, "record a passing verdict without running the verifier")
	cmd.Flags().BoolVar(&fail, "fail", false, "record a failing verdict without running the verifier")
	cmd.Flags().StringArrayVar(&gaps, "gap", nil, "unmet criterion to record with --fail (repeatable)")
	cmd.Flags().StringVar(&evidence, "evidence", "", "evidence passed to the verifier on stdin")
	return cmd
}

// lookup checks that scope/id names a node of m and returns its kind.
func lookup(m *work.Module, scope verify.Scope, id string) (work.Kind, error) {
	switch scope {
	case verify.ScopeModule:
		if id != m.ID() {
			return 0, fmt.Errorf("module %q: %w (this session works on %q)", id, work.ErrNotFound, m.ID())
		}
		return work.KindModule, nil
	case verify.ScopeComponent:
		if _, err := m.Component(id); err != nil {
			return 0, err
		}
		return work.KindComponent, nil
	default:
		if _, err := m.FindTask("", id); err != nil {
			return 0, err
		}
		return work.KindTask, nil
	}
}
