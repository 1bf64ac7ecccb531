package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thruflo/gantry/internal/state"
	"github.com/thruflo/gantry/internal/tui"
)

func newPlanCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Import a plan and create its session",
		Long: `Reads a plan YAML describing a module, its components, tasks and
subtasks with their acceptance criteria, and creates a session for it under
.gantry/sessions/<module>/.

States recorded in the file are restored by replaying legal transitions, so
a plan exported from another session resumes where it left off.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(opts)
			if err != nil {
				return err
			}

			path := args[0]
			if !filepath.IsAbs(path) {
				path = filepath.Join(ws.base, path)
			}
			plan, err := state.LoadPlanFile(path)
			if err != nil {
				return err
			}
			module, err := plan.Build()
			if err != nil {
				return err
			}

			if ws.store.SessionExists(plan.ID) {
				if !force {
					return fmt.Errorf("session %q already exists (use --force to replace it)", plan.ID)
				}
				if err := ws.store.DeleteSession(plan.ID); err != nil {
					return err
				}
			}

			if err := ws.store.CreateSession(&state.Session{Module: plan.ID, PlanSource: args[0]}); err != nil {
				return err
			}
			if err := ws.store.SavePlan(plan.ID, plan); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %s\n\n", plan.ID)
			fmt.Fprintln(out, tui.RenderTree(module))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing session for the module")
	return cmd
}
