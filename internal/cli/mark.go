package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thruflo/gantry/internal/metrics"
	"github.com/thruflo/gantry/internal/tools"
	"github.com/thruflo/gantry/internal/verify"
)

func newCompleteCmd(opts *globalOptions) *cobra.Command {
	return newToolCmd(opts, tools.ToolMarkComplete, "complete", "Mark a node complete",
		`Marks an in-progress task, component or the module complete through the
same tool handler the agent uses. The node needs a passing verification on
record and every child complete. With --subtask, ticks off one of the task's
subtasks instead; subtasks need no verification.`)
}

func newStartCmd(opts *globalOptions) *cobra.Command {
	return newToolCmd(opts, tools.ToolStart, "start", "Move a pending or failed node to in progress", "")
}

func newFailCmd(opts *globalOptions) *cobra.Command {
	return newToolCmd(opts, tools.ToolFail, "fail", "Mark an in-progress node failed", "")
}

// newToolCmd exposes one of the agent's status tools to the human.
func newToolCmd(opts *globalOptions, tool, use, short, long string) *cobra.Command {
	var (
		module    string
		component string
		subtask   string
	)

	cmd := &cobra.Command{
		Use:   use + " <task|component|module> <id>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := verify.ParseScope(args[0])
			if err != nil {
				return err
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

			input, err := json.Marshal(tools.Request{Scope: scope, ID: args[1], Component: component, Subtask: subtask})
			if err != nil {
				return err
			}
			handler := tools.NewHandler(s.module, verify.NewGate(s.tracker), ws.logger, metrics.New())
			raw, err := handler.Dispatch(cmd.Context(), tool, input)
			if err != nil {
				return err
			}
			var resp tools.Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				return fmt.Errorf("failed to decode %s response: %w", tool, err)
			}
			if !resp.OK() {
				return errors.New(resp.Message)
			}
			if err := ws.saveSession(s); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Message)
			fmt.Fprintln(out, sessionStatusLine(s))
			return nil
		},
	}

	cmd.Flags().StringVarP(&module, "module", "m", "", "module (default: the only session)")
	cmd.Flags().StringVar(&component, "component", "", "component holding the task, when task IDs repeat")
	cmd.Flags().StringVar(&subtask, "subtask", "", "subtask of the named task to act on")
	return cmd
}
