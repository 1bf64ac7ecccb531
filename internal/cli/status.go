package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/gantry/internal/loop"
	"github.com/thruflo/gantry/internal/tui"
)

// progressWindow is how many recent iterations feed the progress rate.
const progressWindow = 5

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status [module]",
		Short: "Show session status",
		Long: `Without arguments, lists all sessions with their status and progress.
With a module argument, shows the work tree, usage and recent history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				return listSessions(out, ws)
			}
			return showSession(out, ws, args[0])
		},
	}
}

func listSessions(out io.Writer, ws *workspace) error {
	sessions, err := ws.store.ListSessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	moduleWidth := len("MODULE")
	statusWidth := len("STATUS")
	for _, s := range sessions {
		moduleWidth = max(moduleWidth, len(s.Module))
		statusWidth = max(statusWidth, len(s.Status))
	}

	fmt.Fprintf(out, "%-*s  %-*s  %-10s  %s\n", moduleWidth, "MODULE", statusWidth, "STATUS", "PROGRESS", "ITERATIONS")
	fmt.Fprintf(out, "%s  %s  %s  %s\n", strings.Repeat("-", moduleWidth), strings.Repeat("-", statusWidth), "----------", "----------")

	for _, s := range sessions {
		progress := "-"
		if loaded, err := ws.loadSession(s.Module); err == nil {
			completed, total := loop.CalculateProgress(loaded.module)
			progress = fmt.Sprintf("%d/%d", completed, total)
		}
		fmt.Fprintf(out, "%-*s  %-*s  %-10s  %d\n", moduleWidth, s.Module, statusWidth, s.Status, progress, s.Iterations)
	}
	return nil
}

func showSession(out io.Writer, ws *workspace, module string) error {
	s, err := ws.loadSession(module)
	if err != nil {
		return err
	}
	info := s.info

	fmt.Fprintln(out, "Session Details")
	fmt.Fprintln(out, "===============")
	fmt.Fprintln(out)
	printField(out, "Module", info.Module)
	printField(out, "Session", info.ID)
	if info.PlanSource != "" {
		printField(out, "Plan", info.PlanSource)
	}
	printField(out, "Started", formatTime(info.StartedAt))
	printField(out, "Status", info.Status)
	if info.ExitReason != "" {
		printField(out, "Last Exit", info.ExitReason)
	}
	fmt.Fprintln(out)

	completed, total := loop.CalculateProgress(s.module)
	fmt.Fprintln(out, "Progress")
	fmt.Fprintln(out, "--------")
	printField(out, "Nodes", tui.RenderProgress(completed, total, 50))
	printField(out, "Iterations", fmt.Sprintf("%d", info.Iterations))
	if len(s.history) >= 2 {
		printField(out, "Rate", fmt.Sprintf("%.2f nodes/iteration", loop.ProgressRate(s.history, progressWindow)))
	}
	printField(out, "Premium", fmt.Sprintf("%d of %d requests", info.Usage.PremiumRequests, ws.cfg.Guardrails.Resource.PremiumRequestBudget))
	printField(out, "Tokens", fmt.Sprintf("%d in / %d out", info.Usage.InputTokens, info.Usage.OutputTokens))
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		if last.Summary != "" {
			printField(out, "Last Summary", last.Summary)
		}
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, tui.RenderTree(s.module))
	return nil
}

func printField(out io.Writer, label, value string) {
	fmt.Fprintf(out, "  %-14s %s\n", label+":", value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// sessionStatusLine is a one-line summary printed after mutations.
func sessionStatusLine(s *session) string {
	completed, total := loop.CalculateProgress(s.module)
	return fmt.Sprintf("%s: %d/%d nodes complete (%s)", s.module.ID(), completed, total, s.module.ComputeAggregateState())
}
