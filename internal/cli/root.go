// Package cli implements the gantry command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// globalOptions are shared by every subcommand.
type globalOptions struct {
	dir string
}

// basePath resolves --dir to an absolute workspace root.
func (o *globalOptions) basePath() (string, error) {
	dir := o.dir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	return abs, nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "gantry",
		Short: "Progress control for autonomous coding agents",
		Long: `Gantry runs a coding agent against a plan of components and tasks.

Every iteration and every completion attempt passes through an ordered
guardrail pipeline: a premium request budget, churn detection on the task in
focus, a verification gate and tool discipline hints. Work only counts as
complete once an external verifier has passed it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	root.SetVersionTemplate("gantry version {{.Version}}\n")
	root.PersistentFlags().StringVarP(&opts.dir, "dir", "C", "", "workspace directory (default: current directory)")

	root.AddCommand(
		newInitCmd(opts),
		newPlanCmd(opts),
		newStatusCmd(opts),
		newVerifyCmd(opts),
		newStartCmd(opts),
		newCompleteCmd(opts),
		newFailCmd(opts),
		newCheckCmd(opts),
		newRunCmd(opts),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
