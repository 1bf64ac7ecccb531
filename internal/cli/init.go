package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/thruflo/gantry/internal/config"
)

func newInitCmd(opts *globalOptions) *cobra.Command {
	var (
		force        bool
		agentCmd     string
		verifyCmd    string
		budget       int
		maxIteration int
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the .gantry/ directory",
		Long: `Creates .gantry/ with a config.yaml holding the default limits and
guardrail thresholds, and a sessions/ directory for imported plans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := opts.basePath()
			if err != nil {
				return err
			}

			dir := filepath.Join(base, config.Dir)
			if _, err := os.Stat(config.Path(base)); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", config.Path(base))
			}

			cfg := config.DefaultConfig()
			cfg.Agent.Command = agentCmd
			cfg.Verification.Command = verifyCmd
			if budget > 0 {
				cfg.Guardrails.Resource.PremiumRequestBudget = budget
			}
			if maxIteration > 0 {
				cfg.Limits.MaxIterations = maxIteration
			}
			if err := config.ValidateConfig(&cfg); err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Join(dir, "sessions"), 0o755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			if err := config.SaveConfig(base, &cfg); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("sessions/\n"), 0o644); err != nil {
				return fmt.Errorf("failed to write .gitignore: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", dir)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config.yaml")
	cmd.Flags().StringVar(&agentCmd, "agent", "", "shell command that runs one agent iteration")
	cmd.Flags().StringVar(&verifyCmd, "verifier", "", "shell command that verifies a task, component or module")
	cmd.Flags().IntVar(&budget, "budget", 0, "premium request budget (default 100)")
	cmd.Flags().IntVar(&maxIteration, "max-iterations", 0, "iteration limit (default 50)")
	return cmd
}
