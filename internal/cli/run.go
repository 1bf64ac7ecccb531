package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thruflo/gantry/internal/logging"
	"github.com/thruflo/gantry/internal/loop"
	"github.com/thruflo/gantry/internal/metrics"
	"github.com/thruflo/gantry/internal/tools"
	"github.com/thruflo/gantry/internal/tui"
	"github.com/thruflo/gantry/internal/verify"
)

// HeadlessResult is the JSON printed by `gantry run --headless`.
type HeadlessResult struct {
	Module     string `json:"module"`
	Reason     string `json:"reason"`
	Iterations int    `json:"iterations"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		metricsAddr string
		headless    bool
	)

	cmd := &cobra.Command{
		Use:   "run [module]",
		Short: "Run the agent loop",
		Long: `Runs agent.command once per iteration until the module is complete or the
loop stops: iteration limit, no progress, a guardrail block or an interrupt.

When a guardrail blocks and stdin is a terminal, the trail is shown and you
are asked whether to continue. With --headless nobody is asked, every block
stops the run and the result is printed as JSON.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ws, err := openWorkspace(opts)
			if err != nil {
				return err
			}
			defer func() { _ = ws.logger.Sync() }()

			if ws.cfg.Agent.Command == "" {
				return errors.New("no agent configured; set agent.command in .gantry/config.yaml")
			}
			name, err := ws.resolveModule(args)
			if err != nil {
				return err
			}
			s, err := ws.loadSession(name)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = ws.cfg.Metrics.Addr
			}
			if metricsAddr != "" {
				shutdown, err := serveMetrics(metricsAddr, ws.logger)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			m := metrics.New()
			pipeline, err := ws.pipeline(s, m)
			if err != nil {
				return err
			}

			var recorder *verify.Recorder
			if ws.cfg.Verification.Command != "" {
				recorder = &verify.Recorder{
					Verifier: &verify.CommandVerifier{Command: ws.cfg.Verification.Command, Dir: ws.base},
					Tracker:  s.tracker,
					Logger:   ws.logger,
					Metrics:  m,
				}
			}

			out := cmd.OutOrStdout()
			term := &tui.Terminal{In: cmd.InOrStdin(), Out: out}

			loopOpts := loop.Options{
				Module:   s.module,
				Plan:     s.plan,
				Pipeline: pipeline,
				Agent:    &loop.CommandAgent{Command: ws.cfg.Agent.Command, Dir: ws.base},
				Tools:    tools.NewHandler(s.module, verify.NewGate(s.tracker), ws.logger, m),
				Recorder: recorder,
				Usage:    s.usage,
				Store:    ws.store,
				Limits:   ws.cfg.Limits,
				History:  s.history,
				Logger:   ws.logger,
				Metrics:  m,
			}
			if !headless {
				loopOpts.Confirmer = tui.NewPrompter(term)
			}

			l, err := loop.New(loopOpts)
			if err != nil {
				return err
			}
			res := l.Run(ctx)

			if headless {
				if err := printHeadless(out, s, res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, tui.RenderResult(s.module.ID(), res, term.Width()))
				if err := tui.NewNotifier(out).NotifyExit(s.module.ID(), res, term.Interactive()); err != nil {
					ws.logger.Warn("failed to send notification", zap.Error(err))
				}
			}

			if res.Reason == loop.ExitReasonCrash {
				return fmt.Errorf("loop crashed: %w", res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default: metrics.addr)")
	cmd.Flags().BoolVar(&headless, "headless", false, "never prompt; print the result as JSON (for scripts and CI)")
	return cmd
}

func printHeadless(out io.Writer, s *session, res loop.Result) error {
	completed, total := loop.CalculateProgress(s.module)
	hr := HeadlessResult{
		Module:     s.module.ID(),
		Reason:     res.Reason.String(),
		Iterations: res.Iterations,
		Completed:  completed,
		Total:      total,
		Message:    res.Message,
	}
	if res.Error != nil {
		hr.Error = res.Error.Error()
	}
	output, err := json.MarshalIndent(hr, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal headless result: %w", err)
	}
	fmt.Fprintln(out, string(output))
	return nil
}

// serveMetrics exposes the default Prometheus registry on addr until the
// returned function is called.
func serveMetrics(addr string, logger *logging.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
