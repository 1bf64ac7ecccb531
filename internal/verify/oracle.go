package verify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/thruflo/gantry/internal/logging"
	"github.com/thruflo/gantry/internal/metrics"
)

// Request describes what to verify.
type Request struct {
	Scope    Scope
	ID       string
	Evidence string
	Criteria []string
}

// Verdict is the oracle's answer. Gaps lists unmet criteria when the
// verdict fails.
type Verdict struct {
	Passed bool     `json:"passed"`
	Gaps   []string `json:"gaps,omitempty"`
}

// Verifier is the external oracle. It computes a verdict; gantry only
// records it.
type Verifier interface {
	Verify(ctx context.Context, req Request) (Verdict, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, req Request) (Verdict, error)

func (f VerifierFunc) Verify(ctx context.Context, req Request) (Verdict, error) {
	return f(ctx, req)
}

// maxGaps bounds how many output lines are kept from a failing command.
const maxGaps = 20

// CommandVerifier runs a shell command as the oracle. Exit status zero
// passes; on failure the last non-empty output lines become the gaps.
//
// The command sees GANTRY_VERIFY_SCOPE, GANTRY_VERIFY_ID and
// GANTRY_VERIFY_CRITERIA (newline separated) in its environment, and the
// evidence on stdin.
type CommandVerifier struct {
	Command string
	Dir     string
}

// Verify implements Verifier.
func (v *CommandVerifier) Verify(ctx context.Context, req Request) (Verdict, error) {
	if strings.TrimSpace(v.Command) == "" {
		return Verdict{}, errors.New("no verification command configured")
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", v.Command)
	cmd.Dir = v.Dir
	cmd.Env = append(os.Environ(),
		"GANTRY_VERIFY_SCOPE="+string(req.Scope),
		"GANTRY_VERIFY_ID="+req.ID,
		"GANTRY_VERIFY_CRITERIA="+strings.Join(req.Criteria, "\n"),
	)
	cmd.Stdin = strings.NewReader(req.Evidence)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Verdict{}, ctxErr
	}
	if err == nil {
		return Verdict{Passed: true}, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return Verdict{}, fmt.Errorf("failed to run verification command: %w", err)
	}

	gaps := tailLines(out.String(), maxGaps)
	if len(gaps) == 0 {
		gaps = []string{fmt.Sprintf("verification command exited with status %d", exitErr.ExitCode())}
	}
	return Verdict{Passed: false, Gaps: gaps}, nil
}

func tailLines(s string, n int) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(s))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Recorder runs the oracle and stores its verdict.
type Recorder struct {
	Verifier Verifier
	Tracker  *Tracker
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
}

// Run asks the oracle for a verdict and records it. Oracle errors are
// returned without recording anything.
func (r *Recorder) Run(ctx context.Context, req Request) (Verdict, error) {
	verdict, err := r.Verifier.Verify(ctx, req)
	if err != nil {
		return Verdict{}, fmt.Errorf("verify %s %q: %w", req.Scope, req.ID, err)
	}

	r.Tracker.RecordVerification(req.Scope, req.ID, verdict.Passed)
	r.Metrics.RecordVerification(string(req.Scope), verdict.Passed)
	r.Logger.Info("verification recorded",
		zap.String("scope", string(req.Scope)),
		zap.String("id", req.ID),
		zap.Bool("passed", verdict.Passed),
		zap.Int("gaps", len(verdict.Gaps)),
	)
	return verdict, nil
}
