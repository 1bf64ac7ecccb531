package loop

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/thruflo/gantry/internal/usage"
)

// Turn is what the agent is asked to do in one iteration.
type Turn struct {
	Iteration int      `json:"iteration"`
	Module    string   `json:"module"`
	Component string   `json:"component,omitempty"`
	Task      string   `json:"task,omitempty"`
	TaskName  string   `json:"task_name,omitempty"`
	Criteria  []string `json:"criteria,omitempty"`
	// Subtasks are the task's checklist items still open. Each is started
	// and marked complete with a task-scoped call naming the subtask.
	Subtasks []string `json:"subtasks,omitempty"`
	Attempt  int      `json:"attempt,omitempty"`
	Guidance []string `json:"guidance,omitempty"`
}

// ToolCall is a status tool invocation the agent wants applied.
type ToolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// VerificationRequest asks the oracle to judge a node.
type VerificationRequest struct {
	Scope    string `json:"scope"`
	ID       string `json:"id"`
	Evidence string `json:"evidence,omitempty"`
}

// Report is the agent's account of an iteration. The tool counters feed
// the next pipeline evaluation.
type Report struct {
	Summary        string                `json:"summary"`
	Blocked        string                `json:"blocked,omitempty"`
	ToolCallCount  int                   `json:"tool_call_count"`
	FileReads      map[string]int        `json:"file_reads,omitempty"`
	CommandRetries map[string]int        `json:"command_retries,omitempty"`
	Usage          usage.Snapshot        `json:"usage"`
	Calls          []ToolCall            `json:"calls,omitempty"`
	Verifications  []VerificationRequest `json:"verifications,omitempty"`
}

// Agent runs one iteration of work.
type Agent interface {
	RunIteration(ctx context.Context, turn Turn) (Report, error)
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, turn Turn) (Report, error)

func (f AgentFunc) RunIteration(ctx context.Context, turn Turn) (Report, error) {
	return f(ctx, turn)
}

// ErrNoReport is returned when an agent command prints no JSON report.
var ErrNoReport = errors.New("agent produced no report")

// CommandAgent runs a shell command once per iteration. The turn is passed
// as JSON on stdin and in GANTRY_TURN, with GANTRY_MODULE, GANTRY_COMPONENT,
// GANTRY_TASK, GANTRY_SUBTASKS (space separated) and GANTRY_ITERATION set
// for simple scripts. The command prints its Report as
// JSON on stdout; when stdout holds other output too, the last line that
// parses as a report wins.
type CommandAgent struct {
	Command string
	Dir     string
}

// RunIteration implements Agent.
func (a *CommandAgent) RunIteration(ctx context.Context, turn Turn) (Report, error) {
	if strings.TrimSpace(a.Command) == "" {
		return Report{}, errors.New("no agent command configured")
	}

	payload, err := json.Marshal(turn)
	if err != nil {
		return Report{}, fmt.Errorf("failed to encode turn: %w", err)
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", a.Command)
	cmd.Dir = a.Dir
	cmd.Env = append(os.Environ(),
		"GANTRY_TURN="+string(payload),
		"GANTRY_MODULE="+turn.Module,
		"GANTRY_COMPONENT="+turn.Component,
		"GANTRY_TASK="+turn.Task,
		"GANTRY_SUBTASKS="+strings.Join(turn.Subtasks, " "),
		"GANTRY_ITERATION="+strconv.Itoa(turn.Iteration),
	)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Report{}, ctxErr
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Report{}, fmt.Errorf("agent command failed: %w", err)
		}
		return Report{}, fmt.Errorf("agent command failed: %w: %s", err, msg)
	}

	return parseReport(stdout.Bytes())
}

func parseReport(out []byte) (Report, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return Report{}, ErrNoReport
	}
	var r Report
	if err := json.Unmarshal(trimmed, &r); err == nil {
		return r, nil
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var candidate Report
		if err := json.Unmarshal([]byte(line), &candidate); err == nil {
			return candidate, nil
		}
	}
	return Report{}, ErrNoReport
}
