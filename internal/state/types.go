package state

import (
	"time"

	"github.com/thruflo/gantry/internal/usage"
)

// Session represents a .gantry/sessions/<module>/session.yaml file.
type Session struct {
	ID         string         `yaml:"id"`
	Module     string         `yaml:"module"`
	PlanSource string         `yaml:"plan_source,omitempty"`
	StartedAt  time.Time      `yaml:"started_at"`
	UpdatedAt  time.Time      `yaml:"updated_at,omitempty"`
	Status     string         `yaml:"status"`
	Iterations int            `yaml:"iterations"`
	ExitReason string         `yaml:"exit_reason,omitempty"`
	Usage      usage.Snapshot `yaml:"usage"`
}

// Session status values.
const (
	SessionStatusIdle      = "idle"
	SessionStatusRunning   = "running"
	SessionStatusStopped   = "stopped"
	SessionStatusBlocked   = "blocked"
	SessionStatusCompleted = "completed"
)

// History represents a single iteration record in history.json. Completed
// counts complete nodes of every kind after the iteration.
type History struct {
	Iteration  int       `json:"iteration"`
	Task       string    `json:"task,omitempty"`
	Summary    string    `json:"summary"`
	Completed  int       `json:"completed"`
	Outcome    string    `json:"outcome"`
	Warnings   []string  `json:"warnings,omitempty"`
	Overridden []string  `json:"overridden,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
