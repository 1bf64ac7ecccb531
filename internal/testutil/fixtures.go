package testutil

import (
	"github.com/thruflo/gantry/internal/state"
)

// SampleModule is the module id of SamplePlanYAML.
const SampleModule = "billing"

// SamplePlanYAML is a plan document as passed to `gantry plan`.
const SamplePlanYAML = `id: billing
name: Billing
criteria:
  - Invoices can be issued and refunded end to end.
components:
  - id: api
    name: API
    criteria:
      - Every endpoint is covered by an integration test.
    tasks:
      - id: invoices
        name: Invoices endpoint
        criteria:
          - POST /invoices returns 201 with the invoice id.
        subtasks:
          - id: schema
            name: Request schema
          - id: handler
            name: Handler
      - id: refunds
        name: Refunds endpoint
        criteria:
          - POST /refunds rejects amounts above the invoice total.
  - id: worker
    name: Worker
    tasks:
      - id: reminders
        name: Payment reminders
`

// SamplePlan returns SamplePlanYAML parsed. Returns a new plan each time to
// prevent test interference.
func SamplePlan() *state.Plan {
	p, err := state.ParsePlan([]byte(SamplePlanYAML))
	if err != nil {
		panic(err)
	}
	return p
}

// SampleHistory returns history entries showing steady progress.
func SampleHistory() []state.History {
	return []state.History{
		{Iteration: 1, Task: "invoices", Summary: "Added the request schema", Completed: 0, Outcome: "pass"},
		{Iteration: 2, Task: "invoices", Summary: "Invoices endpoint verified", Completed: 1, Outcome: "pass"},
		{Iteration: 3, Task: "refunds", Summary: "Refunds endpoint verified", Completed: 3, Outcome: "pass"},
	}
}

// SampleHistoryStuck returns history entries with no progress on one task.
func SampleHistoryStuck() []state.History {
	return []state.History{
		{Iteration: 1, Task: "invoices", Summary: "Attempted the handler", Completed: 0, Outcome: "pass"},
		{Iteration: 2, Task: "invoices", Summary: "Still failing", Completed: 0, Outcome: "pass"},
		{Iteration: 3, Task: "invoices", Summary: "No progress", Completed: 0, Outcome: "warn"},
	}
}
