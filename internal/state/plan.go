package state

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/thruflo/gantry/internal/work"
)

// Plan is the persisted form of a work tree. Acceptance criteria live here
// rather than on the tree, since only verification reads them.
type Plan struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Criteria   []string        `yaml:"criteria,omitempty"`
	State      work.State      `yaml:"state,omitempty"`
	Components []ComponentPlan `yaml:"components"`
}

// ComponentPlan is a component entry of a Plan.
type ComponentPlan struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Criteria []string   `yaml:"criteria,omitempty"`
	State    work.State `yaml:"state,omitempty"`
	Tasks    []TaskPlan `yaml:"tasks"`
}

// TaskPlan is a task entry of a Plan.
type TaskPlan struct {
	ID       string        `yaml:"id"`
	Name     string        `yaml:"name"`
	Criteria []string      `yaml:"criteria,omitempty"`
	State    work.State    `yaml:"state,omitempty"`
	Subtasks []SubtaskPlan `yaml:"subtasks,omitempty"`
}

// SubtaskPlan is a subtask entry of a Plan.
type SubtaskPlan struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Criteria []string   `yaml:"criteria,omitempty"`
	State    work.State `yaml:"state,omitempty"`
}

// ErrInvalidPlan is wrapped by plan validation failures.
var ErrInvalidPlan = errors.New("invalid plan")

// LoadPlanFile reads and validates a plan document, such as one passed to
// `gantry plan`.
func LoadPlanFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes a plan document and checks that it builds.
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if _, err := p.Build(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Build constructs the work tree. Persisted states are restored by
// replaying legal transitions from Pending, so a document can never smuggle
// in a state the state machine could not reach.
func (p *Plan) Build() (*work.Module, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: module id is required", ErrInvalidPlan)
	}

	m := work.NewModule(p.ID, p.Name)
	for _, cp := range p.Components {
		if cp.ID == "" {
			return nil, fmt.Errorf("%w: component in module %q has no id", ErrInvalidPlan, p.ID)
		}
		c := work.NewComponent(cp.ID, cp.Name)
		if err := m.AddChild(c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
		}

		for _, tp := range cp.Tasks {
			if tp.ID == "" {
				return nil, fmt.Errorf("%w: task in component %q has no id", ErrInvalidPlan, cp.ID)
			}
			t := work.NewTask(tp.ID, tp.Name)
			if err := c.AddChild(t); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
			}

			for _, sp := range tp.Subtasks {
				if sp.ID == "" {
					return nil, fmt.Errorf("%w: subtask in task %q has no id", ErrInvalidPlan, tp.ID)
				}
				s := work.NewSubtask(sp.ID, sp.Name)
				if err := t.AddChild(s); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
				}
				if err := replay(s.Node, sp.State); err != nil {
					return nil, err
				}
			}
			if err := replay(t.Node, tp.State); err != nil {
				return nil, err
			}
		}
		if err := replay(c.Node, cp.State); err != nil {
			return nil, err
		}
	}
	if err := replay(m.Node, p.State); err != nil {
		return nil, err
	}
	return m, nil
}

// Capture copies the tree's states into the plan, keeping names and
// criteria. Nodes missing from the tree keep their recorded state.
func (p *Plan) Capture(m *work.Module) {
	p.State = m.State()
	for i := range p.Components {
		cp := &p.Components[i]
		c, err := m.Component(cp.ID)
		if err != nil {
			continue
		}
		cp.State = c.State()
		for j := range cp.Tasks {
			tp := &cp.Tasks[j]
			t, err := c.Task(tp.ID)
			if err != nil {
				continue
			}
			tp.State = t.State()
			for k := range tp.Subtasks {
				sp := &tp.Subtasks[k]
				if s, err := t.Subtask(sp.ID); err == nil {
					sp.State = s.State()
				}
			}
		}
	}
}

// CriteriaFor returns the acceptance criteria for a task, component or the
// module itself, looked up by ID.
func (p *Plan) CriteriaFor(kind work.Kind, id string) []string {
	switch kind {
	case work.KindModule:
		if id == p.ID {
			return p.Criteria
		}
	case work.KindComponent:
		for _, c := range p.Components {
			if c.ID == id {
				return c.Criteria
			}
		}
	case work.KindTask:
		for _, c := range p.Components {
			for _, t := range c.Tasks {
				if t.ID == id {
					return t.Criteria
				}
			}
		}
	case work.KindSubtask:
		for _, c := range p.Components {
			for _, t := range c.Tasks {
				for _, s := range t.Subtasks {
					if s.ID == id {
						return s.Criteria
					}
				}
			}
		}
	}
	return nil
}

// replayPaths lists the transitions that reach each state from Pending.
var replayPaths = map[work.State][]work.State{
	work.StatePending:    nil,
	work.StateInProgress: {work.StateInProgress},
	work.StateComplete:   {work.StateInProgress, work.StateComplete},
	work.StateFailed:     {work.StateInProgress, work.StateFailed},
}

func replay(n *work.Node, target work.State) error {
	path, ok := replayPaths[target]
	if !ok {
		return fmt.Errorf("%w: %s %q has unknown state %s", ErrInvalidPlan, n.Kind(), n.ID(), target)
	}
	for _, s := range path {
		if err := n.TransitionTo(s); err != nil {
			return fmt.Errorf("restore %s %q: %w", n.Kind(), n.ID(), err)
		}
	}
	return nil
}
