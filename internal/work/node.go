package work

import (
	"fmt"
	"iter"
	"slices"
)

// Kind identifies which level of the hierarchy a node belongs to.
type Kind int

const (
	KindModule Kind = iota
	KindComponent
	KindTask
	KindSubtask
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindComponent:
		return "component"
	case KindTask:
		return "task"
	case KindSubtask:
		return "subtask"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node holds the state and structure shared by every level of the
// hierarchy. Callers normally work with the typed wrappers (Module,
// Component, Task, Subtask), which embed *Node.
type Node struct {
	id       string
	name     string
	kind     Kind
	state    State
	parent   *Node // non-owning, used for upward traversal only
	children []*Node
}

func newNode(kind Kind, id, name string) *Node {
	return &Node{id: id, name: name, kind: kind, state: StatePending}
}

// ID returns the node's identifier, unique among its siblings.
func (n *Node) ID() string { return n.id }

// Name returns the human-readable label.
func (n *Node) Name() string { return n.name }

// Kind returns the hierarchy level of the node.
func (n *Node) Kind() Kind { return n.kind }

// State returns the node's own stored state.
func (n *Node) State() State { return n.state }

// Parent returns the enclosing node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the ordered child list.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// Child returns the direct child with the given ID.
func (n *Node) Child(id string) (*Node, bool) {
	for _, c := range n.children {
		if c.id == id {
			return c, true
		}
	}
	return nil, false
}

// Path returns the IDs from the root down to this node.
func (n *Node) Path() []string {
	var path []string
	for cur := n; cur != nil; cur = cur.parent {
		path = append(path, cur.id)
	}
	slices.Reverse(path)
	return path
}

func (n *Node) addChild(child *Node) error {
	if child.parent != nil {
		return fmt.Errorf("%s %q already belongs to %s %q", child.kind, child.id, child.parent.kind, child.parent.id)
	}
	if _, exists := n.Child(child.id); exists {
		return fmt.Errorf("%s %q already has a child with id %q", n.kind, n.id, child.id)
	}
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// TransitionTo moves this node, and only this node, to target. Illegal
// transitions return a *TransitionError and leave the state untouched.
func (n *Node) TransitionTo(target State) error {
	if !CanTransition(n.state, target) {
		return &TransitionError{Kind: n.kind, ID: n.id, From: n.state, To: target}
	}
	n.state = target
	return nil
}

// ComputeAggregateState derives a state from the children. A leaf reports
// its own state. Otherwise, in order of precedence: any Failed child gives
// Failed, all Complete gives Complete, any InProgress or a mix of Pending
// and Complete gives InProgress, and all Pending gives Pending. Children
// contribute their own aggregate, so the result reflects the whole subtree.
// It never modifies the tree.
func (n *Node) ComputeAggregateState() State {
	if len(n.children) == 0 {
		return n.state
	}

	var inProgress, complete int
	for _, c := range n.children {
		switch c.ComputeAggregateState() {
		case StateFailed:
			return StateFailed
		case StateComplete:
			complete++
		case StateInProgress:
			inProgress++
		}
	}

	switch {
	case complete == len(n.children):
		return StateComplete
	case inProgress > 0 || complete > 0:
		return StateInProgress
	default:
		return StatePending
	}
}

// Descendants yields every node below n in pre-order. The sequence is lazy
// and can be ranged over repeatedly.
func (n *Node) Descendants() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		n.walk(yield)
	}
}

func (n *Node) walk(yield func(*Node) bool) bool {
	for _, c := range n.children {
		if !yield(c) || !c.walk(yield) {
			return false
		}
	}
	return true
}

// Leaves yields every childless node reachable from n, including n itself
// when it has no children.
func (n *Node) Leaves() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		if n.IsLeaf() {
			yield(n)
			return
		}
		for d := range n.Descendants() {
			if d.IsLeaf() && !yield(d) {
				return
			}
		}
	}
}

// Module is the root of a session's hierarchy.
type Module struct{ *Node }

// Component groups related tasks within a module.
type Component struct{ *Node }

// Task is the unit the agent loop focuses on.
type Task struct{ *Node }

// Subtask is an optional finer-grained step of a task.
type Subtask struct{ *Node }

// NewModule creates a Pending module.
func NewModule(id, name string) *Module { return &Module{newNode(KindModule, id, name)} }

// NewComponent creates a Pending component.
func NewComponent(id, name string) *Component { return &Component{newNode(KindComponent, id, name)} }

// NewTask creates a Pending task.
func NewTask(id, name string) *Task { return &Task{newNode(KindTask, id, name)} }

// NewSubtask creates a Pending subtask.
func NewSubtask(id, name string) *Subtask { return &Subtask{newNode(KindSubtask, id, name)} }

// AddChild appends c to the module.
func (m *Module) AddChild(c *Component) error { return m.addChild(c.Node) }

// AddChild appends t to the component.
func (c *Component) AddChild(t *Task) error { return c.addChild(t.Node) }

// AddChild appends s to the task.
func (t *Task) AddChild(s *Subtask) error { return t.addChild(s.Node) }

// Components returns the module's components in insertion order.
func (m *Module) Components() []*Component {
	out := make([]*Component, len(m.children))
	for i, c := range m.children {
		out[i] = &Component{c}
	}
	return out
}

// Component looks up a component by ID.
func (m *Module) Component(id string) (*Component, error) {
	c, ok := m.Child(id)
	if !ok {
		return nil, fmt.Errorf("component %q in module %q: %w", id, m.id, ErrNotFound)
	}
	return &Component{c}, nil
}

// Tasks returns every task of every component in document order.
func (m *Module) Tasks() []*Task {
	var out []*Task
	for _, c := range m.Components() {
		out = append(out, c.Tasks()...)
	}
	return out
}

// FindTask looks up a task by ID. When componentID is empty every component
// is searched and the first match wins.
func (m *Module) FindTask(componentID, taskID string) (*Task, error) {
	if componentID != "" {
		c, err := m.Component(componentID)
		if err != nil {
			return nil, err
		}
		return c.Task(taskID)
	}
	for _, c := range m.Components() {
		if t, err := c.Task(taskID); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("task %q in module %q: %w", taskID, m.id, ErrNotFound)
}

// Tasks returns the component's tasks in insertion order.
func (c *Component) Tasks() []*Task {
	out := make([]*Task, len(c.children))
	for i, t := range c.children {
		out[i] = &Task{t}
	}
	return out
}

// Task looks up a task by ID.
func (c *Component) Task(id string) (*Task, error) {
	t, ok := c.Child(id)
	if !ok {
		return nil, fmt.Errorf("task %q in component %q: %w", id, c.id, ErrNotFound)
	}
	return &Task{t}, nil
}

// Subtasks returns the task's subtasks in insertion order.
func (t *Task) Subtasks() []*Subtask {
	out := make([]*Subtask, len(t.children))
	for i, s := range t.children {
		out[i] = &Subtask{s}
	}
	return out
}

// Subtask looks up a subtask by ID.
func (t *Task) Subtask(id string) (*Subtask, error) {
	s, ok := t.Child(id)
	if !ok {
		return nil, fmt.Errorf("subtask %q in task %q: %w", id, t.id, ErrNotFound)
	}
	return &Subtask{s}, nil
}

// Component returns the component owning the task, or nil when detached.
func (t *Task) Component() *Component {
	if t.parent == nil {
		return nil
	}
	return &Component{t.parent}
}

// Tally counts nodes by their own state.
type Tally struct {
	Pending    int
	InProgress int
	Complete   int
	Failed     int
}

// Total returns the number of nodes counted.
func (t Tally) Total() int { return t.Pending + t.InProgress + t.Complete + t.Failed }

// Count tallies the nodes yielded by seq.
func Count(seq iter.Seq[*Node]) Tally {
	var t Tally
	for n := range seq {
		switch n.state {
		case StatePending:
			t.Pending++
		case StateInProgress:
			t.InProgress++
		case StateComplete:
			t.Complete++
		case StateFailed:
			t.Failed++
		}
	}
	return t
}

// OfKind filters seq down to nodes of the given kind.
func OfKind(seq iter.Seq[*Node], kind Kind) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for n := range seq {
			if n.kind == kind && !yield(n) {
				return
			}
		}
	}
}
