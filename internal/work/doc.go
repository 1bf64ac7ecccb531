// Package work models the four-level task hierarchy a gantry session works
// through: a Module contains Components, a Component contains Tasks and a
// Task contains Subtasks.
//
// Every node carries its own lifecycle State, changed only through
// TransitionTo. Parents additionally expose an aggregate state derived from
// their children by ComputeAggregateState; the aggregate is never stored.
//
// The child kind is enforced by the type system: Module.AddChild accepts only
// a *Component, Component.AddChild only a *Task and Task.AddChild only a
// *Subtask. The shared behaviour lives on Node, which each variant embeds.
package work
