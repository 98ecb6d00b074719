// Package workflow is the declarative task model the pipeline is assembled
// from: tasks with typed input bindings, scatter groups over ordered
// partitions, and predicate-gated conditional branches whose outputs are
// tagged optionals.
package workflow

import (
	"fmt"
)

// OutputDecl is one workflow-level output. Outputs bound to absent branch
// results are omitted from the final output set rather than rendered as
// empty files.
type OutputDecl struct {
	Name    string
	Binding Binding
}

// Workflow is a named collection of tasks plus the resolution tables for
// conditional branch outputs.
type Workflow struct {
	Name string

	tasks map[string]*Task
	order []string

	// alias maps a conditional's exported output to the inner node output
	// that produces it.
	alias map[Ref]Ref
	// absent records conditional outputs whose branch was not taken. Known
	// at definition time: the branch body was never instantiated.
	absent map[Ref]bool
	// branches guards against name collisions between tasks and branches.
	branches map[string]bool

	outputs []OutputDecl
}

// New creates an empty workflow.
func New(name string) *Workflow {
	return &Workflow{
		Name:     name,
		tasks:    make(map[string]*Task),
		alias:    make(map[Ref]Ref),
		absent:   make(map[Ref]bool),
		branches: make(map[string]bool),
	}
}

// Add registers a task. Names must be unique across tasks and branches.
func (w *Workflow) Add(t *Task) error {
	if err := t.validate(); err != nil {
		return err
	}
	if _, exists := w.tasks[t.Name]; exists {
		return fmt.Errorf("duplicate task name %q", t.Name)
	}
	if w.branches[t.Name] {
		return fmt.Errorf("task name %q collides with a branch", t.Name)
	}
	w.tasks[t.Name] = t
	w.order = append(w.order, t.Name)
	return nil
}

// MustAdd is Add for statically correct pipeline definitions.
func (w *Workflow) MustAdd(t *Task) *Task {
	if err := w.Add(t); err != nil {
		panic(err)
	}
	return t
}

// Task returns a task by name, or nil.
func (w *Workflow) Task(name string) *Task { return w.tasks[name] }

// Tasks returns all tasks in definition order.
func (w *Workflow) Tasks() []*Task {
	out := make([]*Task, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.tasks[name])
	}
	return out
}

// Output declares a workflow-level output.
func (w *Workflow) Output(name string, b Binding) {
	w.outputs = append(w.outputs, OutputDecl{Name: name, Binding: b})
}

// Outputs returns the declared workflow-level outputs in declaration order.
func (w *Workflow) Outputs() []OutputDecl { return w.outputs }

// ResolveRef follows branch aliases to the producing node output. The second
// return is false when the ref names a conditional output whose branch did
// not run: the value is absent by definition and has no producer.
func (w *Workflow) ResolveRef(r Ref) (Ref, bool) {
	for {
		if w.absent[r] {
			return r, false
		}
		next, ok := w.alias[r]
		if !ok {
			return r, true
		}
		r = next
	}
}

// Validate checks that every binding of every task and every workflow output
// points at a declared output of an existing node or at a conditional output.
func (w *Workflow) Validate() error {
	for _, name := range w.order {
		t := w.tasks[name]
		for input, b := range t.Inputs {
			if err := w.validateBinding(b); err != nil {
				return fmt.Errorf("task %s input %q: %w", name, input, err)
			}
		}
	}
	for _, out := range w.outputs {
		if err := w.validateBinding(out.Binding); err != nil {
			return fmt.Errorf("workflow output %q: %w", out.Name, err)
		}
	}
	return nil
}

func (w *Workflow) validateBinding(b Binding) error {
	if _, isLit := b.Literal(); isLit {
		return nil
	}
	if len(b.Refs()) == 0 {
		return fmt.Errorf("binding has neither literal nor refs")
	}
	for _, r := range b.Refs() {
		resolved, present := w.ResolveRef(r)
		if !present {
			continue // absent by definition, a legal resolution
		}
		t, ok := w.tasks[resolved.Node]
		if !ok {
			return fmt.Errorf("reference to unknown node %q", r.Node)
		}
		if !declares(t, resolved.Output) {
			return fmt.Errorf("node %q declares no output %q", resolved.Node, resolved.Output)
		}
	}
	return nil
}

func declares(t *Task, output string) bool {
	for _, out := range t.Outputs {
		if out == output {
			return true
		}
	}
	return false
}
