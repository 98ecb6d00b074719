package workflow

import "fmt"

// Branch is the builder handed to the body of a conditional. Tasks added
// through it belong to the branch; Export publishes an inner node output
// under one of the branch's declared output names.
type Branch struct {
	w        *Workflow
	name     string
	declared map[string]bool
	exported map[string]Ref
}

// Add registers a task inside the branch.
func (b *Branch) Add(t *Task) error { return b.w.Add(t) }

// MustAdd is Add for statically correct pipeline definitions.
func (b *Branch) MustAdd(t *Task) *Task { return b.w.MustAdd(t) }

// Scatter runs a scatter group inside the branch.
func (b *Branch) Scatter(name string, partitions []string, template func(int, string) *Task) (Ref, error) {
	return b.w.Scatter(name, partitions, template)
}

// Export binds a declared branch output to an inner node output.
func (b *Branch) Export(output string, ref Ref) error {
	if !b.declared[output] {
		return fmt.Errorf("branch %s: export of undeclared output %q", b.name, output)
	}
	if _, dup := b.exported[output]; dup {
		return fmt.Errorf("branch %s: output %q exported twice", b.name, output)
	}
	b.exported[output] = ref
	return nil
}

// When gates a sub-graph behind a predicate that is known before the run
// starts. When the predicate holds, build assembles the branch body and every
// declared output must be exported. When it does not, build is never called:
// no task of the branch is instantiated, and every declared output resolves
// absent. Consumers see the difference between "the branch did not run" and
// "the branch ran and produced an empty result" because absence is a tagged
// value, not an empty artifact.
func (w *Workflow) When(name string, predicate bool, declares []string, build func(b *Branch) error) error {
	if len(declares) == 0 {
		return fmt.Errorf("branch %s: declares no outputs", name)
	}
	if w.branches[name] {
		return fmt.Errorf("duplicate branch name %q", name)
	}
	if _, exists := w.tasks[name]; exists {
		return fmt.Errorf("branch name %q collides with a task", name)
	}
	w.branches[name] = true

	if !predicate {
		for _, out := range declares {
			w.absent[R(name, out)] = true
		}
		return nil
	}

	b := &Branch{
		w:        w,
		name:     name,
		declared: make(map[string]bool, len(declares)),
		exported: make(map[string]Ref, len(declares)),
	}
	for _, out := range declares {
		b.declared[out] = true
	}
	if err := build(b); err != nil {
		return fmt.Errorf("branch %s: %w", name, err)
	}
	for _, out := range declares {
		ref, ok := b.exported[out]
		if !ok {
			return fmt.Errorf("branch %s: declared output %q was never exported", name, out)
		}
		w.alias[R(name, out)] = ref
	}
	return nil
}
