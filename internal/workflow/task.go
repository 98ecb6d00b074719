package workflow

import (
	"context"
	"fmt"

	"github.com/juniper-lake/CoLoRS/internal/backend"
	"github.com/juniper-lake/CoLoRS/internal/model"
)

// RunFunc is the body of a task. It receives the resolved inputs and the
// execution facilities for one attempt and returns a value for every output
// the task declares. A RunFunc must not assume anything about prior attempts:
// each attempt starts from a clean scratch directory.
type RunFunc func(ctx context.Context, tc *TaskContext) (map[string]any, error)

// Task is one unit of external work: typed input bindings, declared outputs,
// a resource policy, and a body.
type Task struct {
	Name    string
	Inputs  map[string]Binding
	Outputs []string
	Attrs   model.RuntimeAttributes
	Run     RunFunc
}

func (t *Task) validate() error {
	if t.Name == "" {
		return fmt.Errorf("task with empty name")
	}
	if t.Run == nil {
		return fmt.Errorf("task %s: nil run function", t.Name)
	}
	if len(t.Outputs) == 0 {
		return fmt.Errorf("task %s: declares no outputs", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Outputs))
	for _, out := range t.Outputs {
		if _, dup := seen[out]; dup {
			return fmt.Errorf("task %s: duplicate output %q", t.Name, out)
		}
		seen[out] = struct{}{}
	}
	return nil
}

// TaskContext carries everything one attempt may use: resolved input values,
// the execution backend, the (disk-sized) resource attributes, and the
// attempt-scoped scratch directory.
type TaskContext struct {
	values  map[string]model.Optional[any]
	backend backend.Backend
	attrs   model.RuntimeAttributes
	workDir string
}

// NewTaskContext assembles an attempt context. Exposed for the executor and
// for tests that call run functions directly.
func NewTaskContext(values map[string]model.Optional[any], be backend.Backend, attrs model.RuntimeAttributes, workDir string) *TaskContext {
	return &TaskContext{values: values, backend: be, attrs: attrs, workDir: workDir}
}

// Backend returns the execution substrate for this attempt.
func (tc *TaskContext) Backend() backend.Backend { return tc.backend }

// Attrs returns the resource attributes, disk size already computed.
func (tc *TaskContext) Attrs() model.RuntimeAttributes { return tc.attrs }

// WorkDir returns the clean scratch directory for this attempt.
func (tc *TaskContext) WorkDir() string { return tc.workDir }

// Value returns the raw resolved input.
func (tc *TaskContext) Value(name string) (model.Optional[any], error) {
	v, ok := tc.values[name]
	if !ok {
		return model.None[any](), fmt.Errorf("no input named %q", name)
	}
	return v, nil
}

// String returns a present string input.
func (tc *TaskContext) String(name string) (string, error) {
	return presentAs[string](tc, name)
}

// Bool returns a present bool input.
func (tc *TaskContext) Bool(name string) (bool, error) {
	return presentAs[bool](tc, name)
}

// Int returns a present int input.
func (tc *TaskContext) Int(name string) (int, error) {
	return presentAs[int](tc, name)
}

// Strings returns a present input as a string slice. Gathered values arrive
// as []any and are converted element-wise.
func (tc *TaskContext) Strings(name string) ([]string, error) {
	v, err := tc.Value(name)
	if err != nil {
		return nil, err
	}
	raw, ok := v.Get()
	if !ok {
		return nil, fmt.Errorf("input %q is absent", name)
	}
	switch vv := raw.(type) {
	case []string:
		return vv, nil
	case []any:
		out := make([]string, len(vv))
		for i, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("input %q: element %d is %T, not string", name, i, e)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("input %q is %T, not a string list", name, raw)
	}
}

// OptionalString returns a string input that may be absent.
func (tc *TaskContext) OptionalString(name string) (model.Optional[string], error) {
	v, err := tc.Value(name)
	if err != nil {
		return model.None[string](), err
	}
	raw, ok := v.Get()
	if !ok {
		return model.None[string](), nil
	}
	s, ok := raw.(string)
	if !ok {
		return model.None[string](), fmt.Errorf("input %q is %T, not string", name, raw)
	}
	return model.Some(s), nil
}

func presentAs[T any](tc *TaskContext, name string) (T, error) {
	var zero T
	v, err := tc.Value(name)
	if err != nil {
		return zero, err
	}
	raw, ok := v.Get()
	if !ok {
		return zero, fmt.Errorf("input %q is absent", name)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("input %q is %T, not %T", name, raw, zero)
	}
	return typed, nil
}
