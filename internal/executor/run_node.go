package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/juniper-lake/CoLoRS/internal/backend"
	"github.com/juniper-lake/CoLoRS/internal/ctxlog"
	"github.com/juniper-lake/CoLoRS/internal/dag"
	"github.com/juniper-lake/CoLoRS/internal/model"
	"github.com/juniper-lake/CoLoRS/internal/workflow"
)

// runNode resolves a node's inputs and drives its attempts to a terminal
// outcome. A nil return means the node's outputs (possibly absent) were
// published.
func (e *Executor) runNode(ctx context.Context, node *dag.Node) error {
	values, absent, err := e.resolveInputs(node)
	if err != nil {
		return err
	}

	// An absent optional input propagates: the node's own outputs become
	// absent and the task body never runs.
	if absent {
		ctxlog.FromContext(ctx).Debug("Node resolved absent, propagating.", "node", node.ID)
		published := make(map[string]model.Optional[any], len(node.Task.Outputs))
		for _, out := range node.Task.Outputs {
			published[out] = model.None[any]()
		}
		e.storeOutputs(node, published)
		return nil
	}

	// Disk is sized once, before dispatch, from the node's input files.
	attrs := node.Task.Attrs.WithDiskGB(model.DiskSizeGB(totalInputBytes(values)))

	return e.attempt(ctx, node, values, attrs)
}

// attempt runs the task body under the retry policy. Preemptions and tool
// failures draw from separate budgets; a contract violation is permanent on
// the first occurrence.
func (e *Executor) attempt(ctx context.Context, node *dag.Node, values map[string]model.Optional[any], attrs model.RuntimeAttributes) error {
	logger := ctxlog.FromContext(ctx).With("node", node.ID)
	bo := e.newBackOff()

	var preemptions, failures int
	for {
		// Every attempt starts from a clean namespace so a retry can never
		// observe partial output of a previous attempt.
		workDir := filepath.Join(e.workRoot, node.ID, uuid.NewString())
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return fmt.Errorf("creating scratch directory for %s: %w", node.ID, err)
		}

		node.Attempts++
		tc := workflow.NewTaskContext(values, e.backend, attrs, workDir)
		outputs, err := node.Task.Run(ctx, tc)
		if err == nil {
			return e.publish(node, outputs)
		}

		if backend.IsContractViolation(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if backend.IsPreempted(err) {
			preemptions++
			if preemptions > attrs.PreemptibleTries {
				return fmt.Errorf("%s: preempted %d times, budget %d exhausted: %w",
					node.ID, preemptions, attrs.PreemptibleTries, err)
			}
			logger.Warn("Task preempted, retrying.", "preemptions", preemptions, "budget", attrs.PreemptibleTries)
		} else {
			failures++
			if failures > attrs.MaxRetries {
				return fmt.Errorf("%s: failed %d times, budget %d exhausted: %w",
					node.ID, failures, attrs.MaxRetries, err)
			}
			logger.Warn("Task failed, retrying.", "failures", failures, "budget", attrs.MaxRetries, "error", err)
		}

		node.SetState(model.StatusRetrying)
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("%s: retry pacing exhausted: %w", node.ID, err)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		node.SetState(model.StatusRunning)
	}
}

// publish checks the run result against the declared outputs and stores it.
func (e *Executor) publish(node *dag.Node, outputs map[string]any) error {
	published := make(map[string]model.Optional[any], len(node.Task.Outputs))
	for _, out := range node.Task.Outputs {
		v, ok := outputs[out]
		if !ok {
			return fmt.Errorf("%s: run returned no value for declared output %q", node.ID, out)
		}
		published[out] = model.Some(v)
	}
	e.storeOutputs(node, published)
	return nil
}

// resolveInputs evaluates every input binding. It reports absent=true when
// an optional binding had no present value; a required binding with no
// present value is an input contract violation.
func (e *Executor) resolveInputs(node *dag.Node) (map[string]model.Optional[any], bool, error) {
	values := make(map[string]model.Optional[any], len(node.Task.Inputs))
	absent := false
	for name, b := range node.Task.Inputs {
		v, err := e.resolve(b)
		if err != nil {
			return nil, false, fmt.Errorf("%s: input %q: %w", node.ID, name, err)
		}
		if !v.Present() {
			if b.Required() {
				return nil, false, fmt.Errorf("%s: required input %q has no present value", node.ID, name)
			}
			absent = true
		}
		values[name] = v
	}
	return values, absent, nil
}

// totalInputBytes sums the sizes of all input values that are existing
// files. Non-file values contribute nothing.
func totalInputBytes(values map[string]model.Optional[any]) int64 {
	var total int64
	for _, v := range values {
		raw, ok := v.Get()
		if !ok {
			continue
		}
		total += valueBytes(raw)
	}
	return total
}

func valueBytes(v any) int64 {
	switch vv := v.(type) {
	case string:
		if info, err := os.Stat(vv); err == nil && !info.IsDir() {
			return info.Size()
		}
	case []string:
		var total int64
		for _, s := range vv {
			total += valueBytes(s)
		}
		return total
	case []any:
		var total int64
		for _, e := range vv {
			total += valueBytes(e)
		}
		return total
	case model.IndexData:
		return valueBytes(vv.Data) + valueBytes(vv.Index)
	}
	return 0
}
