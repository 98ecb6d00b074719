// Package executor drives a built graph to completion. Scheduling decisions
// are simple counter arithmetic; the concurrency lives in the dispatched
// tasks themselves, which run on the execution backend in parallel up to the
// worker limit.
package executor

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/juniper-lake/CoLoRS/internal/backend"
	"github.com/juniper-lake/CoLoRS/internal/ctxlog"
	"github.com/juniper-lake/CoLoRS/internal/dag"
	"github.com/juniper-lake/CoLoRS/internal/model"
	"github.com/juniper-lake/CoLoRS/internal/workflow"
)

// Executor runs one graph once.
type Executor struct {
	graph    *dag.Graph
	backend  backend.Backend
	workers  int
	workRoot string

	// newBackOff builds the pacing policy between attempts of a single
	// task. Swapped out in tests.
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	outputs map[workflow.Ref]model.Optional[any]

	wg sync.WaitGroup
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the concurrency limit for dispatched nodes.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithBackOff replaces the retry pacing policy.
func WithBackOff(factory func() backoff.BackOff) Option {
	return func(e *Executor) { e.newBackOff = factory }
}

// New builds an executor for the given graph. workRoot is the directory under
// which attempt-scoped scratch directories are created.
func New(g *dag.Graph, be backend.Backend, workRoot string, opts ...Option) *Executor {
	e := &Executor{
		graph:    g,
		backend:  be,
		workers:  runtime.GOMAXPROCS(0),
		workRoot: workRoot,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		outputs: make(map[workflow.Ref]model.Optional[any]),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NodeReport is the user-visible outcome of one node.
type NodeReport struct {
	Status   model.Status
	Attempts int
	Err      string
}

// Report summarizes a finished run. Outputs carries only genuinely present
// workflow outputs; values bound to branches that did not run are omitted
// entirely.
type Report struct {
	Nodes   map[string]NodeReport
	Outputs map[string]any
	Failed  []string
}

// Run executes the graph and returns the run report. A permanent task
// failure fails its transitive dependents (they are cancelled, never
// started) while independent subgraphs run to completion; the returned error
// then names the root causes.
func (e *Executor) Run(ctx context.Context) (*Report, error) {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *dag.Node, len(e.graph.Nodes))
	for _, node := range e.graph.Roots() {
		readyChan <- node
	}
	e.wg.Add(len(e.graph.Nodes))

	logger.Debug("Starting worker pool.", "workers", e.workers)
	for i := 0; i < e.workers; i++ {
		go e.worker(ctx, readyChan, i)
	}
	e.wg.Wait()
	close(readyChan)
	logger.Debug("All nodes reached a terminal state.")

	report := &Report{
		Nodes:   make(map[string]NodeReport, len(e.graph.Nodes)),
		Outputs: make(map[string]any),
	}
	for id, node := range e.graph.Nodes {
		nr := NodeReport{Status: node.State(), Attempts: node.Attempts}
		if node.Err != nil {
			nr.Err = node.Err.Error()
		}
		report.Nodes[id] = nr
		if node.State() == model.StatusFailed {
			report.Failed = append(report.Failed, id)
		}
	}
	sort.Strings(report.Failed)

	for _, out := range e.graph.Workflow.Outputs() {
		v, err := e.resolve(out.Binding)
		if err != nil {
			continue // producer failed; already reported per node
		}
		if value, present := v.Get(); present {
			report.Outputs[out.Name] = value
		}
	}

	if len(report.Failed) > 0 {
		return report, fmt.Errorf("run failed for nodes: %v", report.Failed)
	}
	return report, nil
}

// worker is the processing loop of a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan *dag.Node, workerID int) {
	logger := ctxlog.FromContext(ctx)
	for node := range readyChan {
		nodeLogger := logger.With("workerID", workerID, "node", node.ID)

		if ctx.Err() != nil {
			e.cancelNode(ctx, node, ctx.Err())
			continue
		}

		nodeLogger.Debug("Worker picked up node.")
		node.SetState(model.StatusRunning)

		err := e.runNode(ctx, node)
		if err != nil {
			nodeLogger.Error("Node failed permanently.", "error", err)
			node.SetState(model.StatusFailed)
			node.Err = err
			e.skipDependents(ctx, node)
			e.wg.Done()
			continue
		}

		nodeLogger.Debug("Node succeeded.")
		node.SetState(model.StatusSucceeded)

		for _, dependent := range node.Dependents {
			if dependent.DecrementDepCount() == 0 {
				readyChan <- dependent
			}
		}
		e.wg.Done()
	}
}

// skipDependents marks all transitive dependents cancelled. They are never
// started; sibling subgraphs are untouched.
func (e *Executor) skipDependents(ctx context.Context, node *dag.Node) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range node.Dependents {
		dep := dependent
		dep.CancelOnce(func() {
			logger.Warn("Cancelling dependent of failed node.", "node", dep.ID, "failed", node.ID)
			dep.SetState(model.StatusCancelled)
			dep.Err = fmt.Errorf("cancelled: upstream failure of '%s'", node.ID)
			e.wg.Done()
			e.skipDependents(ctx, dep)
		})
	}
}

func (e *Executor) cancelNode(ctx context.Context, node *dag.Node, cause error) {
	node.CancelOnce(func() {
		node.SetState(model.StatusCancelled)
		node.Err = cause
		e.wg.Done()
		e.skipDependents(ctx, node)
	})
}

// storeOutputs publishes a node's outputs for its dependents.
func (e *Executor) storeOutputs(node *dag.Node, values map[string]model.Optional[any]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, v := range values {
		e.outputs[workflow.R(node.ID, name)] = v
	}
}

// resolve evaluates one binding against the published outputs: a literal is
// itself, a ref selection is the first present value, and no present value
// resolves absent.
func (e *Executor) resolve(b workflow.Binding) (model.Optional[any], error) {
	if lit, ok := b.Literal(); ok {
		return model.Some(lit), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ref := range b.Refs() {
		resolved, present := e.graph.Workflow.ResolveRef(ref)
		if !present {
			continue
		}
		v, ok := e.outputs[resolved]
		if !ok {
			return model.None[any](), fmt.Errorf("output %s.%s was never published", resolved.Node, resolved.Output)
		}
		if v.Present() {
			return v, nil
		}
	}
	return model.None[any](), nil
}
