// Package dag derives the execution graph from a workflow definition.
// Dependency edges are structural: node B depends on node A when one of B's
// input bindings references one of A's declared outputs. References to
// branch outputs that resolved absent at definition time produce no edge;
// the absence is a value, not a producer.
package dag

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/juniper-lake/CoLoRS/internal/ctxlog"
	"github.com/juniper-lake/CoLoRS/internal/model"
	"github.com/juniper-lake/CoLoRS/internal/workflow"
)

// Node is one schedulable task plus its position in the graph.
type Node struct {
	ID   string
	Task *workflow.Task

	Deps       map[string]*Node
	Dependents map[string]*Node

	// depCount tracks unresolved dependencies; a node becomes eligible when
	// it reaches zero.
	depCount atomic.Int32
	// skipOnce guards cancellation so a node with several failed upstreams
	// is only cancelled once.
	skipOnce sync.Once

	state atomic.Int32
	// Err is set together with a terminal failure state and read only after
	// the run finished.
	Err error
	// Attempts counts executions of the task body across retries.
	Attempts int
}

// State returns the node's current status.
func (n *Node) State() model.Status { return model.Status(n.state.Load()) }

// SetState transitions the node's status.
func (n *Node) SetState(s model.Status) { n.state.Store(int32(s)) }

// DecrementDepCount returns the remaining dependency count.
func (n *Node) DecrementDepCount() int32 { return n.depCount.Add(-1) }

// CancelOnce runs fn exactly once, for upstream-failure cancellation.
func (n *Node) CancelOnce(fn func()) { n.skipOnce.Do(fn) }

// Graph is the executable DAG built from a workflow.
type Graph struct {
	Workflow *workflow.Workflow
	Nodes    map[string]*Node
}

// Build validates the workflow, creates one node per task, links structural
// dependencies, and rejects cycles.
func Build(ctx context.Context, w *workflow.Workflow) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)

	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workflow %s: %w", w.Name, err)
	}

	g := &Graph{Workflow: w, Nodes: make(map[string]*Node)}
	for _, t := range w.Tasks() {
		g.Nodes[t.Name] = &Node{
			ID:         t.Name,
			Task:       t,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
		}
	}
	logger.Debug("Graph nodes created.", "count", len(g.Nodes))

	for _, node := range g.Nodes {
		for _, b := range node.Task.Inputs {
			for _, ref := range b.Refs() {
				resolved, present := w.ResolveRef(ref)
				if !present {
					continue
				}
				dep, ok := g.Nodes[resolved.Node]
				if !ok {
					return nil, fmt.Errorf("node %s references unknown node %s", node.ID, resolved.Node)
				}
				if dep == node {
					return nil, fmt.Errorf("node %s references its own output", node.ID)
				}
				if _, linked := node.Deps[dep.ID]; !linked {
					node.Deps[dep.ID] = dep
					dep.Dependents[node.ID] = node
				}
			}
		}
	}

	for _, node := range g.Nodes {
		node.depCount.Store(int32(len(node.Deps)))
	}

	if err := g.detectCycles(); err != nil {
		return nil, fmt.Errorf("error validating dependency graph: %w", err)
	}
	logger.Debug("Graph linking complete.", "nodes", len(g.Nodes))
	return g, nil
}

// detectCycles runs a depth-first search with the classic three node sets:
// permanently visited, currently on the recursion stack, and unvisited.
func (g *Graph) detectCycles() error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		if permanent[n.ID] {
			return nil
		}
		if temporary[n.ID] {
			return fmt.Errorf("cycle detected involving node '%s'", n.ID)
		}
		temporary[n.ID] = true
		for _, dependent := range n.Dependents {
			if err := visit(dependent); err != nil {
				return err
			}
		}
		delete(temporary, n.ID)
		permanent[n.ID] = true
		return nil
	}

	for _, n := range g.Nodes {
		if !permanent[n.ID] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Roots returns the nodes with no dependencies.
func (g *Graph) Roots() []*Node {
	var roots []*Node
	for _, n := range g.Nodes {
		if len(n.Deps) == 0 {
			roots = append(roots, n)
		}
	}
	return roots
}
