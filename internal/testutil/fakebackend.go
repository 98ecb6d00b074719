// Package testutil provides test doubles shared across the engine tests,
// chiefly a scriptable in-memory backend.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/juniper-lake/CoLoRS/internal/backend"
)

// FakeBackend records every invocation and fabricates tool results without
// running anything. By default each declared output is created as a real
// file in the invocation's work directory, so downstream file-size and
// content probes behave like they would after a real tool run.
type FakeBackend struct {
	// Handler, when set, fully scripts the response for an invocation.
	// Returning a nil error with a zero Result falls back to the default
	// output fabrication.
	Handler func(ctx context.Context, inv backend.Invocation) (backend.Result, error)
	// Delay, when set, stalls each invocation before completion. Useful to
	// force completion interleavings.
	Delay func(inv backend.Invocation) time.Duration

	mu          sync.Mutex
	invocations []backend.Invocation
}

var _ backend.Backend = (*FakeBackend)(nil)

func (f *FakeBackend) Run(ctx context.Context, inv backend.Invocation) (backend.Result, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.mu.Unlock()

	if f.Delay != nil {
		select {
		case <-time.After(f.Delay(inv)):
		case <-ctx.Done():
			return backend.Result{}, ctx.Err()
		}
	}

	if f.Handler != nil {
		res, err := f.Handler(ctx, inv)
		if err != nil {
			return backend.Result{}, err
		}
		if res.Outputs != nil {
			return res, nil
		}
	}
	return f.fabricate(inv)
}

// fabricate writes one deterministic file per declared output.
func (f *FakeBackend) fabricate(inv backend.Invocation) (backend.Result, error) {
	outputs := make(map[string]string, len(inv.OutputNames))
	for _, name := range inv.OutputNames {
		path := filepath.Join(inv.WorkDir, name)
		content := fmt.Sprintf("%s:%s\n", inv.Name, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return backend.Result{}, err
		}
		outputs[name] = path
	}
	return backend.Result{ExitCode: 0, Outputs: outputs}, nil
}

// Invocations returns a snapshot of everything dispatched so far.
func (f *FakeBackend) Invocations() []backend.Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Invocation, len(f.invocations))
	copy(out, f.invocations)
	return out
}

// InvocationNames returns the dispatched tool names in order.
func (f *FakeBackend) InvocationNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.invocations))
	for i, inv := range f.invocations {
		names[i] = inv.Name
	}
	return names
}

// FailTimes wraps a FakeBackend handler that fails the named tool with err
// the first n times it is invoked, then falls back to fabrication.
func FailTimes(name string, n int, err error) func(context.Context, backend.Invocation) (backend.Result, error) {
	var mu sync.Mutex
	remaining := n
	return func(ctx context.Context, inv backend.Invocation) (backend.Result, error) {
		if inv.Name != name {
			return backend.Result{}, nil
		}
		mu.Lock()
		defer mu.Unlock()
		if remaining > 0 {
			remaining--
			return backend.Result{}, err
		}
		return backend.Result{}, nil
	}
}
