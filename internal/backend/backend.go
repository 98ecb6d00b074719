// Package backend abstracts the execution substrate that runs external
// variant-calling tools. The engine only depends on the invocation contract:
// an argv, a set of input files, a set of deterministically named output
// files, and an exit status where zero means success.
package backend

import (
	"context"

	"github.com/juniper-lake/CoLoRS/internal/model"
)

// Invocation is one external tool run.
type Invocation struct {
	// Name identifies the tool for logging and job naming.
	Name string
	// Image is the container image reference the tool runs in.
	Image string
	// Argv is the full command line, argv[0] included.
	Argv []string
	// InputFiles lists the files the tool reads. Every entry must exist
	// before dispatch; a missing input is a contract violation, not a
	// retryable failure.
	InputFiles []string
	// OutputNames are the basenames the tool is expected to produce in
	// WorkDir. Names are derived from the inputs, so dependents can bind to
	// them without runtime discovery.
	OutputNames []string
	// WorkDir is the attempt-scoped scratch directory. Each retry gets a
	// fresh one.
	WorkDir string
	// Attrs carries the resource declaration for the substrate.
	Attrs model.RuntimeAttributes
}

// Result is the outcome of a successful invocation.
type Result struct {
	ExitCode int
	// Outputs maps each declared output name to its absolute path.
	Outputs map[string]string
}

// Backend runs tool invocations. Implementations must be safe for concurrent
// use: the executor dispatches many independent invocations at once.
type Backend interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}
