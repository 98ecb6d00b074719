package backend

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/juniper-lake/CoLoRS/internal/ctxlog"
)

// stderrTailLimit bounds how much tool stderr is kept for error reporting.
const stderrTailLimit = 4096

// Local runs tools as plain subprocesses on the current host. It ignores the
// container image and placement attributes; it is the substrate used for
// development runs and for pipelines whose tools are on PATH.
type Local struct{}

// NewLocal returns a Local backend.
func NewLocal() *Local { return &Local{} }

// Run implements Backend.
func (l *Local) Run(ctx context.Context, inv Invocation) (Result, error) {
	logger := ctxlog.FromContext(ctx).With("tool", inv.Name)

	if err := checkInputs(inv); err != nil {
		return Result{}, err
	}
	if len(inv.Argv) == 0 {
		return Result{}, &ContractError{Tool: inv.Name, Detail: "empty argv"}
	}

	logger.Debug("Dispatching local tool.", "argv", strings.Join(inv.Argv, " "), "workdir", inv.WorkDir)

	cmd := exec.CommandContext(ctx, inv.Argv[0], inv.Argv[1:]...)
	cmd.Dir = inv.WorkDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Result{}, &ToolError{
				Tool:     inv.Name,
				ExitCode: exitErr.ExitCode(),
				Stderr:   tail(stderr.String(), stderrTailLimit),
			}
		}
		return Result{}, errors.Wrapf(err, "starting %s", inv.Name)
	}

	outputs, err := collectOutputs(inv)
	if err != nil {
		return Result{}, err
	}
	return Result{ExitCode: 0, Outputs: outputs}, nil
}

// checkInputs fails fast on missing input files, before any dispatch.
func checkInputs(inv Invocation) error {
	for _, in := range inv.InputFiles {
		if _, err := os.Stat(in); err != nil {
			return &ContractError{Tool: inv.Name, Detail: "required input " + in + " is not readable"}
		}
	}
	return nil
}

// collectOutputs verifies every declared output exists and resolves its path.
func collectOutputs(inv Invocation) (map[string]string, error) {
	outputs := make(map[string]string, len(inv.OutputNames))
	for _, name := range inv.OutputNames {
		path := filepath.Join(inv.WorkDir, name)
		if _, err := os.Stat(path); err != nil {
			return nil, &ContractError{Tool: inv.Name, Detail: "declared output " + name + " was not produced"}
		}
		outputs[name] = path
	}
	return outputs, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
