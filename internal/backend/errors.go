package backend

import (
	"errors"
	"fmt"
)

// PreemptedError marks a transient infrastructure failure: the substrate
// reclaimed the worker mid-run. The executor retries these against the
// preemptible budget, separately from ordinary tool failures.
type PreemptedError struct {
	Tool   string
	Reason string
}

func (e *PreemptedError) Error() string {
	return fmt.Sprintf("%s preempted: %s", e.Tool, e.Reason)
}

// ToolError is a nonzero exit from an external tool. Retried against the
// max_retries budget.
type ToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// ContractError is an input or output contract violation: a required file is
// missing, or a tool finished without producing a declared output. Never
// retried and never silently defaulted.
type ContractError struct {
	Tool   string
	Detail string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: contract violation: %s", e.Tool, e.Detail)
}

// IsPreempted reports whether err is, or wraps, a preemption.
func IsPreempted(err error) bool {
	var p *PreemptedError
	return errors.As(err, &p)
}

// IsContractViolation reports whether err is, or wraps, a contract violation.
func IsContractViolation(err error) bool {
	var c *ContractError
	return errors.As(err, &c)
}
