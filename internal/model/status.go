package model

// Status is the lifecycle state of a task node.
type Status int32

const (
	StatusPending Status = iota
	StatusRunning
	StatusRetrying
	StatusSucceeded
	StatusFailed
	// StatusCancelled marks a node that was never started because an
	// upstream dependency failed permanently.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusRetrying:
		return "retrying"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further state transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}
