package model

// Status is a lifecycle state of an evaluation job.
// Transitions are one way: NOT_STARTED -> IN_PROGRESS -> COMPLETED | ABORTED.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusAborted    Status = "ABORTED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAborted
}

// CanTransition reports if s may move to next.
// Nothing leaves a terminal state.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusNotStarted:
		return next == StatusInProgress
	case StatusInProgress:
		return next.Terminal()
	default:
		return false
	}
}

// StatusFromExitCode maps a process exit code to a terminal status.
func StatusFromExitCode(code int) Status {
	if code == 0 {
		return StatusCompleted
	}
	return StatusAborted
}
