package poller

import "context"

// State is the backend-reported state of a job.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	// StateTimedOut is never reported by a backend. The poller assigns it
	// once it stops watching; the job itself may still finish.
	StateTimedOut State = "timed_out"
)

// ParseState maps the loose status strings backends use onto State.
// Anything unrecognized counts as still pending.
func ParseState(s string) State {
	switch s {
	case "completed", "complete", "succeeded", "success", "done", "ready":
		return StateCompleted
	case "failed", "failure", "error", "cancelled", "canceled":
		return StateFailed
	default:
		return StatePending
	}
}

// JobStatus is one status answer.
type JobStatus struct {
	State       State
	ArtifactURL string
	Error       string
}

// StatusSource answers status queries for one capability's jobs.
type StatusSource interface {
	Status(ctx context.Context, jobID string) (JobStatus, error)
}
