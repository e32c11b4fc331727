package models

import "time"

// AssignmentStatus represents the per-assignment state.
type AssignmentStatus string

const (
	// AssignmentPending indicates the assignment has not started.
	AssignmentPending AssignmentStatus = "pending"
	// AssignmentRunning indicates a provider call is in flight.
	AssignmentRunning AssignmentStatus = "running"
	// AssignmentSucceeded indicates the assignment produced a result.
	AssignmentSucceeded AssignmentStatus = "succeeded"
	// AssignmentFailed indicates the assignment exhausted its attempts or
	// hit a permanent error.
	AssignmentFailed AssignmentStatus = "failed"
	// AssignmentCancelled indicates the assignment was abandoned by a
	// cancellation request.
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentPending, AssignmentRunning, AssignmentSucceeded,
		AssignmentFailed, AssignmentCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the assignment has resolved.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentSucceeded, AssignmentFailed, AssignmentCancelled:
		return true
	default:
		return false
	}
}

// WorkerAssignment binds one sub-task to one provider invocation. The
// dispatcher owns assignments for the duration of one tier's execution.
type WorkerAssignment struct {
	// ID is the unique identifier for this assignment.
	ID string `json:"id"`
	// TaskID is the parent task.
	TaskID string `json:"task_id"`
	// Tier is the zero-based tier index this assignment ran in.
	Tier int `json:"tier"`
	// Batch is the hybrid-mode batch index, zero otherwise.
	Batch int `json:"batch,omitempty"`
	// Input is the full prompt/context handed to the provider.
	Input string `json:"input"`
	// Provider is the named backend this assignment was bound to.
	Provider string `json:"provider"`
	// Attempts is the number of provider calls made, retries included.
	Attempts int `json:"attempts"`
	// Status is the current state.
	Status AssignmentStatus `json:"status"`
	// Result is the provider output when the assignment succeeded.
	Result string `json:"result,omitempty"`
	// Error is the final failure reason otherwise.
	Error string `json:"error,omitempty"`
	// StartedAt is when the first attempt was issued.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the assignment resolved.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
