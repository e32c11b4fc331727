package models

import "time"

// StageKind tags a tier as either a worker fan-out or a synthesis
// reduction. The pipeline is a fixed ordered list of stages rather than
// hardcoded tier classes.
type StageKind string

const (
	// StageWorker fans the task out to N worker assignments.
	StageWorker StageKind = "worker"
	// StageSynthesis reduces the prior tier's outputs into one artifact.
	StageSynthesis StageKind = "synthesis"
)

// SynthesisRole distinguishes the intermediate reduction from the final
// executive reduction. Both use the same mechanism with different prompts.
type SynthesisRole string

const (
	// RoleMid is the intermediate synthesis stage.
	RoleMid SynthesisRole = "mid"
	// RoleExecutive is the final synthesis stage.
	RoleExecutive SynthesisRole = "executive"
)

// TierStage is one layer of the worker -> synthesis -> synthesis pipeline.
type TierStage struct {
	// Index is the zero-based tier position.
	Index int `json:"index"`
	// Kind tags the stage as worker or synthesis.
	Kind StageKind `json:"kind"`
	// Role is set for synthesis stages only.
	Role SynthesisRole `json:"role,omitempty"`
}

// Completeness summarizes how much of a tier succeeded.
type Completeness string

const (
	// CompletenessFull means every assignment succeeded.
	CompletenessFull Completeness = "all_succeeded"
	// CompletenessDegraded means at least one, but not all, succeeded.
	CompletenessDegraded Completeness = "degraded"
	// CompletenessFailed means no assignment produced usable output.
	CompletenessFailed Completeness = "all_failed"
)

// TierResult is the aggregated outcome of all assignments in one tier.
// Once handed back to the orchestrator it is read-only.
type TierResult struct {
	// TaskID is the task this tier belongs to.
	TaskID string `json:"task_id"`
	// Tier is the zero-based tier index.
	Tier int `json:"tier"`
	// Assignments holds every assignment's final state, in creation order.
	Assignments []WorkerAssignment `json:"assignments"`
	// Completeness is computed from the assignment outcomes.
	Completeness Completeness `json:"completeness"`
	// CompletedAt is when the tier resolved.
	CompletedAt time.Time `json:"completed_at"`
}

// ComputeCompleteness derives the completeness flag from assignment
// outcomes. A tier with zero assignments counts as all-failed.
func ComputeCompleteness(assignments []WorkerAssignment) Completeness {
	succeeded := 0
	for _, a := range assignments {
		if a.Status == AssignmentSucceeded {
			succeeded++
		}
	}
	switch {
	case len(assignments) == 0 || succeeded == 0:
		return CompletenessFailed
	case succeeded == len(assignments):
		return CompletenessFull
	default:
		return CompletenessDegraded
	}
}

// Successes returns the assignments that succeeded, in creation order.
func (r *TierResult) Successes() []WorkerAssignment {
	var out []WorkerAssignment
	for _, a := range r.Assignments {
		if a.Status == AssignmentSucceeded {
			out = append(out, a)
		}
	}
	return out
}

// Failures returns the assignments that did not succeed.
func (r *TierResult) Failures() []WorkerAssignment {
	var out []WorkerAssignment
	for _, a := range r.Assignments {
		if a.Status != AssignmentSucceeded {
			out = append(out, a)
		}
	}
	return out
}
