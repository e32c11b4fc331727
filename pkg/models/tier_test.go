package models

import "testing"

func TestComputeCompleteness(t *testing.T) {
	tests := []struct {
		name     string
		statuses []AssignmentStatus
		want     Completeness
	}{
		{
			name:     "all succeeded",
			statuses: []AssignmentStatus{AssignmentSucceeded, AssignmentSucceeded},
			want:     CompletenessFull,
		},
		{
			name:     "one of each",
			statuses: []AssignmentStatus{AssignmentSucceeded, AssignmentFailed},
			want:     CompletenessDegraded,
		},
		{
			name:     "cancelled counts against",
			statuses: []AssignmentStatus{AssignmentSucceeded, AssignmentCancelled},
			want:     CompletenessDegraded,
		},
		{
			name:     "all failed",
			statuses: []AssignmentStatus{AssignmentFailed, AssignmentFailed},
			want:     CompletenessFailed,
		},
		{
			name:     "empty tier",
			statuses: nil,
			want:     CompletenessFailed,
		},
		{
			name:     "single success",
			statuses: []AssignmentStatus{AssignmentSucceeded},
			want:     CompletenessFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assignments := make([]WorkerAssignment, len(tt.statuses))
			for i, s := range tt.statuses {
				assignments[i] = WorkerAssignment{Status: s}
			}
			if got := ComputeCompleteness(assignments); got != tt.want {
				t.Errorf("ComputeCompleteness() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTierResultSplits(t *testing.T) {
	r := TierResult{
		Assignments: []WorkerAssignment{
			{ID: "a", Status: AssignmentSucceeded},
			{ID: "b", Status: AssignmentFailed},
			{ID: "c", Status: AssignmentSucceeded},
			{ID: "d", Status: AssignmentCancelled},
		},
	}

	succ := r.Successes()
	if len(succ) != 2 || succ[0].ID != "a" || succ[1].ID != "c" {
		t.Errorf("Successes() = %v, want [a c] in order", succ)
	}
	fail := r.Failures()
	if len(fail) != 2 || fail[0].ID != "b" || fail[1].ID != "d" {
		t.Errorf("Failures() = %v, want [b d] in order", fail)
	}
}
