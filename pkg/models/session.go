package models

import "time"

// SessionStatus represents the status of a session.
type SessionStatus string

const (
	// SessionActive indicates a task in this session is still advancing.
	SessionActive SessionStatus = "active"
	// SessionCompleted indicates the latest task completed.
	SessionCompleted SessionStatus = "completed"
	// SessionFailed indicates the latest task failed.
	SessionFailed SessionStatus = "failed"
	// SessionCancelled indicates the latest task was cancelled.
	SessionCancelled SessionStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionFailed, SessionCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the session is no longer advancing. A
// continuation may still be appended to a terminal session.
func (s SessionStatus) Terminal() bool {
	return s != SessionActive
}

// Session is the durable container for one task and its continuations. A
// continuation appends a new task sharing prior context; the old task is
// never mutated, preserving history.
type Session struct {
	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// Tasks is the ordered task history; the last entry is current.
	Tasks []Task `json:"tasks"`
	// TierResults holds the tier outcomes for every task, keyed in
	// insertion order by (task, tier).
	TierResults []TierResult `json:"tier_results,omitempty"`
	// Artifacts holds the synthesis artifacts for every task.
	Artifacts []SynthesisArtifact `json:"artifacts,omitempty"`
	// Status mirrors the current task's terminal or active state.
	Status SessionStatus `json:"status"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the session last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// CurrentTask returns the most recently appended task, or nil for an
// empty session. At most one task is non-terminal at a time.
func (s *Session) CurrentTask() *Task {
	if len(s.Tasks) == 0 {
		return nil
	}
	return &s.Tasks[len(s.Tasks)-1]
}

// ResultsForTask returns the tier results recorded for a task, in tier
// order.
func (s *Session) ResultsForTask(taskID string) []TierResult {
	var out []TierResult
	for _, r := range s.TierResults {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out
}

// ArtifactsForTask returns the synthesis artifacts recorded for a task,
// in tier order.
func (s *Session) ArtifactsForTask(taskID string) []SynthesisArtifact {
	var out []SynthesisArtifact
	for _, a := range s.Artifacts {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out
}

// FinalArtifact returns the content of the last successful synthesis
// artifact for a task, or the concatenation rule falls back to the caller
// when none exists.
func (s *Session) FinalArtifact(taskID string) (*SynthesisArtifact, bool) {
	arts := s.ArtifactsForTask(taskID)
	for i := len(arts) - 1; i >= 0; i-- {
		if arts[i].Status == ArtifactSucceeded {
			return &arts[i], true
		}
	}
	return nil, false
}
