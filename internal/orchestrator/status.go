package orchestrator

import (
	"time"

	"cascade/pkg/models"
)

// Status is a point-in-time view of a session's progress, safe to
// serialize for the CLI.
type Status struct {
	SessionID   string               `json:"session_id"`
	TaskID      string               `json:"task_id"`
	Description string               `json:"description"`
	Mode        models.ExecutionMode `json:"mode"`
	Agents      int                  `json:"agents"`
	State       models.TaskStatus    `json:"state"`
	Degraded    bool                 `json:"degraded,omitempty"`
	Error       string               `json:"error,omitempty"`
	Live        bool                 `json:"live"`
	Tiers       []TierProgress       `json:"tiers,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// TierProgress summarizes one resolved tier.
type TierProgress struct {
	Tier         int                 `json:"tier"`
	Kind         models.StageKind    `json:"kind"`
	Succeeded    int                 `json:"succeeded"`
	Failed       int                 `json:"failed"`
	Completeness models.Completeness `json:"completeness,omitempty"`
}

// StatusOf derives a Status from a loaded session for read-only callers
// that do not hold an engine.
func StatusOf(session *models.Session) *Status {
	return buildStatus(session, false)
}

// buildStatus derives a Status from the session's current task.
func buildStatus(session *models.Session, live bool) *Status {
	task := session.CurrentTask()
	if task == nil {
		return &Status{SessionID: session.ID, Live: live, CreatedAt: session.CreatedAt}
	}

	st := &Status{
		SessionID:   session.ID,
		TaskID:      task.ID,
		Description: task.Description,
		Mode:        task.Mode,
		Agents:      task.Agents,
		State:       task.Status,
		Degraded:    task.Degraded,
		Error:       task.Error,
		Live:        live,
		CreatedAt:   task.CreatedAt,
		CompletedAt: task.CompletedAt,
	}

	for _, r := range session.ResultsForTask(task.ID) {
		st.Tiers = append(st.Tiers, TierProgress{
			Tier:         r.Tier,
			Kind:         models.StageWorker,
			Succeeded:    len(r.Successes()),
			Failed:       len(r.Failures()),
			Completeness: r.Completeness,
		})
	}
	for _, a := range session.ArtifactsForTask(task.ID) {
		p := TierProgress{Tier: a.Tier, Kind: models.StageSynthesis}
		if a.Status == models.ArtifactSucceeded {
			p.Succeeded = 1
		} else {
			p.Failed = 1
		}
		st.Tiers = append(st.Tiers, p)
	}
	return st
}
