package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cascade/pkg/models"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// ErrConflict is returned when a continuation is appended to a session
// whose current task is not terminal.
var ErrConflict = errors.New("session has a non-terminal task")

// SaveSession persists the full session tree in one transaction. No
// partial write is ever visible to readers: the session's rows are
// replaced wholesale.
func (db *DB) SaveSession(s *models.Session) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at
	`, s.ID, string(s.Status), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	for _, table := range []string{"assignments", "tier_results", "artifacts", "tasks"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", table), s.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for seq, t := range s.Tasks {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, session_id, seq, description, mode, agents, batch_size, provider,
				mid_synthesis, executive_synthesis, status, degraded, error, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, s.ID, seq, t.Description, string(t.Mode), t.Agents, t.BatchSize, t.Provider,
			boolToInt(t.MidSynthesis), boolToInt(t.ExecutiveSynthesis), string(t.Status),
			boolToInt(t.Degraded), t.Error, formatTime(t.CreatedAt), formatNullableTime(t.CompletedAt))
		if err != nil {
			return fmt.Errorf("insert task %s: %w", t.ID, err)
		}
	}

	for _, r := range s.TierResults {
		_, err := tx.Exec(`
			INSERT INTO tier_results (task_id, session_id, tier, completeness, completed_at)
			VALUES (?, ?, ?, ?, ?)
		`, r.TaskID, s.ID, r.Tier, string(r.Completeness), formatTime(r.CompletedAt))
		if err != nil {
			return fmt.Errorf("insert tier result %s/%d: %w", r.TaskID, r.Tier, err)
		}
		for _, a := range r.Assignments {
			_, err := tx.Exec(`
				INSERT INTO assignments (id, session_id, task_id, tier, batch, input, provider,
					attempts, status, result, error, started_at, completed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, a.ID, s.ID, a.TaskID, a.Tier, a.Batch, a.Input, a.Provider,
				a.Attempts, string(a.Status), a.Result, a.Error,
				formatNullableTime(a.StartedAt), formatNullableTime(a.CompletedAt))
			if err != nil {
				return fmt.Errorf("insert assignment %s: %w", a.ID, err)
			}
		}
	}

	for _, art := range s.Artifacts {
		_, err := tx.Exec(`
			INSERT INTO artifacts (id, session_id, task_id, tier, role, source_tier,
				content, status, degraded, error, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, art.ID, s.ID, art.TaskID, art.Tier, string(art.Role), art.SourceTier,
			art.Content, string(art.Status), boolToInt(art.Degraded), art.Error, formatTime(art.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert artifact %s: %w", art.ID, err)
		}
	}

	return tx.Commit()
}

// LoadSession reconstructs a full session tree by id.
func (db *DB) LoadSession(id string) (*models.Session, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var s models.Session
	var createdAt, updatedAt string
	row := db.conn.QueryRow(`SELECT id, status, created_at, updated_at FROM sessions WHERE id = ?`, id)
	err := row.Scan(&s.ID, &s.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.CreatedAt, _ = parseTime(createdAt)
	s.UpdatedAt, _ = parseTime(updatedAt)

	if s.Tasks, err = db.loadTasks(id); err != nil {
		return nil, err
	}
	if s.TierResults, err = db.loadTierResults(id); err != nil {
		return nil, err
	}
	if s.Artifacts, err = db.loadArtifacts(id); err != nil {
		return nil, err
	}
	return &s, nil
}

// loadTasks returns the session's tasks in append order.
func (db *DB) loadTasks(sessionID string) ([]models.Task, error) {
	rows, err := db.conn.Query(`
		SELECT id, description, mode, agents, batch_size, provider,
			mid_synthesis, executive_synthesis, status, degraded, error, created_at, completed_at
		FROM tasks WHERE session_id = ? ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		var mid, exec, degraded int
		var errText sql.NullString
		var createdAt string
		var completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.Description, &t.Mode, &t.Agents, &t.BatchSize, &t.Provider,
			&mid, &exec, &t.Status, &degraded, &errText, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.SessionID = sessionID
		t.MidSynthesis = mid != 0
		t.ExecutiveSynthesis = exec != 0
		t.Degraded = degraded != 0
		t.Error = errText.String
		t.CreatedAt, _ = parseTime(createdAt)
		t.CompletedAt = parseNullableTime(completedAt)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// loadTierResults returns tier results with their assignments attached.
func (db *DB) loadTierResults(sessionID string) ([]models.TierResult, error) {
	rows, err := db.conn.Query(`
		SELECT task_id, tier, completeness, completed_at
		FROM tier_results WHERE session_id = ? ORDER BY completed_at, tier
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load tier results: %w", err)
	}
	defer rows.Close()

	var results []models.TierResult
	for rows.Next() {
		var r models.TierResult
		var completedAt string
		if err := rows.Scan(&r.TaskID, &r.Tier, &r.Completeness, &completedAt); err != nil {
			return nil, fmt.Errorf("scan tier result: %w", err)
		}
		r.CompletedAt, _ = parseTime(completedAt)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		assignments, err := db.loadAssignments(results[i].TaskID, results[i].Tier)
		if err != nil {
			return nil, err
		}
		results[i].Assignments = assignments
	}
	return results, nil
}

// loadAssignments returns one tier's assignments in insertion order.
func (db *DB) loadAssignments(taskID string, tier int) ([]models.WorkerAssignment, error) {
	rows, err := db.conn.Query(`
		SELECT id, task_id, tier, batch, input, provider, attempts, status, result, error, started_at, completed_at
		FROM assignments WHERE task_id = ? AND tier = ? ORDER BY rowid
	`, taskID, tier)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer rows.Close()

	var assignments []models.WorkerAssignment
	for rows.Next() {
		var a models.WorkerAssignment
		var result, errText sql.NullString
		var startedAt, completedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Tier, &a.Batch, &a.Input, &a.Provider,
			&a.Attempts, &a.Status, &result, &errText, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.Result = result.String
		a.Error = errText.String
		a.StartedAt = parseNullableTime(startedAt)
		a.CompletedAt = parseNullableTime(completedAt)
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// loadArtifacts returns the session's synthesis artifacts in tier order.
func (db *DB) loadArtifacts(sessionID string) ([]models.SynthesisArtifact, error) {
	rows, err := db.conn.Query(`
		SELECT id, task_id, tier, role, source_tier, content, status, degraded, error, created_at
		FROM artifacts WHERE session_id = ? ORDER BY created_at, tier
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []models.SynthesisArtifact
	for rows.Next() {
		var a models.SynthesisArtifact
		var content, errText sql.NullString
		var degraded int
		var createdAt string
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Tier, &a.Role, &a.SourceTier,
			&content, &a.Status, &degraded, &errText, &createdAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		a.Content = content.String
		a.Degraded = degraded != 0
		a.Error = errText.String
		a.CreatedAt, _ = parseTime(createdAt)
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	ID          string
	Status      models.SessionStatus
	Description string
	Tasks       int
	UpdatedAt   time.Time
}

// ListSessions returns summaries of the most recently updated sessions,
// newest first. limit <= 0 means all.
func (db *DB) ListSessions(limit int) ([]SessionSummary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	q := `
		SELECT s.id, s.status, s.updated_at,
			COALESCE((SELECT description FROM tasks WHERE session_id = s.id ORDER BY seq DESC LIMIT 1), ''),
			(SELECT COUNT(*) FROM tasks WHERE session_id = s.id)
		FROM sessions s ORDER BY s.updated_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.conn.Query(q+" LIMIT ?", limit)
	} else {
		rows, err = db.conn.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var s SessionSummary
		var updatedAt string
		if err := rows.Scan(&s.ID, &s.Status, &updatedAt, &s.Description, &s.Tasks); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		s.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// AppendContinuation appends a new task to an existing session. The
// session's current task must be terminal.
func (db *DB) AppendContinuation(sessionID string, task models.Task) (*models.Session, error) {
	s, err := db.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	if cur := s.CurrentTask(); cur != nil && !cur.Status.Terminal() {
		return nil, fmt.Errorf("session %q task %q is %s: %w", sessionID, cur.ID, cur.Status, ErrConflict)
	}

	task.SessionID = sessionID
	s.Tasks = append(s.Tasks, task)
	s.Status = models.SessionActive
	s.UpdatedAt = time.Now().UTC()
	if err := db.SaveSession(s); err != nil {
		return nil, err
	}
	return s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
