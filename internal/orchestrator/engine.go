package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cascade/internal/dispatch"
	"cascade/internal/signals"
	"cascade/internal/state"
	"cascade/internal/synth"
	"cascade/pkg/models"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	Store       state.Store
	Dispatcher  *dispatch.Dispatcher
	Synthesizer *synth.Synthesizer
	// Signals is optional; when set, cancel signal files from other
	// processes cancel the matching running session.
	Signals *signals.Manager
	// CancelGrace bounds how long Cancel waits for in-flight work to wind
	// down before forcing the cancelled state. Zero means 5 seconds.
	CancelGrace time.Duration
}

// Engine is the public entrypoint of the orchestration core: it accepts
// task submissions, runs one orchestrator per active session, and
// answers status, cancellation, and result queries for both live and
// persisted sessions.
type Engine struct {
	store       state.Store
	dispatcher  *dispatch.Dispatcher
	synthesizer *synth.Synthesizer
	signals     *signals.Manager
	grace       time.Duration

	mu      sync.RWMutex
	running map[string]*Orchestrator
	wg      sync.WaitGroup
}

// NewEngine creates an Engine and wires cross-process cancel signals to
// Cancel when a signal manager is provided.
func NewEngine(cfg EngineConfig) *Engine {
	grace := cfg.CancelGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	e := &Engine{
		store:       cfg.Store,
		dispatcher:  cfg.Dispatcher,
		synthesizer: cfg.Synthesizer,
		signals:     cfg.Signals,
		grace:       grace,
		running:     make(map[string]*Orchestrator),
	}
	if e.signals != nil {
		e.signals.SetOnCancel(func(sessionID string) {
			if err := e.Cancel(sessionID); err != nil {
				log.Printf("[engine] cancel signal for %s: %v", sessionID, err)
			}
		})
	}
	return e
}

// Submit validates a task, creates its session, persists it, and starts
// the run. Validation failures are reported as ErrConfig before any
// assignment executes.
func (e *Engine) Submit(ctx context.Context, task models.Task) (*models.Session, error) {
	if err := e.validate(&task); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.New().String()[:8],
		Status:    models.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	task.ID = uuid.New().String()[:8]
	task.SessionID = session.ID
	task.Status = models.TaskCreated
	task.CreatedAt = now
	session.Tasks = []models.Task{task}

	if err := e.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("persisting new session: %w", err)
	}

	e.start(ctx, session, "")
	return session, nil
}

// Continue appends a follow-up task to a completed session and starts it
// with the prior task's final output as carry context. A non-terminal
// current task yields the store's conflict error.
func (e *Engine) Continue(ctx context.Context, sessionID string, task models.Task) (*models.Session, error) {
	if err := e.validate(&task); err != nil {
		return nil, err
	}

	prior, err := e.store.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	carry := ""
	if prev := prior.CurrentTask(); prev != nil && prev.Status == models.TaskCompleted {
		carry = finalOutput(prior, prev)
	}

	now := time.Now().UTC()
	task.ID = uuid.New().String()[:8]
	task.SessionID = sessionID
	task.Status = models.TaskCreated
	task.CreatedAt = now

	session, err := e.store.AppendContinuation(sessionID, task)
	if err != nil {
		return nil, err
	}

	e.start(ctx, session, carry)
	return session, nil
}

// start registers and launches an orchestrator for the session.
func (e *Engine) start(ctx context.Context, session *models.Session, carry string) {
	o := newOrchestrator(session, carry, e.dispatcher, e.synthesizer, e.store)

	e.mu.Lock()
	e.running[session.ID] = o
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := o.Run(ctx); err != nil {
			log.Printf("[engine] session %s: run error: %v", session.ID, err)
		}
		e.mu.Lock()
		delete(e.running, session.ID)
		e.mu.Unlock()
		if e.signals != nil {
			e.signals.Clear(session.ID)
		}
	}()
}

// validate applies the pre-dispatch checks. Every violation wraps
// ErrConfig so callers can map it to the config exit code.
func (e *Engine) validate(task *models.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if task.Agents > e.dispatcher.PoolSize() {
		return fmt.Errorf("%w: agent count %d exceeds pool size %d",
			ErrConfig, task.Agents, e.dispatcher.PoolSize())
	}
	return nil
}

// Status reports a session's progress from its persisted snapshot; the
// orchestrator saves after every transition, so the snapshot is at most
// one stage behind the live run. An unknown id yields the store's
// not-found error.
func (e *Engine) Status(sessionID string) (*Status, error) {
	e.mu.RLock()
	_, live := e.running[sessionID]
	e.mu.RUnlock()

	session, err := e.store.LoadSession(sessionID)
	if err != nil {
		return nil, err
	}
	return buildStatus(session, live), nil
}

// Cancel stops a session's run. Cancelling a session that already
// reached a terminal state is a no-op; the acknowledged state is
// reported either way. An unknown id yields the store's not-found error.
func (e *Engine) Cancel(sessionID string) error {
	e.mu.RLock()
	o, live := e.running[sessionID]
	e.mu.RUnlock()
	if live {
		o.Cancel(e.grace)
		return nil
	}

	session, err := e.store.LoadSession(sessionID)
	if err != nil {
		return err
	}
	// Terminal already: idempotent acknowledgement.
	if session.Status.Terminal() {
		return nil
	}
	// Active in another process: drop a signal file for it.
	if e.signals != nil {
		return e.signals.SendCancel(sessionID)
	}
	return nil
}

// Results returns the final output of a completed session: the last
// successful synthesis artifact, or the deterministic concatenation of
// worker outputs when no synthesis stage ran. A session that has not
// completed yields ErrNotReady. The persisted snapshot is authoritative;
// a still-running session is simply not completed yet.
func (e *Engine) Results(sessionID string) (string, error) {
	session, err := e.store.LoadSession(sessionID)
	if err != nil {
		return "", err
	}
	return FinalOutput(session)
}

// FinalOutput resolves a session's final text without an engine, for
// read-only callers holding a loaded session. A session whose current
// task has not completed yields ErrNotReady.
func FinalOutput(session *models.Session) (string, error) {
	task := session.CurrentTask()
	if task == nil || task.Status != models.TaskCompleted {
		return "", fmt.Errorf("session %s: %w", session.ID, ErrNotReady)
	}
	return finalOutput(session, task), nil
}

// finalOutput resolves a completed task's output text.
func finalOutput(session *models.Session, task *models.Task) string {
	if artifact, ok := session.FinalArtifact(task.ID); ok {
		return artifact.Content
	}
	return renderRaw(session, task)
}

// renderRaw concatenates successful worker outputs in assignment order
// with stable delimiters. Repeated calls over the same session produce
// byte-identical output.
func renderRaw(session *models.Session, task *models.Task) string {
	var b strings.Builder
	for _, result := range session.ResultsForTask(task.ID) {
		for i, a := range result.Assignments {
			if a.Status != models.AssignmentSucceeded {
				continue
			}
			fmt.Fprintf(&b, "=== worker %d (%s) ===\n%s\n", i+1, a.ID, a.Result)
		}
	}
	return b.String()
}

// Wait blocks until the session's run finishes. It returns immediately
// for sessions that are not running.
func (e *Engine) Wait(sessionID string) {
	e.mu.RLock()
	o, live := e.running[sessionID]
	e.mu.RUnlock()
	if live {
		<-o.Done()
	}
}

// Stop cancels every running session and waits for all runs to land.
func (e *Engine) Stop() {
	e.mu.RLock()
	ids := make([]string, 0, len(e.running))
	for id := range e.running {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		_ = e.Cancel(id)
	}
	e.wg.Wait()
}
