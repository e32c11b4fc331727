// Package orchestrator coordinates the tiered execution of tasks: it
// owns the task state machine, invokes the dispatcher per worker tier,
// runs the synthesis stages between tiers, and persists every transition
// to the session store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cascade/internal/dispatch"
	"cascade/internal/state"
	"cascade/internal/synth"
	"cascade/pkg/models"
)

// Orchestrator advances one session's current task through the state
// machine. All mutations to the task's status happen on the Run
// goroutine; Cancel only signals.
type Orchestrator struct {
	session     *models.Session
	dispatcher  *dispatch.Dispatcher
	synthesizer *synth.Synthesizer
	store       state.Store
	carry       string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// newOrchestrator prepares a runner for the session's current task.
// carry holds prior context when the task is a continuation.
func newOrchestrator(session *models.Session, carry string, dispatcher *dispatch.Dispatcher, synthesizer *synth.Synthesizer, store state.Store) *Orchestrator {
	return &Orchestrator{
		session:     session,
		dispatcher:  dispatcher,
		synthesizer: synthesizer,
		store:       store,
		carry:       carry,
		done:        make(chan struct{}),
	}
}

// Run drives the current task to a terminal status. The returned error
// reports store failures only; task-level failure is expressed through
// the persisted status.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)

	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()
	defer cancel()

	task := o.session.CurrentTask()
	log.Printf("[orchestrator] session %s: task %s starting (mode=%s agents=%d)",
		o.session.ID, task.ID, task.Mode, task.Agents)

	// CREATED -> DISPATCHING
	if err := o.transition(task, models.TaskDispatching); err != nil {
		return err
	}

	result, err := o.dispatcher.RunTier(ctx, task, o.carry)
	if err != nil {
		return o.fail(task, fmt.Errorf("dispatch tier 0: %w", err))
	}

	// DISPATCHING -> AGGREGATING
	o.mu.Lock()
	o.session.TierResults = append(o.session.TierResults, *result)
	task.Degraded = result.Completeness == models.CompletenessDegraded
	o.mu.Unlock()
	if err := o.transition(task, models.TaskAggregating); err != nil {
		return err
	}

	if ctx.Err() == context.Canceled {
		return o.markCancelled(task)
	}
	if result.Completeness == models.CompletenessFailed {
		// The worker tier is non-optional.
		return o.fail(task, fmt.Errorf("all %d worker assignments failed", len(result.Assignments)))
	}

	stages := synthesisStages(task)
	if len(stages) == 0 {
		// No synthesis enabled: the raw tier result is the final output.
		return o.complete(task)
	}

	// AGGREGATING -> SYNTHESIZING -> ... -> COMPLETED
	if err := o.transition(task, models.TaskSynthesizing); err != nil {
		return err
	}

	inputs, failed := synth.FromTierResult(result)
	for i, stage := range stages {
		if ctx.Err() == context.Canceled {
			return o.markCancelled(task)
		}

		artifact, err := o.synthesizer.Reduce(ctx, task, stage, inputs, failed)
		if err != nil {
			if errors.Is(err, synth.ErrNoUsableInputs) {
				return o.fail(task, err)
			}
			return o.fail(task, fmt.Errorf("synthesis tier %d: %w", stage.Index, err))
		}

		if err := o.appendArtifact(artifact); err != nil {
			return err
		}

		if artifact.Status == models.ArtifactFailed {
			if ctx.Err() == context.Canceled {
				return o.markCancelled(task)
			}
			mandatory := i == len(stages)-1
			if mandatory {
				return o.fail(task, fmt.Errorf("mandatory synthesis tier %d failed: %s", stage.Index, artifact.Error))
			}
			// Optional stage: degrade gracefully and pass the unreduced
			// inputs forward.
			log.Printf("[orchestrator] session %s: optional synthesis tier %d failed, passing inputs through",
				o.session.ID, stage.Index)
			o.setDegraded(task)
			continue
		}

		if artifact.Degraded {
			o.setDegraded(task)
		}
		inputs = synth.FromArtifact(artifact)
		failed = nil
	}

	return o.complete(task)
}

// synthesisStages returns the enabled synthesis stages in order.
func synthesisStages(task *models.Task) []models.TierStage {
	var out []models.TierStage
	for _, s := range task.Stages() {
		if s.Kind == models.StageSynthesis {
			out = append(out, s)
		}
	}
	return out
}

// transition moves the task to the next state and persists the session.
func (o *Orchestrator) transition(task *models.Task, next models.TaskStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if task.Status.Terminal() {
		return nil
	}
	task.Status = next
	o.session.UpdatedAt = time.Now().UTC()
	return o.store.SaveSession(o.session)
}

// appendArtifact records a synthesis outcome and saves the session.
func (o *Orchestrator) appendArtifact(artifact *models.SynthesisArtifact) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session.Artifacts = append(o.session.Artifacts, *artifact)
	o.session.UpdatedAt = time.Now().UTC()
	return o.store.SaveSession(o.session)
}

// setDegraded flags partial success on the task.
func (o *Orchestrator) setDegraded(task *models.Task) {
	o.mu.Lock()
	task.Degraded = true
	o.mu.Unlock()
}

// complete finalizes a successful task. A task already forced terminal
// (grace-expired cancellation) is left untouched.
func (o *Orchestrator) complete(task *models.Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if task.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	task.Status = models.TaskCompleted
	task.CompletedAt = &now
	o.session.Status = models.SessionCompleted
	o.session.UpdatedAt = now
	log.Printf("[orchestrator] session %s: task %s completed (degraded=%v)",
		o.session.ID, task.ID, task.Degraded)
	return o.store.SaveSession(o.session)
}

// fail finalizes a failed task.
func (o *Orchestrator) fail(task *models.Task, cause error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if task.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	task.Status = models.TaskFailed
	task.Error = cause.Error()
	task.CompletedAt = &now
	o.session.Status = models.SessionFailed
	o.session.UpdatedAt = now
	log.Printf("[orchestrator] session %s: task %s failed: %v", o.session.ID, task.ID, cause)
	return o.store.SaveSession(o.session)
}

// markCancelled finalizes a cancelled task. In-flight results gathered
// before the cancellation stay recorded but the session is terminal.
func (o *Orchestrator) markCancelled(task *models.Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if task.Status.Terminal() {
		return nil
	}
	now := time.Now().UTC()
	task.Status = models.TaskCancelled
	task.CompletedAt = &now
	o.session.Status = models.SessionCancelled
	o.session.UpdatedAt = now
	log.Printf("[orchestrator] session %s: task %s cancelled", o.session.ID, task.ID)
	return o.store.SaveSession(o.session)
}

// Cancel signals the run to stop issuing work and waits up to grace for
// the terminal state to land. If the run cannot wind down inside the
// grace period the cancelled status is written directly.
func (o *Orchestrator) Cancel(grace time.Duration) {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	select {
	case <-o.done:
	case <-time.After(grace):
		task := o.session.CurrentTask()
		log.Printf("[orchestrator] session %s: grace period elapsed, forcing cancelled state", o.session.ID)
		_ = o.markCancelled(task)
	}
}

// Done returns a channel closed when the run finishes.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}
