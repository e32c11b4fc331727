// Package dispatch creates worker assignments from a task and executes
// them under the selected execution mode, collecting their outcomes into
// a tier result.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"cascade/internal/provider"
	"cascade/pkg/models"
)

// Config configures a Dispatcher.
type Config struct {
	// Registry resolves provider names to adapters.
	Registry *provider.Registry
	// Retry is the per-assignment retry policy.
	Retry provider.RetryPolicy
	// PoolSize is the shared concurrency ceiling across all sessions.
	// Zero means models.MaxAgents.
	PoolSize int
	// TierTimeout bounds a whole tier in parallel and hybrid modes.
	// Zero means 10 minutes.
	TierTimeout time.Duration
	// CarryBudget caps carry-forward context bytes in sequential and
	// hybrid modes. Zero means 32 KiB.
	CarryBudget int
}

// Dispatcher schedules worker assignments and resolves them into tier
// results. One dispatcher is shared by all sessions; the semaphore is the
// only shared mutable resource.
type Dispatcher struct {
	registry    *provider.Registry
	retry       provider.RetryPolicy
	pool        *semaphore.Weighted
	poolSize    int
	tierTimeout time.Duration
	carryBudget int
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = models.MaxAgents
	}
	tierTimeout := cfg.TierTimeout
	if tierTimeout <= 0 {
		tierTimeout = 10 * time.Minute
	}
	carryBudget := cfg.CarryBudget
	if carryBudget <= 0 {
		carryBudget = 32 * 1024
	}
	return &Dispatcher{
		registry:    cfg.Registry,
		retry:       cfg.Retry,
		pool:        semaphore.NewWeighted(int64(poolSize)),
		poolSize:    poolSize,
		tierTimeout: tierTimeout,
		carryBudget: carryBudget,
	}
}

// PoolSize returns the hard concurrency ceiling. Requests for more
// workers than this are rejected before dispatch, never clamped.
func (d *Dispatcher) PoolSize() int {
	return d.poolSize
}

// RunTier executes the worker tier for the task and returns its result.
// carry is prior context from a continuation, empty for a fresh task.
// Assignment-level errors are absorbed into the result's completeness;
// the returned error is non-nil only when the tier could not run at all.
func (d *Dispatcher) RunTier(ctx context.Context, task *models.Task, carry string) (*models.TierResult, error) {
	adapter, err := d.registry.Resolve(task.Provider)
	if err != nil {
		return nil, err
	}

	assignments := d.makeAssignments(task)
	log.Printf("[dispatch] task %s: %d assignments, mode=%s provider=%s",
		task.ID, len(assignments), task.Mode, task.Provider)

	switch task.Mode {
	case models.ModeParallel:
		d.runParallel(ctx, adapter, assignments, carry)
	case models.ModeSequential:
		assignments = d.runSequential(ctx, adapter, assignments, carry)
	case models.ModeHybrid:
		d.runHybrid(ctx, adapter, assignments, carry, task.EffectiveBatchSize())
	default:
		return nil, fmt.Errorf("unknown execution mode %q", task.Mode)
	}

	result := &models.TierResult{
		TaskID:       task.ID,
		Tier:         0,
		Assignments:  assignments,
		Completeness: models.ComputeCompleteness(assignments),
		CompletedAt:  time.Now().UTC(),
	}
	log.Printf("[dispatch] task %s: tier 0 resolved, completeness=%s", task.ID, result.Completeness)
	return result, nil
}

// makeAssignments builds one pending assignment per requested worker.
func (d *Dispatcher) makeAssignments(task *models.Task) []models.WorkerAssignment {
	out := make([]models.WorkerAssignment, task.Agents)
	for i := range out {
		out[i] = models.WorkerAssignment{
			ID:       uuid.New().String()[:8],
			TaskID:   task.ID,
			Tier:     0,
			Input:    workerPrompt(task, i),
			Provider: task.Provider,
			Status:   models.AssignmentPending,
		}
	}
	return out
}

// workerPrompt frames one worker's slice of the task. Workers share the
// task text but are pushed toward distinct perspectives so the synthesis
// stages have material to reduce.
func workerPrompt(task *models.Task, idx int) string {
	return fmt.Sprintf("You are research worker %d of %d.\nInvestigate the following task from your own angle and report concrete findings.\n\nTask: %s",
		idx+1, task.Agents, task.Description)
}

// execute runs one assignment to a terminal status: acquire a pool slot,
// invoke the adapter under the retry policy, and record the outcome.
// carry travels only in Request.Context; the adapter decides how to
// join it with the prompt, so it must never be folded into the input.
func (d *Dispatcher) execute(ctx context.Context, adapter provider.Adapter, a *models.WorkerAssignment, carry string) {
	if err := d.pool.Acquire(ctx, 1); err != nil {
		resolve(a, ctx, err)
		return
	}
	defer d.pool.Release(1)

	now := time.Now().UTC()
	a.StartedAt = &now
	a.Status = models.AssignmentRunning

	text, attempts, err := d.retry.Invoke(ctx, adapter, provider.Request{
		Prompt:  a.Input,
		Context: carry,
	})
	a.Attempts = attempts
	if err != nil {
		resolve(a, ctx, err)
		return
	}

	done := time.Now().UTC()
	a.CompletedAt = &done
	a.Result = text
	a.Status = models.AssignmentSucceeded
}

// resolve marks a failed or cancelled assignment. Cancellation requests
// produce cancelled status; tier timeouts and provider failures produce
// failed status with the error preserved.
func resolve(a *models.WorkerAssignment, ctx context.Context, err error) {
	done := time.Now().UTC()
	a.CompletedAt = &done
	a.Error = err.Error()
	if ctx.Err() == context.Canceled {
		a.Status = models.AssignmentCancelled
		return
	}
	a.Status = models.AssignmentFailed
}
