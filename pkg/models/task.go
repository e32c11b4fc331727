// Package models defines the core value types shared across the cascade
// engine: tasks, sessions, worker assignments, tier results, and synthesis
// artifacts.
package models

import (
	"fmt"
	"time"
)

// ExecutionMode governs concurrency and ordering of worker assignments
// within a tier.
type ExecutionMode string

const (
	// ModeParallel starts all assignments concurrently with no ordering.
	ModeParallel ExecutionMode = "parallel"
	// ModeSequential runs assignments one at a time, carrying each result
	// forward into the next assignment's context.
	ModeSequential ExecutionMode = "sequential"
	// ModeHybrid partitions assignments into batches; batches run
	// sequentially, assignments within a batch run in parallel.
	ModeHybrid ExecutionMode = "hybrid"
)

// Valid returns true if the mode is a known value.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ModeParallel, ModeSequential, ModeHybrid:
		return true
	default:
		return false
	}
}

// TaskStatus represents the current state of a task in the orchestration
// state machine.
type TaskStatus string

const (
	// TaskCreated indicates the task has been accepted but not dispatched.
	TaskCreated TaskStatus = "created"
	// TaskDispatching indicates worker assignments are executing.
	TaskDispatching TaskStatus = "dispatching"
	// TaskAggregating indicates a tier's outcomes are being collected.
	TaskAggregating TaskStatus = "aggregating"
	// TaskSynthesizing indicates a synthesis stage is running.
	TaskSynthesizing TaskStatus = "synthesizing"
	// TaskCompleted indicates the task produced a final artifact.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed indicates a mandatory stage failed with no usable output.
	TaskFailed TaskStatus = "failed"
	// TaskCancelled indicates the task was cancelled by request.
	TaskCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskCreated, TaskDispatching, TaskAggregating, TaskSynthesizing,
		TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final. Terminal tasks are
// immutable.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Worker count bounds enforced before any dispatch.
const (
	MinAgents = 1
	MaxAgents = 16
)

// Task is one top-level unit of orchestrated work submitted by a caller.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// SessionID is the session this task belongs to.
	SessionID string `json:"session_id"`
	// Description is the free-text statement of the work.
	Description string `json:"description"`
	// Mode is the execution mode for the worker tier.
	Mode ExecutionMode `json:"mode"`
	// Agents is the requested worker count (MinAgents..MaxAgents).
	Agents int `json:"agents"`
	// BatchSize is the hybrid-mode batch width. Zero means ceil(Agents/2).
	BatchSize int `json:"batch_size,omitempty"`
	// Provider is the named backend the assignments run against.
	Provider string `json:"provider"`
	// MidSynthesis enables the intermediate synthesis stage.
	MidSynthesis bool `json:"mid_synthesis"`
	// ExecutiveSynthesis enables the final synthesis stage.
	ExecutiveSynthesis bool `json:"executive_synthesis"`
	// Status is the current state machine position.
	Status TaskStatus `json:"status"`
	// Degraded is set when the task completed with partial worker success.
	Degraded bool `json:"degraded,omitempty"`
	// Error holds the failure reason when Status is failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was accepted.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks the task's shape before any dispatch. The returned error
// describes the first violation found.
func (t *Task) Validate() error {
	if t.Description == "" {
		return fmt.Errorf("task description is empty")
	}
	if !t.Mode.Valid() {
		return fmt.Errorf("unknown execution mode %q", t.Mode)
	}
	if t.Agents < MinAgents || t.Agents > MaxAgents {
		return fmt.Errorf("agent count %d out of range [%d, %d]", t.Agents, MinAgents, MaxAgents)
	}
	if t.Mode == ModeHybrid && t.EffectiveBatchSize() < 1 {
		return fmt.Errorf("hybrid mode needs at least one batch")
	}
	if t.BatchSize < 0 {
		return fmt.Errorf("batch size %d is negative", t.BatchSize)
	}
	return nil
}

// EffectiveBatchSize returns the hybrid batch width, defaulting to
// ceil(Agents/2) when unset.
func (t *Task) EffectiveBatchSize() int {
	if t.BatchSize > 0 {
		return t.BatchSize
	}
	return (t.Agents + 1) / 2
}

// Stages returns the ordered tier stages this task will execute: one
// worker stage followed by the enabled synthesis stages.
func (t *Task) Stages() []TierStage {
	stages := []TierStage{{Index: 0, Kind: StageWorker}}
	next := 1
	if t.MidSynthesis {
		stages = append(stages, TierStage{Index: next, Kind: StageSynthesis, Role: RoleMid})
		next++
	}
	if t.ExecutiveSynthesis {
		stages = append(stages, TierStage{Index: next, Kind: StageSynthesis, Role: RoleExecutive})
	}
	return stages
}
