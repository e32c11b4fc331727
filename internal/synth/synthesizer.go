// Package synth reduces the outputs of one tier into a single synthesis
// artifact. The mid and executive stages share the mechanism and differ
// only in role prompts.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"cascade/internal/provider"
	"cascade/pkg/models"
)

// ErrNoUsableInputs is returned when a synthesis stage has zero
// successful prior outputs to reduce.
var ErrNoUsableInputs = errors.New("synthesis stage has zero usable inputs")

// Input is one successful prior output handed to a synthesis stage.
type Input struct {
	// Label identifies the source (worker id or prior stage role).
	Label string
	// Content is the source text.
	Content string
}

// Synthesizer reduces prior outputs via one provider call under the same
// retry policy as a worker assignment.
type Synthesizer struct {
	registry *provider.Registry
	retry    provider.RetryPolicy
}

// New creates a Synthesizer.
func New(registry *provider.Registry, retry provider.RetryPolicy) *Synthesizer {
	return &Synthesizer{registry: registry, retry: retry}
}

// Reduce runs one synthesis stage for the task. failed lists the labels
// of prior inputs that did not succeed; a non-empty list marks the
// artifact degraded and is surfaced to the model so the reduction can
// note the gap. The returned artifact carries a failed status when
// retries exhaust; only a zero-input stage returns an error.
func (s *Synthesizer) Reduce(ctx context.Context, task *models.Task, stage models.TierStage, inputs []Input, failed []string) (*models.SynthesisArtifact, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("tier %d (%s): %w", stage.Index, stage.Role, ErrNoUsableInputs)
	}

	adapter, err := s.registry.Resolve(task.Provider)
	if err != nil {
		return nil, err
	}

	artifact := &models.SynthesisArtifact{
		ID:         uuid.New().String()[:8],
		TaskID:     task.ID,
		Tier:       stage.Index,
		Role:       stage.Role,
		SourceTier: stage.Index - 1,
		Degraded:   len(failed) > 0,
	}

	text, _, err := s.retry.Invoke(ctx, adapter, provider.Request{
		System: systemPrompt(stage.Role),
		Prompt: reductionPrompt(task, inputs, failed),
	})
	artifact.CreatedAt = time.Now().UTC()
	if err != nil {
		artifact.Status = models.ArtifactFailed
		artifact.Error = err.Error()
		log.Printf("[synth] task %s: tier %d (%s) failed: %v", task.ID, stage.Index, stage.Role, err)
		return artifact, nil
	}

	artifact.Status = models.ArtifactSucceeded
	artifact.Content = text
	log.Printf("[synth] task %s: tier %d (%s) produced %d bytes from %d inputs",
		task.ID, stage.Index, stage.Role, len(text), len(inputs))
	return artifact, nil
}

// systemPrompt selects the role framing for a stage.
func systemPrompt(role models.SynthesisRole) string {
	if role == models.RoleExecutive {
		return "You are the executive synthesizer. Reduce the intermediate analyses below into one final report with a clear executive summary."
	}
	return "You are a mid-level synthesizer. Combine the worker findings below into one coherent intermediate analysis, preserving concrete details."
}

// reductionPrompt concatenates the inputs with explicit delimiters and
// annotates which sources failed when the set is partial.
func reductionPrompt(task *models.Task, inputs []Input, failed []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original task: %s\n", task.Description)
	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nNote: the following sources failed and are NOT included: %s\n",
			strings.Join(failed, ", "))
	}
	for _, in := range inputs {
		fmt.Fprintf(&b, "\n=== begin source: %s ===\n%s\n=== end source: %s ===\n",
			in.Label, in.Content, in.Label)
	}
	return b.String()
}

// FromTierResult converts a worker tier result into synthesis inputs and
// the failed-source labels.
func FromTierResult(result *models.TierResult) (inputs []Input, failed []string) {
	for _, a := range result.Assignments {
		if a.Status == models.AssignmentSucceeded {
			inputs = append(inputs, Input{Label: "worker " + a.ID, Content: a.Result})
			continue
		}
		failed = append(failed, fmt.Sprintf("worker %s (%s)", a.ID, a.Status))
	}
	return inputs, failed
}

// FromArtifact converts a prior synthesis artifact into the input set for
// the next stage.
func FromArtifact(a *models.SynthesisArtifact) []Input {
	return []Input{{Label: string(a.Role) + " synthesis", Content: a.Content}}
}
