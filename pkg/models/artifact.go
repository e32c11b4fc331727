package models

import "time"

// ArtifactStatus represents the outcome of one synthesis invocation.
type ArtifactStatus string

const (
	// ArtifactSucceeded indicates the synthesis call produced content.
	ArtifactSucceeded ArtifactStatus = "succeeded"
	// ArtifactFailed indicates the synthesis call exhausted its retries.
	ArtifactFailed ArtifactStatus = "failed"
	// ArtifactSkipped indicates an optional stage was bypassed and the
	// unreduced tier result passed forward instead.
	ArtifactSkipped ArtifactStatus = "skipped"
)

// SynthesisArtifact is the reduced output of a synthesis tier.
type SynthesisArtifact struct {
	// ID is the unique identifier for this artifact.
	ID string `json:"id"`
	// TaskID is the task this artifact belongs to.
	TaskID string `json:"task_id"`
	// Tier is the zero-based tier index of the synthesis stage.
	Tier int `json:"tier"`
	// Role is mid or executive.
	Role SynthesisRole `json:"role"`
	// SourceTier is the tier whose outputs were reduced.
	SourceTier int `json:"source_tier"`
	// Content is the generated text.
	Content string `json:"content,omitempty"`
	// Status is the generation outcome.
	Status ArtifactStatus `json:"status"`
	// Degraded is set when one or more inputs to this stage had failed.
	Degraded bool `json:"degraded,omitempty"`
	// Error is the failure reason when Status is failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the synthesis resolved.
	CreatedAt time.Time `json:"created_at"`
}
