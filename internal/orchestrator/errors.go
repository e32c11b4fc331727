package orchestrator

import "errors"

// ErrConfig is returned when a task's shape is invalid (worker count out
// of range, unknown mode or provider). Config errors are rejected before
// any dispatch and never retried.
var ErrConfig = errors.New("invalid task configuration")

// ErrNotReady is returned when results are requested from a session that
// has not completed.
var ErrNotReady = errors.New("session not completed")
