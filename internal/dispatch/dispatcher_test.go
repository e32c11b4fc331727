package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cascade/internal/provider"
	"cascade/pkg/models"
)

// recordingAdapter captures the requests it receives and answers from a
// per-call script.
type recordingAdapter struct {
	mu       sync.Mutex
	requests []provider.Request
	respond  func(call int, req provider.Request) (string, error)
}

func (r *recordingAdapter) Name() string { return "fake" }

func (r *recordingAdapter) Invoke(ctx context.Context, req provider.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.requests = append(r.requests, req)
	call := len(r.requests)
	r.mu.Unlock()
	return r.respond(call, req)
}

func (r *recordingAdapter) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func newTestDispatcher(adapter provider.Adapter) *Dispatcher {
	registry := provider.NewRegistry()
	registry.Register(adapter)
	return New(Config{
		Registry: registry,
		Retry: provider.RetryPolicy{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1.0,
		},
		PoolSize:    16,
		TierTimeout: 5 * time.Second,
	})
}

func testTask(mode models.ExecutionMode, agents int) *models.Task {
	return &models.Task{
		ID:          "t1",
		Description: "investigate the thing",
		Mode:        mode,
		Agents:      agents,
		Provider:    "fake",
	}
}

func TestRunTierParallelAllSucceed(t *testing.T) {
	adapter := &recordingAdapter{
		respond: func(call int, req provider.Request) (string, error) {
			return fmt.Sprintf("finding %d", call), nil
		},
	}
	d := newTestDispatcher(adapter)

	result, err := d.RunTier(context.Background(), testTask(models.ModeParallel, 4), "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}
	if result.Completeness != models.CompletenessFull {
		t.Errorf("completeness = %s, want %s", result.Completeness, models.CompletenessFull)
	}
	if len(result.Assignments) != 4 {
		t.Fatalf("got %d assignments, want 4", len(result.Assignments))
	}
	for i, a := range result.Assignments {
		if !a.Status.Terminal() {
			t.Errorf("assignment %d status = %s, want terminal", i, a.Status)
		}
		if a.Status != models.AssignmentSucceeded {
			t.Errorf("assignment %d status = %s, want succeeded", i, a.Status)
		}
		if a.Result == "" {
			t.Errorf("assignment %d has empty result", i)
		}
	}
}

func TestRunTierParallelPartialFailure(t *testing.T) {
	var n int
	var mu sync.Mutex
	adapter := &recordingAdapter{
		respond: func(call int, req provider.Request) (string, error) {
			mu.Lock()
			n++
			mine := n
			mu.Unlock()
			// One worker fails permanently, its retry is not consumed.
			if mine == 1 {
				return "", provider.Permanent("fake", errors.New("bad input"))
			}
			return "ok", nil
		},
	}
	d := newTestDispatcher(adapter)

	result, err := d.RunTier(context.Background(), testTask(models.ModeParallel, 3), "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}
	if result.Completeness != models.CompletenessDegraded {
		t.Errorf("completeness = %s, want degraded", result.Completeness)
	}
	if got := len(result.Successes()); got != 2 {
		t.Errorf("successes = %d, want 2", got)
	}
}

func TestRunTierSequentialCarriesContext(t *testing.T) {
	adapter := &recordingAdapter{
		respond: func(call int, req provider.Request) (string, error) {
			return fmt.Sprintf("result-%d", call), nil
		},
	}
	d := newTestDispatcher(adapter)

	result, err := d.RunTier(context.Background(), testTask(models.ModeSequential, 3), "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}
	if result.Completeness != models.CompletenessFull {
		t.Fatalf("completeness = %s, want full", result.Completeness)
	}

	// Worker 2 must see worker 1's result verbatim, worker 3 both.
	second := adapter.requests[1]
	if !strings.Contains(second.Context, "[worker 1 result]\nresult-1") {
		t.Errorf("second request context = %q, want worker 1 result carried verbatim", second.Context)
	}
	third := adapter.requests[2]
	if !strings.Contains(third.Context, "result-1") || !strings.Contains(third.Context, "result-2") {
		t.Errorf("third request context = %q, want both prior results", third.Context)
	}
	if adapter.requests[0].Context != "" {
		t.Errorf("first request context = %q, want empty", adapter.requests[0].Context)
	}
}

func TestRunTierCarryEntersProviderCallOnce(t *testing.T) {
	adapter := &recordingAdapter{
		respond: func(call int, req provider.Request) (string, error) {
			return fmt.Sprintf("result-%d", call), nil
		},
	}
	d := newTestDispatcher(adapter)

	result, err := d.RunTier(context.Background(), testTask(models.ModeSequential, 2), "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}

	// Adapters join context and prompt into one user message; the carried
	// result must appear exactly once in that joined content.
	second := adapter.requests[1]
	content := second.Context + "\n\n" + second.Prompt
	if got := strings.Count(content, "result-1"); got != 1 {
		t.Errorf("worker 2's provider call contains the carried result %d times, want 1", got)
	}
	if strings.Contains(second.Prompt, "result-1") {
		t.Error("carried result leaked into the worker prompt, want it in the request context only")
	}
	if strings.Contains(result.Assignments[1].Input, "result-1") {
		t.Error("persisted assignment input contains carried context, want the bare worker prompt")
	}
}

func TestRunTierSequentialStopsEarly(t *testing.T) {
	adapter := &recordingAdapter{
		respond: func(call int, req provider.Request) (string, error) {
			// Second worker fails permanently.
			if strings.Contains(req.Prompt, "worker 2 of") {
				return "", provider.Permanent("fake", errors.New("refused"))
			}
			return "ok", nil
		},
	}
	d := newTestDispatcher(adapter)

	result, err := d.RunTier(context.Background(), testTask(models.ModeSequential, 4), "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}
	// Only the completed prefix is reported: workers 3 and 4 never ran.
	if len(result.Assignments) != 2 {
		t.Fatalf("got %d assignments, want 2 (completed prefix)", len(result.Assignments))
	}
	if result.Assignments[0].Status != models.AssignmentSucceeded {
		t.Errorf("assignment 0 = %s, want succeeded", result.Assignments[0].Status)
	}
	if result.Assignments[1].Status != models.AssignmentFailed {
		t.Errorf("assignment 1 = %s, want failed", result.Assignments[1].Status)
	}
	if result.Completeness != models.CompletenessDegraded {
		t.Errorf("completeness = %s, want degraded", result.Completeness)
	}
}

func TestRunTierHybridBatches(t *testing.T) {
	adapter := &recordingAdapter{
		respond: func(call int, req provider.Request) (string, error) {
			return fmt.Sprintf("r%d", call), nil
		},
	}
	d := newTestDispatcher(adapter)

	task := testTask(models.ModeHybrid, 5)
	task.BatchSize = 2

	result, err := d.RunTier(context.Background(), task, "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}
	if result.Completeness != models.CompletenessFull {
		t.Fatalf("completeness = %s, want full", result.Completeness)
	}

	// Batches of 2, 2, 1 in assignment order.
	wantBatches := []int{0, 0, 1, 1, 2}
	for i, a := range result.Assignments {
		if a.Batch != wantBatches[i] {
			t.Errorf("assignment %d batch = %d, want %d", i, a.Batch, wantBatches[i])
		}
	}

	// Later batches see earlier batches' results in their context; the
	// first batch sees none.
	for _, req := range adapter.requests {
		if strings.Contains(req.Prompt, "worker 5 of") && !strings.Contains(req.Context, "result]") {
			t.Errorf("last batch context = %q, want carried results", req.Context)
		}
		if strings.Contains(req.Prompt, "worker 1 of") && req.Context != "" {
			t.Errorf("first batch context = %q, want empty", req.Context)
		}
	}
}

func TestRunTierHybridDefaultBatchSize(t *testing.T) {
	adapter := &recordingAdapter{
		respond: func(call int, req provider.Request) (string, error) { return "ok", nil },
	}
	d := newTestDispatcher(adapter)

	// 6 agents, default batch size ceil(6/2) = 3: two batches.
	result, err := d.RunTier(context.Background(), testTask(models.ModeHybrid, 6), "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}
	maxBatch := 0
	for _, a := range result.Assignments {
		if a.Batch > maxBatch {
			maxBatch = a.Batch
		}
	}
	if maxBatch != 1 {
		t.Errorf("max batch index = %d, want 1 (two batches)", maxBatch)
	}
}

// stallAdapter answers the first fastCalls calls immediately and parks
// every later call until its context ends.
type stallAdapter struct {
	mu        sync.Mutex
	calls     int
	fastCalls int
}

func (s *stallAdapter) Name() string { return "fake" }

func (s *stallAdapter) Invoke(ctx context.Context, req provider.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	fast := s.calls <= s.fastCalls
	s.mu.Unlock()
	if fast {
		return "quick finding", nil
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func newTimeoutDispatcher(adapter provider.Adapter, tierTimeout time.Duration) *Dispatcher {
	registry := provider.NewRegistry()
	registry.Register(adapter)
	return New(Config{
		Registry: registry,
		Retry: provider.RetryPolicy{
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1.0,
		},
		PoolSize:    16,
		TierTimeout: tierTimeout,
	})
}

func TestRunTierParallelTimeoutMarksStragglersFailed(t *testing.T) {
	adapter := &stallAdapter{fastCalls: 1}
	d := newTimeoutDispatcher(adapter, 50*time.Millisecond)

	result, err := d.RunTier(context.Background(), testTask(models.ModeParallel, 3), "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}

	var succeeded, failed int
	for i, a := range result.Assignments {
		switch a.Status {
		case models.AssignmentSucceeded:
			succeeded++
		case models.AssignmentFailed:
			failed++
		default:
			t.Errorf("assignment %d status = %s, want succeeded or failed", i, a.Status)
		}
	}
	if succeeded != 1 || failed != 2 {
		t.Errorf("got %d succeeded / %d failed, want 1 / 2", succeeded, failed)
	}
	if result.Completeness != models.CompletenessDegraded {
		t.Errorf("completeness = %s, want degraded", result.Completeness)
	}
}

func TestRunTierHybridTimeoutBoundsWholeTier(t *testing.T) {
	adapter := &stallAdapter{}
	d := newTimeoutDispatcher(adapter, 100*time.Millisecond)

	task := testTask(models.ModeHybrid, 3)
	task.BatchSize = 1

	start := time.Now()
	result, err := d.RunTier(context.Background(), task, "")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}

	// One deadline covers all three batches; a per-batch deadline would
	// hold the tier for at least three times the timeout.
	if elapsed >= 250*time.Millisecond {
		t.Errorf("tier took %v, want under 250ms with a single tier deadline", elapsed)
	}
	for i, a := range result.Assignments {
		if a.Status != models.AssignmentFailed {
			t.Errorf("assignment %d status = %s, want failed after tier timeout", i, a.Status)
		}
	}
	if result.Completeness != models.CompletenessFailed {
		t.Errorf("completeness = %s, want all failed", result.Completeness)
	}
}

func TestRunTierCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := &recordingAdapter{
		respond: func(call int, req provider.Request) (string, error) {
			cancel() // cancel as soon as the first call lands
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	d := newTestDispatcher(adapter)

	result, err := d.RunTier(ctx, testTask(models.ModeParallel, 3), "")
	if err != nil {
		t.Fatalf("RunTier() error = %v", err)
	}
	for i, a := range result.Assignments {
		if !a.Status.Terminal() {
			t.Errorf("assignment %d status = %s, want terminal after cancellation", i, a.Status)
		}
	}
	if result.Completeness != models.CompletenessFailed {
		t.Errorf("completeness = %s, want all failed", result.Completeness)
	}
}

func TestRunTierUnknownProvider(t *testing.T) {
	d := newTestDispatcher(&recordingAdapter{
		respond: func(int, provider.Request) (string, error) { return "", nil },
	})
	task := testTask(models.ModeParallel, 2)
	task.Provider = "nope"

	if _, err := d.RunTier(context.Background(), task, ""); err == nil {
		t.Fatal("RunTier() = nil error, want unknown provider failure")
	}
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, size int
		want    [][]int
	}{
		{5, 2, [][]int{{0, 1}, {2, 3}, {4}}},
		{4, 2, [][]int{{0, 1}, {2, 3}}},
		{3, 5, [][]int{{0, 1, 2}}},
		{1, 1, [][]int{{0}}},
		{0, 2, nil},
	}
	for _, tt := range tests {
		got := partition(tt.n, tt.size)
		if len(got) != len(tt.want) {
			t.Errorf("partition(%d, %d) = %v, want %v", tt.n, tt.size, got, tt.want)
			continue
		}
		for i := range got {
			if len(got[i]) != len(tt.want[i]) {
				t.Errorf("partition(%d, %d) batch %d = %v, want %v", tt.n, tt.size, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCapContext(t *testing.T) {
	long := strings.Repeat("x", 100)
	capped := capContext(long, 50)
	if len(capped) > 50 {
		t.Errorf("capContext kept %d bytes, budget 50", len(capped))
	}
	if !strings.HasPrefix(capped, "[...earlier context truncated...]") {
		t.Errorf("capped context missing truncation marker: %q", capped)
	}
	if got := capContext("short", 50); got != "short" {
		t.Errorf("capContext mutated text under budget: %q", got)
	}
}
