package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"cascade/internal/provider"
	"cascade/pkg/models"
)

// runParallel starts every assignment concurrently. The tier is complete
// when all assignments reach a terminal status or the tier timeout
// elapses; timed-out assignments are marked failed without blocking tier
// completion.
func (d *Dispatcher) runParallel(ctx context.Context, adapter provider.Adapter, assignments []models.WorkerAssignment, carry string) {
	tierCtx, cancel := context.WithTimeout(ctx, d.tierTimeout)
	defer cancel()

	g := new(errgroup.Group)
	for i := range assignments {
		a := &assignments[i]
		g.Go(func() error {
			d.execute(tierCtx, adapter, a, carry)
			return nil
		})
	}
	_ = g.Wait()
}

// runSequential executes assignments one at a time in fixed order. Each
// assignment's context is extended with the prior assignment's result. If
// an assignment exhausts its retry budget the tier stops early and only
// the completed prefix is returned: continuing without input continuity
// would break the refinement chain.
func (d *Dispatcher) runSequential(ctx context.Context, adapter provider.Adapter, assignments []models.WorkerAssignment, carry string) []models.WorkerAssignment {
	for i := range assignments {
		a := &assignments[i]
		if err := ctx.Err(); err != nil {
			resolve(a, ctx, err)
			return assignments[:i+1]
		}

		d.execute(ctx, adapter, a, carry)
		if a.Status != models.AssignmentSucceeded {
			log.Printf("[dispatch] sequential tier stopped early at assignment %d/%d (%s)",
				i+1, len(assignments), a.Status)
			return assignments[:i+1]
		}
		carry = d.extendCarry(carry, i, a.Result)
	}
	return assignments
}

// runHybrid partitions assignments into fixed-size batches; batches run
// sequentially with carry-forward between them, assignments within a
// batch run in parallel.
func (d *Dispatcher) runHybrid(ctx context.Context, adapter provider.Adapter, assignments []models.WorkerAssignment, carry string, batchSize int) {
	// One deadline bounds the whole tier, not each batch.
	tierCtx, cancel := context.WithTimeout(ctx, d.tierTimeout)
	defer cancel()

	batches := partition(len(assignments), batchSize)
	for bi, idx := range batches {
		if err := tierCtx.Err(); err != nil {
			// Stop issuing new batches; unstarted assignments resolve
			// against the expired or cancelled tier context.
			for _, j := range idx {
				resolve(&assignments[j], tierCtx, err)
			}
			continue
		}

		g := new(errgroup.Group)
		for _, j := range idx {
			a := &assignments[j]
			a.Batch = bi
			g.Go(func() error {
				d.execute(tierCtx, adapter, a, carry)
				return nil
			})
		}
		_ = g.Wait()

		for _, j := range idx {
			if a := &assignments[j]; a.Status == models.AssignmentSucceeded {
				carry = d.extendCarry(carry, j, a.Result)
			}
		}
	}
}

// partition splits n items into consecutive index batches of at most
// size elements.
func partition(n, size int) [][]int {
	if size < 1 {
		size = 1
	}
	var out [][]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		idx := make([]int, 0, end-start)
		for j := start; j < end; j++ {
			idx = append(idx, j)
		}
		out = append(out, idx)
	}
	return out
}

// extendCarry appends one worker result to the carry-forward context and
// re-applies the byte budget. Unbounded accumulation is the failure mode
// here: every prior result would otherwise be re-injected into every
// later call.
func (d *Dispatcher) extendCarry(carry string, idx int, result string) string {
	entry := fmt.Sprintf("[worker %d result]\n%s", idx+1, result)
	if carry == "" {
		carry = entry
	} else {
		carry = carry + "\n\n" + entry
	}
	return capContext(carry, d.carryBudget)
}

// capContext truncates carry-forward context to budget bytes, keeping the
// most recent tail.
func capContext(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	const marker = "[...earlier context truncated...]\n"
	keep := budget - len(marker)
	if keep < 0 {
		keep = 0
	}
	return marker + s[len(s)-keep:]
}

// TierDeadline reports the wall-clock bound applied to parallel and
// hybrid tiers.
func (d *Dispatcher) TierDeadline() time.Duration {
	return d.tierTimeout
}
