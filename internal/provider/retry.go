package provider

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures exponential backoff between provider attempts.
type RetryPolicy struct {
	// MaxAttempts is the total attempt ceiling, first call included.
	MaxAttempts int
	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
	// Jitter randomizes each delay by up to 25% to avoid thundering herds.
	Jitter bool
	// CallTimeout bounds a single provider call. Zero means unbounded.
	// Expiry counts as a timeout failure and is retried like a transient
	// one.
	CallTimeout time.Duration
}

// DefaultRetryPolicy returns the policy used for worker and synthesis
// calls unless configuration overrides it.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		CallTimeout:  2 * time.Minute,
	}
}

// normalized returns a copy with invalid fields replaced by defaults.
func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = d.Multiplier
	}
	return p
}

// Delay returns the backoff before the given attempt (2-indexed; the
// first attempt never waits).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	exp := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-2))
	delay := time.Duration(exp)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.Jitter {
		// up to +/-25%
		frac := (rand.Float64()*0.5 - 0.25)
		delay += time.Duration(float64(delay) * frac)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Invoke runs one request against the adapter under the policy. Transient
// and timeout failures are retried with backoff up to MaxAttempts;
// permanent failures and context cancellation stop immediately. It
// returns the text, the number of attempts made, and the final error.
func (p RetryPolicy) Invoke(ctx context.Context, a Adapter, req Request) (string, int, error) {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.Delay(attempt)
			log.Printf("[provider] %s: attempt %d/%d in %s after: %v",
				a.Name(), attempt, p.MaxAttempts, delay.Round(time.Millisecond), lastErr)
			select {
			case <-ctx.Done():
				return "", attempt - 1, fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if p.CallTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		}
		text, err := a.Invoke(attemptCtx, req)
		cancel()
		if err == nil {
			return text, attempt, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", attempt, fmt.Errorf("invoke aborted: %w", ctx.Err())
		}
		if !Retryable(err) {
			return "", attempt, err
		}
	}

	return "", p.MaxAttempts, fmt.Errorf("exhausted %d attempts: %w", p.MaxAttempts, lastErr)
}
