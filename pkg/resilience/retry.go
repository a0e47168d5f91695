// Package resilience provides fault-tolerance primitives: bounded
// exponential-backoff retry, a circuit breaker, and a context-based timeout
// wrapper. The store adapters use Retry on their connect path and the
// deduplicator wraps per-URL store lookups in a CircuitBreaker.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy bounds an exponential backoff loop.
type RetryPolicy struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
}

// DefaultRetryPolicy is tuned for reconnecting to a store that is starting up
// alongside this process.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       15 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	if p.JitterFraction <= 0 {
		p.JitterFraction = d.JitterFraction
	}
	return p
}

// Retry runs fn until it succeeds, the policy is exhausted, or ctx is
// cancelled. Delays grow geometrically with jitter and are capped at
// MaxDelay.
func Retry(ctx context.Context, name string, policy RetryPolicy, fn func() error) error {
	policy = policy.withDefaults()
	logger := slog.Default().With("component", "retry", "operation", name)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info("succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
		delay := policy.delay(attempt)
		logger.Warn("operation failed, retrying",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"error", lastErr,
			"next_delay", delay,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted during backoff: %w", ctx.Err())
		}
	}
	return fmt.Errorf("all %d attempts failed for %s: %w", policy.MaxAttempts, name, lastErr)
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	backoff += backoff * p.JitterFraction * (2*rand.Float64() - 1)
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	if backoff < 0 {
		backoff = float64(p.InitialDelay)
	}
	return time.Duration(backoff)
}
