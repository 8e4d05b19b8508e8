package chclient

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/ajitpratap0/arrowhouse/pkg/config"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

// RetryPolicy defines retry behavior for transport failures.
type RetryPolicy struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RandomizeFactor float64
}

// NewRetryPolicy creates a retry policy with exponential backoff.
func NewRetryPolicy(maxAttempts int, initialDelay time.Duration) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialDelay:    initialDelay,
		MaxDelay:        30 * time.Second,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}
}

// RetryPolicyFromConfig builds a policy from reliability settings. Zero
// attempts still runs the operation once.
func RetryPolicyFromConfig(cfg config.ReliabilityConfig) *RetryPolicy {
	rp := NewRetryPolicy(cfg.RetryAttempts+1, cfg.RetryDelay)
	if cfg.MaxRetryDelay > 0 {
		rp.MaxDelay = cfg.MaxRetryDelay
	}
	if cfg.RetryMultiplier >= 1 {
		rp.Multiplier = cfg.RetryMultiplier
	}
	return rp
}

// Execute runs fn, repeating it while it fails with a retryable error.
// Non-retryable errors are returned immediately and unchanged.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	return rp.ExecuteWithCondition(ctx, fn, errors.IsRetryable)
}

// ExecuteWithCondition runs fn with retry only while shouldRetry holds.
func (rp *RetryPolicy) ExecuteWithCondition(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	var lastErr error
	attempts := rp.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}

		timer := time.NewTimer(rp.calculateDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), errors.ErrorTypeConnection, "retry cancelled").
				WithDetail("last_error", lastErr.Error())
		case <-timer.C:
		}
	}

	return errors.Wrap(lastErr, errors.ErrorTypeConnection, "all attempts failed").
		WithDetail("attempts", attempts)
}

// calculateDelay calculates the delay for a given attempt
func (rp *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(rp.InitialDelay) * math.Pow(rp.Multiplier, float64(attempt))
	if delay > float64(rp.MaxDelay) {
		delay = float64(rp.MaxDelay)
	}

	// jitter
	if rp.RandomizeFactor > 0 {
		delta := delay * rp.RandomizeFactor
		delay = delay - delta + rand.Float64()*2*delta //nolint:gosec // jitter only
	}
	return time.Duration(delay)
}
