// Package retry provides retry middleware for completion clients.
// Failed requests are retried with exponential backoff when their classified
// error type is retryable.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"scriptsmith/pkg/llm"
	"scriptsmith/pkg/llm/llmerrors"
)

// Config defines the retry policy.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   4,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// CalculateDelay returns the backoff delay before the given attempt (1-based).
func (c Config) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := float64(c.InitialDelay)
	for i := 2; i < attempt; i++ {
		delay *= c.BackoffFactor
	}
	if max := float64(c.MaxDelay); delay > max {
		delay = max
	}
	if c.Jitter {
		delay *= 0.5 + rand.Float64()/2 //nolint:gosec // Jitter does not need crypto randomness
	}
	return time.Duration(delay)
}

// Middleware returns a middleware that wraps a completion client with retry
// logic according to the given config.
func Middleware(cfg Config) llm.Middleware {
	return func(next llm.CompletionClient) llm.CompletionClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
					if attempt > 1 {
						delay := cfg.CalculateDelay(attempt)
						if delay > 0 {
							select {
							case <-ctx.Done():
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-time.After(delay):
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !llmerrors.IsRetryable(err) {
						break
					}
				}

				return llm.CompletionResponse{}, lastErr
			},
			next.ModelName,
		)
	}
}
