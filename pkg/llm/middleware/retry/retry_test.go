package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scriptsmith/pkg/llm"
	"scriptsmith/pkg/llm/llmerrors"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestCalculateDelay(t *testing.T) {
	cfg := Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      300 * time.Millisecond,
		BackoffFactor: 2.0,
	}

	assert.Equal(t, time.Duration(0), cfg.CalculateDelay(1), "first attempt has no delay")
	assert.Equal(t, 100*time.Millisecond, cfg.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, cfg.CalculateDelay(3))
	assert.Equal(t, 300*time.Millisecond, cfg.CalculateDelay(4), "delay caps at MaxDelay")
}

func TestCalculateDelayJitterStaysBounded(t *testing.T) {
	cfg := DefaultConfig()
	for attempt := 2; attempt <= cfg.MaxAttempts; attempt++ {
		d := cfg.CalculateDelay(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, cfg.MaxDelay)
	}
}

func TestRetriesTransientErrors(t *testing.T) {
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{Content: "finally"}},
		[]error{
			llmerrors.NewError(llmerrors.ErrorTypeTransient, "blip"),
			llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "slow down"),
		},
	)
	client := llm.Chain(mock, Middleware(fastConfig()))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Content)
	assert.Equal(t, 3, mock.CallCount())
}

func TestDoesNotRetryAuthErrors(t *testing.T) {
	mock := llm.NewMockClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"),
	})
	client := llm.Chain(mock, Middleware(fastConfig()))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Equal(t, 1, mock.CallCount(), "terminal errors fail fast")
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	mock := llm.NewMockClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "blip"),
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "blip"),
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "blip"),
	})
	client := llm.Chain(mock, Middleware(fastConfig()))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Equal(t, 3, mock.CallCount())
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := llm.NewMockClient(nil, []error{
		llmerrors.NewError(llmerrors.ErrorTypeTransient, "blip"),
	})
	cfg := fastConfig()
	cfg.InitialDelay = time.Minute
	cfg.MaxDelay = time.Minute
	client := llm.Chain(mock, Middleware(cfg))

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	_, err := client.Complete(ctx, llm.NewCompletionRequest(
		[]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.CallCount(), "cancellation interrupts the backoff sleep")
}
