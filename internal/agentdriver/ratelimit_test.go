package agentdriver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	calls int
	err   error
}

func (c *recordingClient) Complete(context.Context, Request) (Response, error) {
	c.calls++
	return Response{}, c.err
}

func TestAdaptiveRateLimiter_WrapDelegatesToUnderlyingClient(t *testing.T) {
	inner := &recordingClient{}
	limiter := NewAdaptiveRateLimiter(600000, 600000)
	wrapped := limiter.Wrap(inner)

	_, err := wrapped.Complete(context.Background(), Request{SystemPrompt: "sys", Prompt: "hi"})
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
}

func TestAdaptiveRateLimiter_BackoffShrinksBudgetOnRateLimitError(t *testing.T) {
	inner := &recordingClient{err: ErrRateLimited}
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	wrapped := limiter.Wrap(inner)

	before := limiter.currentTPM
	_, err := wrapped.Complete(context.Background(), Request{Prompt: "hi"})
	require.ErrorIs(t, err, ErrRateLimited)
	require.Less(t, limiter.currentTPM, before)
}

func TestAdaptiveRateLimiter_ProbeGrowsBudgetBackTowardCeilingOnSuccess(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	limiter.backoff() // shrink once so probe has room to grow

	shrunk := limiter.currentTPM
	inner := &recordingClient{}
	wrapped := limiter.Wrap(inner)

	_, err := wrapped.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	require.Greater(t, limiter.currentTPM, shrunk)
}

func TestAdaptiveRateLimiter_WrapNilClientReturnsNil(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	require.Nil(t, limiter.Wrap(nil))
}

func TestAdaptiveRateLimiter_ObserveIgnoresUnrelatedErrors(t *testing.T) {
	inner := &recordingClient{err: errors.New("boom")}
	limiter := NewAdaptiveRateLimiter(1000, 1000)
	wrapped := limiter.Wrap(inner)

	before := limiter.currentTPM
	_, err := wrapped.Complete(context.Background(), Request{Prompt: "hi"})
	require.EqualError(t, err, "boom")
	require.Equal(t, before, limiter.currentTPM)
}
