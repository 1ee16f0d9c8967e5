package reeverr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_ErrorIncludesKindTagMessageAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindContext, TagRPCUnreachable, "fetch account", cause)
	require.Equal(t, "context/rpc_unreachable: fetch account: connection refused", err.Error())
}

func TestError_ErrorOmitsCauseWhenNil(t *testing.T) {
	err := New(KindValidation, TagInvalidAmount, "amount must be positive")
	require.Equal(t, "validation/invalid_amount: amount must be positive", err.Error())
}

func TestErrorf_FormatsMessage(t *testing.T) {
	err := Errorf(KindConfiguration, TagInvalidBenchmark, "unknown step %d", 3)
	require.Equal(t, "unknown step 3", err.Message)
}

func TestIs_MatchesKindThroughWrappedErrors(t *testing.T) {
	base := New(KindStorage, TagDuplicateDetected, "already consolidated")
	wrapped := fmt.Errorf("persist: %w", base)

	require.True(t, Is(wrapped, KindStorage))
	require.False(t, Is(wrapped, KindExecution))
}

func TestHasTag_MatchesTagThroughWrappedErrors(t *testing.T) {
	base := New(KindExecution, TagConfirmationTimeout, "confirm timed out")
	wrapped := fmt.Errorf("submit: %w", base)

	require.True(t, HasTag(wrapped, TagConfirmationTimeout))
	require.False(t, HasTag(wrapped, TagOnChainError))
}

func TestIs_ReturnsFalseForNonReeverrErrors(t *testing.T) {
	require.False(t, Is(errors.New("plain"), KindStorage))
	require.False(t, HasTag(errors.New("plain"), TagTimeout))
}

func TestUnwrap_ReturnsTheWrappedCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindAgent, TagModelCallFailure, "model failed", cause)
	require.ErrorIs(t, err, cause)
}

func TestTagOf_ReturnsTheTagThroughWrappedErrors(t *testing.T) {
	base := New(KindContext, TagRPCUnreachable, "unreachable")
	wrapped := fmt.Errorf("resolve: %w", base)

	tag, ok := TagOf(wrapped)
	require.True(t, ok)
	require.Equal(t, TagRPCUnreachable, tag)
}

func TestTagOf_ReturnsFalseForNonReeverrErrors(t *testing.T) {
	_, ok := TagOf(errors.New("plain"))
	require.False(t, ok)
}
