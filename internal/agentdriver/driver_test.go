package agentdriver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"reev-core/internal/flow"
	"reev-core/internal/keymap"
	"reev-core/internal/reeverr"
	"reev-core/internal/session"
	"reev-core/internal/tools"
	"reev-core/internal/walletctx"
)

type fakeBalances struct {
	sol uint64
}

func (f *fakeBalances) SOLBalance(context.Context, solana.PublicKey) (uint64, error) { return f.sol, nil }
func (f *fakeBalances) TokenBalance(context.Context, solana.PublicKey) (uint64, error) {
	return 0, nil
}
func (f *fakeBalances) MaxSwappableSOL(context.Context, solana.PublicKey, uint64) (uint64, error) {
	return f.sol, nil
}
func (f *fakeBalances) ValidateAmount(amount uint64) error {
	if amount == 0 {
		return assertErr
	}
	return nil
}
func (f *fakeBalances) ValidateSufficientSOL(_ context.Context, _ solana.PublicKey, requested uint64) error {
	if requested > f.sol {
		return assertErr
	}
	return nil
}
func (f *fakeBalances) ValidateSufficientToken(context.Context, solana.PublicKey, uint64) error {
	return nil
}

var assertErr = &stubErr{}

type stubErr struct{}

func (*stubErr) Error() string { return "validation failed" }

type fakeSubmitter struct{}

func (f *fakeSubmitter) Submit(context.Context, solana.PublicKey, []solana.Instruction) (string, error) {
	return "sig123", nil
}

func TestDriver_RunTerminatesOnCriticalSuccess(t *testing.T) {
	km := keymap.New()
	owner := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()
	km.Set(keymap.UserWallet, owner)
	km.SetBase58("RECIPIENT_WALLET_PUBKEY", recipient.String())

	registry := tools.DefaultRegistry(nil, nil)
	agent := NewDeterministicAgent([]ScriptedCall{
		{ToolName: "sol_transfer", Args: map[string]any{
			"recipient":       "RECIPIENT_WALLET_PUBKEY",
			"amount_lamports": float64(100_000_000),
		}},
	})
	driver := New(agent, registry)

	step := flow.Step{StepID: 1, TimeoutSeconds: 30, Critical: true}
	log := session.NewLog("sess-1", "bench-1", "deterministic", fixedNow())

	result, err := driver.Run(context.Background(), log, RunParams{
		Step:          step,
		RefinedPrompt: "Send 0.1 SOL to RECIPIENT_WALLET_PUBKEY",
		WalletCtx:     walletctx.New(owner),
		KeyMap:        km,
		Balances:      &fakeBalances{sol: 1_000_000_000},
		Submitter:     &fakeSubmitter{},
		ExpectedToolCalls: []flow.ExpectedToolCall{
			{ToolName: flow.ToolSOLTransfer, Critical: true},
		},
	})

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "sol_transfer", result.TerminatedTool)
	require.True(t, log.HasSuccessfulToolCall("sol_transfer"))
}

func TestDriver_RunFailsWithDepthExceededWhenNoToolCallsProduced(t *testing.T) {
	km := keymap.New()
	owner := solana.NewWallet().PublicKey()
	km.Set(keymap.UserWallet, owner)

	registry := tools.DefaultRegistry(nil, nil)
	agent := NewDeterministicAgent(nil)
	driver := New(agent, registry)

	step := flow.Step{StepID: 1, TimeoutSeconds: 30}
	log := session.NewLog("sess-2", "bench-1", "deterministic", fixedNow())

	_, err := driver.Run(context.Background(), log, RunParams{
		Step:          step,
		RefinedPrompt: "do nothing useful",
		WalletCtx:     walletctx.New(owner),
		KeyMap:        km,
		Balances:      &fakeBalances{sol: 1_000_000_000},
		Submitter:     &fakeSubmitter{},
	})

	require.Error(t, err)
}

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

// flakyThenSuccessClient fails its first `failures` calls, then emits
// success on every call after, modeling a transient model-call failure that
// a retry policy should recover from.
type flakyThenSuccessClient struct {
	failures int
	calls    int
	success  ToolCall
}

func (c *flakyThenSuccessClient) Complete(context.Context, Request) (Response, error) {
	c.calls++
	if c.calls <= c.failures {
		return Response{}, errors.New("transient model failure")
	}
	return Response{ToolCalls: []ToolCall{c.success}}, nil
}

func TestDriver_RunStepRetriesUpToMaxAttemptsThenSucceeds(t *testing.T) {
	km := keymap.New()
	owner := solana.NewWallet().PublicKey()
	km.Set(keymap.UserWallet, owner)
	km.SetBase58("RECIPIENT_WALLET_PUBKEY", solana.NewWallet().PublicKey().String())

	registry := tools.DefaultRegistry(nil, nil)
	client := &flakyThenSuccessClient{
		failures: 2,
		success: ToolCall{Name: "sol_transfer", Arguments: map[string]any{
			"recipient":       "RECIPIENT_WALLET_PUBKEY",
			"amount_lamports": float64(100_000_000),
		}},
	}
	driver := New(client, registry)
	driver.sleep = func(time.Duration) {}

	step := flow.Step{
		StepID: 1, TimeoutSeconds: 30, Critical: true,
		Retry: &flow.RetryPolicy{MaxAttempts: 3, RetryableErrorTags: []reeverr.Tag{reeverr.TagModelCallFailure}},
	}
	log := session.NewLog("sess-retry", "bench-1", "deterministic", fixedNow())

	result, err := driver.RunStep(context.Background(), log, RunParams{
		Step:          step,
		RefinedPrompt: "send 0.1 SOL",
		WalletCtx:     walletctx.New(owner),
		KeyMap:        km,
		Balances:      &fakeBalances{sol: 1_000_000_000},
		Submitter:     &fakeSubmitter{},
		ExpectedToolCalls: []flow.ExpectedToolCall{
			{ToolName: flow.ToolSOLTransfer, Critical: true},
		},
	}, nil)

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, log.LlmRequestCount())
}

func TestDriver_RunStepDoesNotRetryWhenTheFailureTagIsNotRetryable(t *testing.T) {
	km := keymap.New()
	owner := solana.NewWallet().PublicKey()
	km.Set(keymap.UserWallet, owner)

	registry := tools.DefaultRegistry(nil, nil)
	client := &flakyThenSuccessClient{failures: 3}
	driver := New(client, registry)
	driver.sleep = func(time.Duration) {}

	step := flow.Step{
		StepID: 1, TimeoutSeconds: 30, Critical: true,
		Retry: &flow.RetryPolicy{MaxAttempts: 3, RetryableErrorTags: []reeverr.Tag{reeverr.TagTimeout}},
	}
	log := session.NewLog("sess-no-retry", "bench-1", "deterministic", fixedNow())

	_, err := driver.RunStep(context.Background(), log, RunParams{
		Step:          step,
		RefinedPrompt: "send 0.1 SOL",
		WalletCtx:     walletctx.New(owner),
		KeyMap:        km,
		Balances:      &fakeBalances{sol: 1_000_000_000},
		Submitter:     &fakeSubmitter{},
	}, nil)

	require.Error(t, err)
	require.Equal(t, 1, log.LlmRequestCount())
}

// sequencedClient produces no tool calls for its first failUntil calls (so
// Run exhausts its depth budget with DepthExceeded), then emits success.
type sequencedClient struct {
	calls     int
	failUntil int
	success   ToolCall
}

func (c *sequencedClient) Complete(context.Context, Request) (Response, error) {
	c.calls++
	if c.calls <= c.failUntil {
		return Response{Text: "still thinking"}, nil
	}
	return Response{ToolCalls: []ToolCall{c.success}}, nil
}

func TestDriver_RunStepAppliesAlternativeFlowRecoveryForANonCriticalStep(t *testing.T) {
	km := keymap.New()
	owner := solana.NewWallet().PublicKey()
	km.Set(keymap.UserWallet, owner)
	km.SetBase58("RECIPIENT_WALLET_PUBKEY", solana.NewWallet().PublicKey().String())

	registry := tools.DefaultRegistry(nil, nil)
	client := &sequencedClient{
		failUntil: DefaultDepthFull,
		success: ToolCall{Name: "sol_transfer", Arguments: map[string]any{
			"recipient":       "RECIPIENT_WALLET_PUBKEY",
			"amount_lamports": float64(50_000_000),
		}},
	}
	driver := New(client, registry)

	step := flow.Step{
		StepID: 1, TimeoutSeconds: 30, Critical: false,
		Recovery: &flow.RecoveryStrategy{Kind: flow.RecoveryAlternativeFlow, AlternativeFlowID: "step_2"},
	}
	altStep := flow.Step{StepID: 2, TimeoutSeconds: 30, Critical: true}
	log := session.NewLog("sess-recovery", "bench-1", "deterministic", fixedNow())

	baseParams := RunParams{
		Step:          step,
		RefinedPrompt: "optional cleanup",
		WalletCtx:     walletctx.New(owner),
		KeyMap:        km,
		Balances:      &fakeBalances{sol: 1_000_000_000},
		Submitter:     &fakeSubmitter{},
		ExpectedToolCalls: []flow.ExpectedToolCall{
			{ToolName: flow.ToolSOLTransfer, Critical: true},
		},
	}
	altParams := baseParams
	altParams.Step = altStep

	result, err := driver.RunStep(context.Background(), log, baseParams, &altParams)

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "sol_transfer", result.TerminatedTool)
}

func TestDriver_RunStepRecordsAUserFulfillmentPauseForANonCriticalStep(t *testing.T) {
	km := keymap.New()
	owner := solana.NewWallet().PublicKey()
	km.Set(keymap.UserWallet, owner)

	registry := tools.DefaultRegistry(nil, nil)
	driver := New(NewDeterministicAgent(nil), registry)

	step := flow.Step{
		StepID: 1, TimeoutSeconds: 30, Critical: false,
		Recovery: &flow.RecoveryStrategy{Kind: flow.RecoveryUserFulfillment, Questions: []string{"which mint did you mean?"}},
	}
	log := session.NewLog("sess-fulfillment", "bench-1", "deterministic", fixedNow())

	_, err := driver.RunStep(context.Background(), log, RunParams{
		Step:          step,
		RefinedPrompt: "do something ambiguous",
		WalletCtx:     walletctx.New(owner),
		KeyMap:        km,
		Balances:      &fakeBalances{sol: 1_000_000_000},
		Submitter:     &fakeSubmitter{},
	}, nil)

	require.Error(t, err)
	found := false
	for _, ev := range log.Events {
		if ev.Kind == session.EventError && ev.Error != nil &&
			ev.Error.Message == "step paused for user fulfillment: which mint did you mean?" {
			found = true
		}
	}
	require.True(t, found, "expected a user-fulfillment pause event")
}
