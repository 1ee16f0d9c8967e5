package agentdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reev-core/internal/flow"
	"reev-core/internal/keymap"
	"reev-core/internal/reeverr"
	"reev-core/internal/session"
	"reev-core/internal/tools"
	"reev-core/internal/walletctx"
)

// Default conversation depth budgets (§4.4): 3 when the wallet context is
// complete, 5-7 when C1 reported incomplete context and the driver falls
// back to discovery mode.
const (
	DefaultDepthFull      = 3
	DefaultDepthDiscovery = 6
)

// RunParams bundles everything the driver needs to execute one step.
type RunParams struct {
	Step              flow.Step
	RefinedPrompt     string
	WalletCtx         *walletctx.WalletContext
	KeyMap            *keymap.KeyMap
	Balances          tools.BalanceValidator
	Submitter         tools.Submitter
	ExpectedToolCalls []flow.ExpectedToolCall
	DiscoveryMode     bool
}

// Result is the outcome of running one step.
type Result struct {
	Success        bool
	TerminatedTool string
	Turns          int
}

// Driver implements C4: the bounded single-step agent/tool conversation
// loop, grounded on the teacher's runtime/agent driver (request -> tool
// dispatch -> termination check), generalized from goa-ai's generic tool
// metadata to the fixed eight-tool registry in package tools.
type Driver struct {
	client   Client
	registry *tools.Registry
	now      func() time.Time
	sleep    func(time.Duration)
}

// New returns a Driver issuing requests through client and dispatching tool
// calls through registry.
func New(client Client, registry *tools.Registry) *Driver {
	return &Driver{client: client, registry: registry, now: time.Now, sleep: time.Sleep}
}

// Run executes one step's conversation against log, honoring the step's
// timeout and depth budget (§4.4).
func (d *Driver) Run(ctx context.Context, log *session.Log, params RunParams) (Result, error) {
	timeout := params.Step.StepTimeout()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	depth := DefaultDepthFull
	if params.DiscoveryMode {
		depth = DefaultDepthDiscovery
	}

	systemPrompt := buildSystemPrompt(params)
	toolDefs := d.toolDefs()

	var transcript strings.Builder
	transcript.WriteString(params.RefinedPrompt)

	for turn := 1; turn <= depth; turn++ {
		select {
		case <-ctx.Done():
			return d.recordTimeout(log, params)
		default:
		}

		req := Request{
			SystemPrompt: systemPrompt,
			Prompt:       transcript.String(),
			Tools:        toolDefs,
			MaxTokens:    2048,
		}

		requestID := fmt.Sprintf("%s-turn-%d", log.SessionID, turn)
		d.appendEvent(log, session.Event{
			Kind: session.EventLlmRequest,
			LlmRequest: &session.LlmRequestPayload{
				Prompt:    req.Prompt,
				RequestID: requestID,
			},
		})

		resp, err := d.client.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return d.recordTimeout(log, params)
			}
			d.appendEvent(log, session.Event{
				Kind:  session.EventError,
				Error: &session.ErrorPayload{Kind: string(reeverr.KindAgent), Message: err.Error()},
			})
			return Result{Turns: turn}, reeverr.Wrap(reeverr.KindAgent, reeverr.TagModelCallFailure, "model completion failed", err)
		}

		if len(resp.ToolCalls) == 0 {
			transcript.WriteString("\n")
			transcript.WriteString(resp.Text)
			continue
		}

		for _, call := range resp.ToolCalls {
			terminated, err := d.dispatch(ctx, log, params, call)
			if err != nil {
				return Result{Turns: turn}, err
			}
			if terminated {
				return Result{Success: true, TerminatedTool: call.Name, Turns: turn}, nil
			}
		}
	}

	d.appendEvent(log, session.Event{
		Kind:  session.EventError,
		Error: &session.ErrorPayload{Kind: string(reeverr.KindAgent), Message: "conversation depth exceeded without a terminal tool call"},
	})
	return Result{Turns: depth}, reeverr.New(reeverr.KindAgent, reeverr.TagDepthExceeded,
		"conversation depth exceeded without a successful terminal tool call")
}

// RunStep runs params.Step to completion, applying its retry policy (§4.4:
// "Retries follow the step's retry policy: exponential or fixed delay
// between attempts, only for error tags listed as retryable") and, once
// every retry attempt is exhausted on a non-critical step, its recovery
// strategy (SPEC_FULL.md C2 expansion). altParams, if non-nil, supplies the
// fallback step's run parameters for a RecoveryAlternativeFlow strategy;
// callers resolve the named alternative step themselves since the driver
// has no view of the owning Flow.
func (d *Driver) RunStep(ctx context.Context, log *session.Log, params RunParams, altParams *RunParams) (Result, error) {
	result, err := d.runWithRetry(ctx, log, params)
	if err == nil || params.Step.Critical || params.Step.Recovery == nil {
		return result, err
	}

	switch params.Step.Recovery.Kind {
	case flow.RecoveryRetry:
		for attempt := 0; attempt < params.Step.Recovery.Attempts && err != nil; attempt++ {
			result, err = d.Run(ctx, log, params)
		}
	case flow.RecoveryAlternativeFlow:
		if altParams != nil {
			result, err = d.Run(ctx, log, *altParams)
		}
	case flow.RecoveryUserFulfillment:
		d.appendEvent(log, session.Event{
			Kind: session.EventError,
			Error: &session.ErrorPayload{
				Kind:    string(reeverr.KindAgent),
				Message: "step paused for user fulfillment: " + strings.Join(params.Step.Recovery.Questions, "; "),
			},
		})
	}
	return result, err
}

// runWithRetry re-invokes Run up to params.Step.Retry.MaxAttempts times,
// stopping as soon as an attempt succeeds or the failure's tag is not in the
// policy's retryable set. Attempts share the same session.Log, so a
// three-attempt retry leaves three separate LlmRequest events on one
// session_id (§8).
func (d *Driver) runWithRetry(ctx context.Context, log *session.Log, params RunParams) (Result, error) {
	retry := params.Step.Retry
	maxAttempts := 1
	if retry != nil && retry.MaxAttempts > maxAttempts {
		maxAttempts = retry.MaxAttempts
	}

	var (
		result Result
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = d.Run(ctx, log, params)
		if err == nil || retry == nil || attempt == maxAttempts {
			return result, err
		}
		tag, ok := reeverr.TagOf(err)
		if !ok || !retry.AllowsRetry(tag) {
			return result, err
		}
		if delay := backoffDelay(retry.DelaySeconds, attempt); delay > 0 {
			d.sleep(delay)
		}
	}
	return result, err
}

// backoffDelay doubles retry.DelaySeconds for each prior attempt
// (exponential backoff), matching the AdaptiveRateLimiter's AIMD shape.
func backoffDelay(delaySeconds float64, attempt int) time.Duration {
	if delaySeconds <= 0 {
		return 0
	}
	return time.Duration(delaySeconds*float64(time.Second)) * time.Duration(uint(1)<<uint(attempt-1))
}

// dispatch validates and runs one tool call, recording ToolCall/ToolResult
// events, and reports whether this call satisfies a critical expected tool
// call (§4.4 termination condition).
func (d *Driver) dispatch(ctx context.Context, log *session.Log, params RunParams, call ToolCall) (bool, error) {
	started := d.now()
	argsJSON, _ := json.Marshal(call.Arguments)
	d.appendEvent(log, session.Event{
		Kind: session.EventToolCall,
		ToolCall: &session.ToolCallPayload{
			ToolName:  call.Name,
			ArgsJSON:  string(argsJSON),
			StartedAt: started,
		},
	})

	toolName := flow.ToolName(call.Name)
	var (
		result tools.HandlerResult
		err    error
	)
	if toolName == flow.ToolGetAccountBalance {
		var signature string
		signature, err = d.registry.InvokeBalanceQuery(ctx, params.KeyMap, tools.Args(call.Arguments), params.Balances)
		result = tools.HandlerResult{TransactionSignature: signature, Completed: err == nil}
	} else {
		result, err = d.registry.Invoke(ctx, toolName, params.KeyMap, tools.Args(call.Arguments), params.Balances, params.Submitter)
	}

	ended := d.now()
	duration := ended.Sub(started).Milliseconds()
	if err != nil {
		d.appendEvent(log, session.Event{
			Kind: session.EventToolResult,
			ToolResult: &session.ToolResultPayload{
				ToolName:     call.Name,
				Status:       session.ToolResultError,
				ErrorMessage: err.Error(),
				DurationMs:   duration,
				EndedAt:      ended,
			},
		})
		return false, nil
	}

	resultJSON, _ := json.Marshal(result)
	d.appendEvent(log, session.Event{
		Kind: session.EventToolResult,
		ToolResult: &session.ToolResultPayload{
			ToolName:   call.Name,
			Status:     session.ToolResultSuccess,
			ResultJSON: string(resultJSON),
			DurationMs: duration,
			EndedAt:    ended,
		},
	})

	return isCriticalTerminalCall(toolName, params.ExpectedToolCalls), nil
}

func isCriticalTerminalCall(name flow.ToolName, expected []flow.ExpectedToolCall) bool {
	for _, e := range expected {
		if e.ToolName == name && e.Critical {
			return true
		}
	}
	return false
}

func (d *Driver) recordTimeout(log *session.Log, params RunParams) (Result, error) {
	d.appendEvent(log, session.Event{
		Kind:  session.EventError,
		Error: &session.ErrorPayload{Kind: string(reeverr.KindAgent), Message: "step timed out"},
	})
	return Result{}, reeverr.New(reeverr.KindAgent, reeverr.TagTimeout,
		fmt.Sprintf("step %d exceeded its %s timeout", params.Step.StepID, params.Step.StepTimeout()))
}

func (d *Driver) appendEvent(log *session.Log, ev session.Event) {
	_ = log.Append(ev, d.now())
}

func (d *Driver) toolDefs() []ToolDef {
	names := d.registry.Names()
	out := make([]ToolDef, 0, len(names))
	for _, name := range names {
		spec, ok := d.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, ToolDef{Name: string(spec.Name), Description: spec.Description, Required: spec.Required})
	}
	return out
}

// buildSystemPrompt renders the composite context payload (§4.4): the
// account-context block, the redundant-check instruction, the
// tool-selection policy block, and (in discovery mode) guidance to query
// balances first.
func buildSystemPrompt(params RunParams) string {
	var b strings.Builder
	b.WriteString("You are executing one step of a Solana transaction benchmark.\n\n")
	b.WriteString("## Account context\n")
	if params.DiscoveryMode {
		b.WriteString("Context is incomplete; call get_account_balance to discover any balance you need before acting.\n")
	} else {
		writeWalletContext(&b, params.WalletCtx)
		b.WriteString("\nAct directly on this context; do not re-query balances it already reports.\n")
	}
	b.WriteString("\n## Tool selection policy\n")
	b.WriteString("Prefer lend_earn_deposit over lend_earn_mint unless the user explicitly asks for shares. ")
	b.WriteString("Prefer lend_earn_withdraw over lend_earn_redeem unless the user explicitly asks to redeem shares.\n")
	return b.String()
}

func writeWalletContext(b *strings.Builder, wc *walletctx.WalletContext) {
	if wc == nil {
		return
	}
	fmt.Fprintf(b, "SOL balance: %.9f SOL\n", wc.SOLBalanceSOL())
	for mint, bal := range wc.TokenBalances {
		fmt.Fprintf(b, "Token %s (%s): %s\n", bal.Symbol, mint, bal.Formatted())
	}
	for _, pos := range wc.LendingPositions {
		fmt.Fprintf(b, "Lending position %s: %s shares (%s)\n", pos.ShareMint, pos.Formatted(), pos.Kind)
	}
}
