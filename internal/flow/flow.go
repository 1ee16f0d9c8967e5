// Package flow defines the typed plan a prompt is compiled into (C2's
// output) and the ground-truth bundle each step is scored against (C6).
package flow

import (
	"fmt"
	"time"

	"reev-core/internal/reeverr"
)

// ToolName is one of the closed set of tool identifiers from C3.
type ToolName string

const (
	ToolGetAccountBalance ToolName = "get_account_balance"
	ToolSOLTransfer       ToolName = "sol_transfer"
	ToolSPLTransfer       ToolName = "spl_transfer"
	ToolJupiterSwap       ToolName = "jupiter_swap"
	ToolLendDeposit       ToolName = "lend_earn_deposit"
	ToolLendWithdraw      ToolName = "lend_earn_withdraw"
	ToolLendMint          ToolName = "lend_earn_mint"
	ToolLendRedeem        ToolName = "lend_earn_redeem"
)

// RetryPolicy bounds step-level retries and gates them by error tag (§3,
// §9 "Retries and idempotence").
type RetryPolicy struct {
	MaxAttempts        int
	DelaySeconds        float64
	RetryableErrorTags []reeverr.Tag
}

// AllowsRetry reports whether tag is in the retryable set.
func (p RetryPolicy) AllowsRetry(tag reeverr.Tag) bool {
	for _, t := range p.RetryableErrorTags {
		if t == tag {
			return true
		}
	}
	return false
}

// RecoveryKind discriminates the RecoveryStrategy tagged union, reinstated
// from original_source's DynamicStep.with_recovery (SPEC_FULL.md C2
// expansion).
type RecoveryKind string

const (
	RecoveryRetry            RecoveryKind = "retry"
	RecoveryAlternativeFlow  RecoveryKind = "alternative_flow"
	RecoveryUserFulfillment  RecoveryKind = "user_fulfillment"
)

// RecoveryStrategy is the optional tagged union consulted by the Agent
// Driver when a non-critical step fails.
type RecoveryStrategy struct {
	Kind RecoveryKind

	// Set when Kind == RecoveryRetry.
	Attempts int

	// Set when Kind == RecoveryAlternativeFlow.
	AlternativeFlowID string

	// Set when Kind == RecoveryUserFulfillment.
	Questions []string
}

// Step is one prompt/agent/tool/transaction cycle within a Flow (§3, §6).
type Step struct {
	StepID        int // 1-based, dense
	Description   string
	Prompt        string
	DependsOn     []int // strictly earlier step ids
	RequiredTools []ToolName
	Critical      bool
	TimeoutSeconds int
	Retry         *RetryPolicy
	Recovery      *RecoveryStrategy
}

// Flow is an ordered, dependency-aware sequence of Steps produced from a
// single user prompt (§3).
type Flow struct {
	ID           string
	RefinedPrompt string
	Steps        []Step
	GroundTruth  GroundTruth
	Metadata     map[string]string
}

// Validate enforces the dense-id / well-formed-dependency / acyclic
// invariants (§3, §8 invariant 3, §6 validation rules).
func (f *Flow) Validate() error {
	if len(f.Steps) == 0 {
		return reeverr.New(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "flow has no steps")
	}
	seen := make(map[int]bool, len(f.Steps))
	for i, s := range f.Steps {
		expected := i + 1
		if s.StepID != expected {
			return reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark,
				"step ids must be dense from 1: expected %d, got %d", expected, s.StepID)
		}
		seen[s.StepID] = true
	}
	for _, s := range f.Steps {
		for _, dep := range s.DependsOn {
			if dep >= s.StepID {
				return reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark,
					"step %d depends_on %d, which is not strictly earlier", s.StepID, dep)
			}
			if !seen[dep] {
				return reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark,
					"step %d depends_on unknown step %d", s.StepID, dep)
			}
		}
	}
	return nil
}

// StepByID returns the step with the given id, or false if absent.
func (f *Flow) StepByID(id int) (Step, bool) {
	for _, s := range f.Steps {
		if s.StepID == id {
			return s, true
		}
	}
	return Step{}, false
}

// GroundTruth is the declarative scoring bundle for a Flow (§3).
type GroundTruth struct {
	FinalStateAssertions []StateAssertion
	ExpectedInstructions []ExpectedInstruction
	ExpectedToolCalls    []ExpectedToolCall
	MinScore             float64
	ErrorTolerance       float64
}

// DefaultGroundTruth returns the zero-value defaults from §3: min_score 0.7,
// error_tolerance 0.01.
func DefaultGroundTruth() GroundTruth {
	return GroundTruth{MinScore: 0.7, ErrorTolerance: 0.01}
}

// ExpectedToolCall names a tool the ground truth expects to see invoked.
type ExpectedToolCall struct {
	ToolName ToolName
	Critical bool
}

// AssertionKind discriminates the StateAssertion tagged union (§3).
type AssertionKind string

const (
	AssertSolBalance              AssertionKind = "sol_balance"
	AssertSolBalanceChange        AssertionKind = "sol_balance_change"
	AssertTokenAccountBalance     AssertionKind = "token_account_balance"
	AssertTokenAccountBalanceChange AssertionKind = "token_account_balance_change"
)

// StateAssertion is a tagged variant over the four assertion shapes in §3.
// Pubkey is a placeholder or a literal base58 string; resolution happens at
// scoring time via the execution's KeyMap.
type StateAssertion struct {
	Kind   AssertionKind
	Pubkey string
	Mint   string // only for TokenAccountBalance / TokenAccountBalanceChange

	// Equality / lower-bound target. For _change variants this is the
	// expected signed delta.
	Expected    int64
	ExpectedGTE bool // when true, Expected is a lower bound rather than exact

	Tolerance float64 // only meaningful for _change variants
	Weight    float64
}

// ExpectedInstruction asserts that a step's submitted instructions include
// at least one matching program_id within a declared count range (§3, §4.6).
type ExpectedInstruction struct {
	Step                int
	ProgramID           string
	InstructionCountMin int
	InstructionCountMax int
	Weight              float64
	Critical            bool
}

func (e ExpectedInstruction) String() string {
	return fmt.Sprintf("step=%d program=%s count=[%d,%d]", e.Step, e.ProgramID, e.InstructionCountMin, e.InstructionCountMax)
}

// StepTimeout returns the step's timeout as a time.Duration.
func (s Step) StepTimeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}
