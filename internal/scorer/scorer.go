// Package scorer implements C6: comparing post-execution ledger state and
// recorded session events against a Flow's GroundTruth and producing a
// weighted [0,1] score with a retained per-assertion breakdown (§4.6).
// Grounded on the teacher's eval/judge package shape (criteria -> weighted
// sub-scores -> clamped overall), generalized from LLM-response grading to
// on-chain state grading.
package scorer

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"reev-core/internal/flow"
	"reev-core/internal/keymap"
	"reev-core/internal/ledger"
	"reev-core/internal/session"
)

// Baseline holds the pre-execution observation needed to evaluate
// *_change assertions, keyed by the corresponding StateAssertion's Pubkey
// string as written (a placeholder or a base58 key). The caller populates
// this once per execution, before the flow runs (cmd/reev-core reads the
// fork in captureBaseline). A missing entry counts as a baseline of 0.
type Baseline map[string]int64

// AssertionResult is the retained per-assertion breakdown entry for a
// StateAssertion (§4.6: "The breakdown... MUST be retained").
type AssertionResult struct {
	Kind     flow.AssertionKind
	Pubkey   string
	Passed   bool
	Weight   float64
	Observed int64
	Expected int64
	Detail   string
}

// InstructionResult is the retained breakdown entry for an
// ExpectedInstruction.
type InstructionResult struct {
	Step     int
	Program  string
	Passed   bool
	Weight   float64
	Detail   string
}

// ToolCallResult is the retained breakdown entry for an ExpectedToolCall.
type ToolCallResult struct {
	ToolName flow.ToolName
	Critical bool
	Passed   bool
}

// Result is the full scoring output for one execution (§4.6).
type Result struct {
	StateScore       float64
	InstructionScore float64
	ToolScore        float64
	Overall          float64
	Succeeded        bool

	StateResults       []AssertionResult
	InstructionResults []InstructionResult
	ToolResults        []ToolCallResult
}

// Scorer evaluates a Flow's GroundTruth against observed post-execution
// state. It is stateless; every call is self-contained.
type Scorer struct {
	observer ledger.ReadClient
}

// New returns a Scorer reading post-execution account state through
// observer (normally the same fork client the Executor submitted against).
func New(observer ledger.ReadClient) *Scorer {
	return &Scorer{observer: observer}
}

// Score evaluates gt against logs (one SessionLog per executed step, in
// step order) and baseline (pre-execution balances for *_change
// assertions), resolving placeholder pubkeys through km (§4.6).
func (s *Scorer) Score(ctx context.Context, gt flow.GroundTruth, logs []*session.Log, km *keymap.KeyMap, baseline Baseline) (Result, error) {
	stepAborted := anyStepAborted(logs)

	stateResults := s.scoreStateAssertions(ctx, gt.FinalStateAssertions, km, baseline, stepAborted)
	instructionResults := scoreInstructions(gt.ExpectedInstructions, logs)
	toolResults := scoreToolCalls(gt.ExpectedToolCalls, logs)

	stateScore := weightedPassRate(stateWeights(stateResults))
	instructionScore := weightedPassRate(instructionWeights(instructionResults))
	toolScore := toolCallScore(toolResults)

	overall := clamp01(0.5*stateScore + 0.25*instructionScore + 0.25*toolScore)

	allCriticalPassed := true
	for _, tr := range toolResults {
		if tr.Critical && !tr.Passed {
			allCriticalPassed = false
		}
	}

	return Result{
		StateScore:         stateScore,
		InstructionScore:   instructionScore,
		ToolScore:          toolScore,
		Overall:            overall,
		Succeeded:          overall >= gt.MinScore && allCriticalPassed,
		StateResults:       stateResults,
		InstructionResults: instructionResults,
		ToolResults:        toolResults,
	}, nil
}

// anyStepAborted reports whether a prior step failed without sealing
// successfully, which per §4.6 edge cases makes downstream post-execution
// observations unreliable.
func anyStepAborted(logs []*session.Log) bool {
	for _, l := range logs {
		if l == nil || !l.Sealed() {
			return true
		}
		if l.FinalResult == nil || l.FinalResult.Status != session.StatusSucceeded {
			return true
		}
	}
	return false
}

func (s *Scorer) scoreStateAssertions(ctx context.Context, assertions []flow.StateAssertion, km *keymap.KeyMap, baseline Baseline, aborted bool) []AssertionResult {
	results := make([]AssertionResult, 0, len(assertions))
	for _, a := range assertions {
		if aborted {
			results = append(results, AssertionResult{
				Kind: a.Kind, Pubkey: a.Pubkey, Passed: false, Weight: a.Weight,
				Detail: "short-circuited: a prior step aborted before this state was observable",
			})
			continue
		}
		results = append(results, s.evaluateAssertion(ctx, a, km, baseline))
	}
	return results
}

func (s *Scorer) evaluateAssertion(ctx context.Context, a flow.StateAssertion, km *keymap.KeyMap, baseline Baseline) AssertionResult {
	pubkey, err := resolvePubkey(km, a.Pubkey)
	if err != nil {
		return AssertionResult{Kind: a.Kind, Pubkey: a.Pubkey, Passed: false, Weight: a.Weight, Detail: err.Error()}
	}

	switch a.Kind {
	case flow.AssertSolBalance:
		observed, err := s.observedSOL(ctx, pubkey)
		if err != nil {
			return AssertionResult{Kind: a.Kind, Pubkey: a.Pubkey, Passed: false, Weight: a.Weight, Detail: err.Error()}
		}
		return compareAbsolute(a, observed)

	case flow.AssertSolBalanceChange:
		observed, err := s.observedSOL(ctx, pubkey)
		if err != nil {
			return AssertionResult{Kind: a.Kind, Pubkey: a.Pubkey, Passed: false, Weight: a.Weight, Detail: err.Error()}
		}
		return compareChange(a, observed, baseline[a.Pubkey])

	case flow.AssertTokenAccountBalance:
		observed, err := s.observedToken(ctx, pubkey)
		if err != nil {
			return AssertionResult{Kind: a.Kind, Pubkey: a.Pubkey, Passed: false, Weight: a.Weight, Detail: err.Error()}
		}
		return compareAbsolute(a, observed)

	case flow.AssertTokenAccountBalanceChange:
		observed, err := s.observedToken(ctx, pubkey)
		if err != nil {
			return AssertionResult{Kind: a.Kind, Pubkey: a.Pubkey, Passed: false, Weight: a.Weight, Detail: err.Error()}
		}
		return compareChange(a, observed, baseline[a.Pubkey])

	default:
		return AssertionResult{Kind: a.Kind, Pubkey: a.Pubkey, Passed: false, Weight: a.Weight, Detail: "unknown assertion kind"}
	}
}

func (s *Scorer) observedSOL(ctx context.Context, pubkey solana.PublicKey) (int64, error) {
	acc, err := s.observer.GetAccountInfo(ctx, pubkey)
	if err != nil {
		return 0, err
	}
	if acc == nil {
		return 0, nil
	}
	return int64(acc.Lamports), nil
}

func (s *Scorer) observedToken(ctx context.Context, pubkey solana.PublicKey) (int64, error) {
	amount, _, err := s.observer.GetTokenAccountBalance(ctx, pubkey)
	if err != nil {
		return 0, err
	}
	return int64(amount), nil
}

// compareAbsolute handles equality and _gte assertions (§4.6: "Equality
// assertions are exact; _gte assertions pass when observed ≥ expected").
func compareAbsolute(a flow.StateAssertion, observed int64) AssertionResult {
	var passed bool
	if a.ExpectedGTE {
		passed = observed >= a.Expected
	} else {
		passed = observed == a.Expected
	}
	return AssertionResult{Kind: a.Kind, Pubkey: a.Pubkey, Passed: passed, Weight: a.Weight, Observed: observed, Expected: a.Expected}
}

// compareChange handles *_change assertions: pass when the observed delta
// is within tolerance of the expected delta (§4.6).
func compareChange(a flow.StateAssertion, observed, base int64) AssertionResult {
	delta := observed - base
	magnitude := a.Expected
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude < 1 {
		magnitude = 1
	}
	allowed := int64(a.Tolerance * float64(magnitude))
	diff := delta - a.Expected
	if diff < 0 {
		diff = -diff
	}
	passed := diff <= allowed
	return AssertionResult{Kind: a.Kind, Pubkey: a.Pubkey, Passed: passed, Weight: a.Weight, Observed: delta, Expected: a.Expected}
}

func resolvePubkey(km *keymap.KeyMap, value string) (solana.PublicKey, error) {
	if key, err := solana.PublicKeyFromBase58(value); err == nil {
		return key, nil
	}
	return km.Resolve(keymap.Placeholder(value))
}

func stateWeights(results []AssertionResult) (pass, total float64) {
	for _, r := range results {
		total += r.Weight
		if r.Passed {
			pass += r.Weight
		}
	}
	return pass, total
}

func instructionWeights(results []InstructionResult) (pass, total float64) {
	for _, r := range results {
		total += r.Weight
		if r.Passed {
			pass += r.Weight
		}
	}
	return pass, total
}

func weightedPassRate(pass, total float64) float64 {
	if total <= 0 {
		return 1 // no assertions of this kind: vacuously satisfied, §4.6 edge case
	}
	return clamp01(pass / total)
}

// scoreInstructions evaluates each ExpectedInstruction against the
// TransactionExecution events recorded for its step (§4.6: "at least one
// submitted instruction in the named step [has] the expected program_id
// and an instruction count inside the declared range").
func scoreInstructions(expected []flow.ExpectedInstruction, logs []*session.Log) []InstructionResult {
	results := make([]InstructionResult, 0, len(expected))
	for _, e := range expected {
		log := stepLog(logs, e.Step)
		if log == nil {
			results = append(results, InstructionResult{Step: e.Step, Program: e.ProgramID, Passed: false, Weight: e.Weight, Detail: "no session log for step"})
			continue
		}
		passed, detail := matchInstruction(e, log)
		results = append(results, InstructionResult{Step: e.Step, Program: e.ProgramID, Passed: passed, Weight: e.Weight, Detail: detail})
	}
	return results
}

func matchInstruction(e flow.ExpectedInstruction, log *session.Log) (bool, string) {
	for _, ev := range log.Events {
		if ev.Kind != session.EventTransactionExecution || ev.TransactionExecution == nil {
			continue
		}
		tx := ev.TransactionExecution
		if tx.InstructionCount < e.InstructionCountMin || tx.InstructionCount > e.InstructionCountMax {
			continue
		}
		for _, pid := range tx.ProgramIDs {
			if pid == e.ProgramID {
				return true, ""
			}
		}
	}
	return false, "no matching transaction_execution event found for step"
}

func stepLog(logs []*session.Log, stepID int) *session.Log {
	if stepID-1 < 0 || stepID-1 >= len(logs) {
		return nil
	}
	return logs[stepID-1]
}

// scoreToolCalls evaluates each ExpectedToolCall against every step's
// events (§4.6: critical calls must be Success; non-critical calls
// contribute partial credit if present).
func scoreToolCalls(expected []flow.ExpectedToolCall, logs []*session.Log) []ToolCallResult {
	results := make([]ToolCallResult, 0, len(expected))
	for _, e := range expected {
		passed := false
		for _, log := range logs {
			if log != nil && log.HasSuccessfulToolCall(string(e.ToolName)) {
				passed = true
				break
			}
		}
		results = append(results, ToolCallResult{ToolName: e.ToolName, Critical: e.Critical, Passed: passed})
	}
	return results
}

func toolCallScore(results []ToolCallResult) float64 {
	if len(results) == 0 {
		return 1
	}
	var total float64
	for _, r := range results {
		if r.Passed {
			total++
		}
	}
	return clamp01(total / float64(len(results)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
