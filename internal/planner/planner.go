// Package planner implements C2, the Prompt Refiner & Planner: a pure
// function from (raw prompt, WalletContext) to a typed flow.Flow. Grounded
// on the teacher's runtime/agent/planner.Planner boundary shape (a bounded,
// deterministic transform producing a structured plan) adapted from
// conversational planning to one-shot flow compilation.
package planner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"reev-core/internal/flow"
	"reev-core/internal/keymap"
	"reev-core/internal/reeverr"
	"reev-core/internal/walletctx"
)

// KnownToken maps a token symbol to its mint address, used to bind token
// names in a prompt to mints (§4.2).
type KnownToken struct {
	Symbol string
	Mint   string
}

// DefaultKnownTokens is the reference symbol->mint table.
var DefaultKnownTokens = []KnownToken{
	{Symbol: "SOL", Mint: walletctx.WellKnownSOLMint},
	{Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
	{Symbol: "USDT", Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"},
}

// synonym normalization table (§4.2: "exchange"->"swap", "deposit to
// earn"->"lend").
var synonyms = []struct {
	from, to string
}{
	{"exchange", "swap"},
	{"deposit to earn", "lend"},
	{"trade", "swap"},
}

var (
	swapRe     = regexp.MustCompile(`(?i)swap\s+(all|half|[\d.]+)\s*([a-z]+)\s+(?:to|for|into)\s+([a-z]+)`)
	transferRe = regexp.MustCompile(`(?i)(?:transfer|send)\s+([\d.]+)\s*([a-z]+)\s+to\s+(\S+)`)
	lendRe     = regexp.MustCompile(`(?i)lend\s+(all|half|[\d.]+)\s*([a-z]+)`)
)

// Planner compiles refined prompts into flow.Flow values. A Planner holds
// no mutable state: Plan is a total function of its arguments, per §4.2's
// reproducibility requirement.
type Planner struct {
	knownTokens []KnownToken
}

// New returns a Planner using the given token table, or DefaultKnownTokens
// if tokens is nil.
func New(tokens []KnownToken) *Planner {
	if tokens == nil {
		tokens = DefaultKnownTokens
	}
	return &Planner{knownTokens: tokens}
}

// Refine normalizes synonyms and is a total function of its input, making
// the pipeline reproducible (§4.2).
func (p *Planner) Refine(prompt string) string {
	refined := prompt
	lower := strings.ToLower(refined)
	for _, syn := range synonyms {
		if strings.Contains(lower, syn.from) {
			refined = replaceCaseInsensitive(refined, syn.from, syn.to)
			lower = strings.ToLower(refined)
		}
	}
	return refined
}

func replaceCaseInsensitive(s, old, new string) string {
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(old))
	return re.ReplaceAllString(s, new)
}

// mintForSymbol resolves a token symbol to its mint via the known-token
// table.
func (p *Planner) mintForSymbol(symbol string) (string, bool) {
	symbol = strings.ToUpper(symbol)
	for _, t := range p.knownTokens {
		if t.Symbol == symbol {
			return t.Mint, true
		}
	}
	return "", false
}

// Plan classifies a refined prompt into an operation shape and produces a
// flow.Flow (§4.2). It handles the single-step swap/transfer/lend shapes;
// compound "X then Y" prompts are split on " then " into per-clause steps
// chained by depends_on. Each clause also synthesizes its mandated ground
// truth (§4.2: a SOL-balance lower bound for from_mint=SOL swaps, otherwise
// just the required tool call), so a bare-prompt benchmark is never scored
// against an empty GroundTruth.
func (p *Planner) Plan(flowID string, rawPrompt string, wc *walletctx.WalletContext) (*flow.Flow, error) {
	refined := p.Refine(rawPrompt)
	clauses := splitCompound(refined)

	steps := make([]flow.Step, 0, len(clauses))
	gt := flow.DefaultGroundTruth()
	for i, clause := range clauses {
		step, clauseGT, err := p.planClause(i+1, clause, wc)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			step.DependsOn = []int{i}
		}
		steps = append(steps, step)
		gt.FinalStateAssertions = append(gt.FinalStateAssertions, clauseGT.assertions...)
		gt.ExpectedToolCalls = append(gt.ExpectedToolCalls, clauseGT.toolCalls...)
	}

	f := &flow.Flow{
		ID:            flowID,
		RefinedPrompt: refined,
		Steps:         steps,
		GroundTruth:   gt,
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// clauseGroundTruth is the ground-truth contribution one planned clause adds
// to the flow's aggregate GroundTruth.
type clauseGroundTruth struct {
	assertions []flow.StateAssertion
	toolCalls  []flow.ExpectedToolCall
}

func splitCompound(refined string) []string {
	parts := regexp.MustCompile(`(?i)\s+then\s+`).Split(refined, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{refined}
	}
	return out
}

func (p *Planner) planClause(stepID int, clause string, wc *walletctx.WalletContext) (flow.Step, clauseGroundTruth, error) {
	base := flow.Step{
		StepID:         stepID,
		Description:    clause,
		Prompt:         clause,
		Critical:       true,
		TimeoutSeconds: 60,
	}

	if m := swapRe.FindStringSubmatch(clause); m != nil {
		fromMint, ok := p.mintForSymbol(m[2])
		if !ok {
			return flow.Step{}, clauseGroundTruth{}, reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "unknown token symbol %q", m[2])
		}
		toMint, ok := p.mintForSymbol(m[3])
		if !ok {
			return flow.Step{}, clauseGroundTruth{}, reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "unknown token symbol %q", m[3])
		}
		amount, err := p.resolveQuantifier(m[1], fromMint, wc)
		if err != nil {
			return flow.Step{}, clauseGroundTruth{}, err
		}
		base.RequiredTools = []flow.ToolName{flow.ToolJupiterSwap}
		base.Prompt = fmt.Sprintf("%s (resolved amount=%d, from_mint=%s, to_mint=%s)", clause, amount, fromMint, toMint)
		return base, swapGroundTruth(fromMint, amount, wc), nil
	}

	if m := transferRe.FindStringSubmatch(clause); m != nil {
		amountFloat, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return flow.Step{}, clauseGroundTruth{}, reeverr.Wrap(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "invalid transfer amount", err)
		}
		symbol := strings.ToUpper(m[2])
		var tool flow.ToolName
		if symbol == "SOL" {
			tool = flow.ToolSOLTransfer
		} else {
			tool = flow.ToolSPLTransfer
		}
		base.RequiredTools = []flow.ToolName{tool}
		base.Prompt = fmt.Sprintf("%s (resolved amount=%v, symbol=%s, recipient_placeholder=%s)", clause, amountFloat, symbol, m[3])
		return base, clauseGroundTruth{toolCalls: []flow.ExpectedToolCall{{ToolName: tool, Critical: true}}}, nil
	}

	if m := lendRe.FindStringSubmatch(clause); m != nil {
		mint, ok := p.mintForSymbol(m[2])
		if !ok {
			return flow.Step{}, clauseGroundTruth{}, reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "unknown token symbol %q", m[2])
		}
		amount, err := p.resolveQuantifier(m[1], mint, wc)
		if err != nil {
			return flow.Step{}, clauseGroundTruth{}, err
		}
		base.RequiredTools = []flow.ToolName{flow.ToolLendDeposit}
		base.Prompt = fmt.Sprintf("%s (resolved amount=%d, mint=%s)", clause, amount, mint)
		return base, clauseGroundTruth{toolCalls: []flow.ExpectedToolCall{{ToolName: flow.ToolLendDeposit, Critical: true}}}, nil
	}

	return flow.Step{}, clauseGroundTruth{}, reeverr.Errorf(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark,
		"could not classify prompt clause %q into swap/transfer/lend", clause)
}

// swapGroundTruth synthesizes a swap clause's mandated ground truth (§4.2):
// the jupiter_swap tool call is always required; when swapping away from
// native SOL, a lower bound on the post-execution SOL balance is also
// asserted, accounting for the swapped amount plus the fixed gas buffer.
func swapGroundTruth(fromMint string, amount uint64, wc *walletctx.WalletContext) clauseGroundTruth {
	gt := clauseGroundTruth{toolCalls: []flow.ExpectedToolCall{{ToolName: flow.ToolJupiterSwap, Critical: true}}}
	if fromMint != walletctx.WellKnownSOLMint {
		return gt
	}
	var lowerBound int64
	reserved := amount + walletctx.GasBufferLamports
	if wc.SOLBalance > reserved {
		lowerBound = int64(wc.SOLBalance - reserved)
	}
	gt.assertions = append(gt.assertions, flow.StateAssertion{
		Kind:        flow.AssertSolBalance,
		Pubkey:      string(keymap.UserWallet),
		Expected:    lowerBound,
		ExpectedGTE: true,
		Weight:      1.0,
	})
	return gt
}

// resolveQuantifier resolves "all"/"half"/a literal amount against the
// current balance of mint, reserving GasBufferLamports when mint is SOL
// (§4.2).
func (p *Planner) resolveQuantifier(quantifier, mint string, wc *walletctx.WalletContext) (uint64, error) {
	isSOL := mint == walletctx.WellKnownSOLMint

	var balance uint64
	if isSOL {
		balance = wc.SOLBalance
	} else {
		balance = wc.GetTokenBalance(mint).Amount
	}

	switch strings.ToLower(quantifier) {
	case "all":
		if isSOL {
			return wc.MaxSwappableSOL(walletctx.GasBufferLamports), nil
		}
		return balance, nil
	case "half":
		half := balance / 2
		if isSOL && half > wc.MaxSwappableSOL(walletctx.GasBufferLamports) {
			return wc.MaxSwappableSOL(walletctx.GasBufferLamports), nil
		}
		return half, nil
	default:
		amountFloat, err := strconv.ParseFloat(quantifier, 64)
		if err != nil {
			return 0, reeverr.Wrap(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "invalid amount", err)
		}
		decimals := uint8(9)
		if !isSOL {
			decimals = wc.GetTokenBalance(mint).Decimals
		}
		return uint64(amountFloat * pow10(decimals)), nil
	}
}

func pow10(decimals uint8) float64 {
	v := 1.0
	for i := uint8(0); i < decimals; i++ {
		v *= 10
	}
	return v
}
