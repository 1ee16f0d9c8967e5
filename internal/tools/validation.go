package tools

import (
	"github.com/gagliardetto/solana-go"

	"reev-core/internal/keymap"
	"reev-core/internal/reeverr"
)

// DefaultSlippageBps is the fallback slippage tolerance for swap tools when
// the caller omits slippage_bps (§4.3).
const DefaultSlippageBps = 100

// MinSlippageBps and MaxSlippageBps bound the accepted slippage_bps range
// (§4.3: slippage_bps ∈ [1, 1000]).
const (
	MinSlippageBps = 1
	MaxSlippageBps = 1000
)

// resolvePubkeyArg resolves a tool argument that may be either a literal
// base58 pubkey or a KeyMap placeholder.
func resolvePubkeyArg(km *keymap.KeyMap, value string) (solana.PublicKey, error) {
	if key, err := solana.PublicKeyFromBase58(value); err == nil {
		return key, nil
	}
	return km.Resolve(keymap.Placeholder(value))
}

func validatePubkeyField(km *keymap.KeyMap, field, value string, issues *[]FieldIssue) {
	if value == "" {
		*issues = append(*issues, FieldIssue{Field: field, Constraint: "missing_field"})
		return
	}
	if _, err := resolvePubkeyArg(km, value); err != nil {
		*issues = append(*issues, FieldIssue{Field: field, Constraint: "invalid_pubkey"})
	}
}

func validateAmountField(field string, amount uint64, ok bool, issues *[]FieldIssue) {
	if !ok {
		*issues = append(*issues, FieldIssue{Field: field, Constraint: "missing_field"})
		return
	}
	if amount == 0 {
		*issues = append(*issues, FieldIssue{Field: field, Constraint: "invalid_amount"})
	}
}

func validateSlippage(args Args, issues *[]FieldIssue) uint64 {
	slippage, ok := args.Uint64("slippage_bps")
	if !ok {
		return DefaultSlippageBps
	}
	if slippage < MinSlippageBps || slippage > MaxSlippageBps {
		*issues = append(*issues, FieldIssue{Field: "slippage_bps", Constraint: "invalid_range"})
	}
	return slippage
}

func issuesToError(issues []FieldIssue) error {
	if len(issues) == 0 {
		return nil
	}
	tag := reeverr.TagInvalidPubkey
	for _, i := range issues {
		switch i.Constraint {
		case "invalid_amount":
			tag = reeverr.TagInvalidAmount
		case "invalid_range":
			tag = reeverr.TagSlippageOutOfRange
		}
	}
	return reeverr.Wrap(reeverr.KindValidation, tag, "tool argument validation failed", &ValidationError{Issues: issues})
}
