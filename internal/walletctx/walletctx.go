// Package walletctx models the resolved wallet snapshot (C1's output) that
// flows into prompt refinement, tool validation, and scoring.
package walletctx

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// WellKnownSOLMint is the canonical wrapped-SOL mint, used to represent
// native SOL balances alongside SPL token balances (§3 TokenBalance).
const WellKnownSOLMint = "So11111111111111111111111111111111111111112"

// GasBufferLamports is the fixed SOL amount reserved when a prompt requests
// "all" of a SOL-denominated balance (§4.2, boundary behavior in §8).
const GasBufferLamports uint64 = 50_000_000

// TokenBalance is a parsed SPL token account balance, or the synthetic
// native-SOL entry keyed by WellKnownSOLMint.
type TokenBalance struct {
	Mint     string
	Owner    solana.PublicKey
	Amount   uint64
	Decimals uint8
	Symbol   string
}

// Formatted renders Amount using Decimals, e.g. 15_000_000 at 6 decimals ->
// "15.000000" (the fraction always carries Decimals digits).
func (t TokenBalance) Formatted() string {
	return formatAmount(t.Amount, t.Decimals)
}

// LendingPosition is a recognized lending-protocol share balance, reinstated
// from original_source's LendingPosition type (dropped by the distillation,
// see SPEC_FULL.md C1 expansion).
type LendingPosition struct {
	ShareMint string
	Owner     solana.PublicKey
	Shares    uint64
	Decimals  uint8
	Kind      string // e.g. "jupiter-lend"
}

// Formatted renders Shares using Decimals.
func (p LendingPosition) Formatted() string {
	return formatAmount(p.Shares, p.Decimals)
}

// WalletContext is the immutable-within-a-step snapshot produced by C1.
// Created per execution, refreshed between steps (§3).
type WalletContext struct {
	Owner           solana.PublicKey
	SOLBalance      uint64
	TokenBalances   map[string]TokenBalance // keyed by mint
	LendingPositions []LendingPosition
	TokenPrices     map[string]float64 // keyed by mint, USD
	TotalValueUSD   float64
}

// New returns an empty WalletContext owned by owner.
func New(owner solana.PublicKey) *WalletContext {
	return &WalletContext{
		Owner:         owner,
		TokenBalances: make(map[string]TokenBalance),
		TokenPrices:   make(map[string]float64),
	}
}

// GetTokenBalance returns the balance for mint, or zero if absent.
func (w *WalletContext) GetTokenBalance(mint string) TokenBalance {
	return w.TokenBalances[mint]
}

// AddTokenBalance upserts the balance for mint.
func (w *WalletContext) AddTokenBalance(b TokenBalance) {
	w.TokenBalances[b.Mint] = b
}

// SOLBalanceSOL returns the native SOL balance in whole SOL units.
func (w *WalletContext) SOLBalanceSOL() float64 {
	return float64(w.SOLBalance) / 1e9
}

// MaxSwappableSOL returns the SOL amount available to swap after reserving
// reserve lamports (§4.3 max_swappable_sol). Returns 0 if the balance is
// already below the reserve.
func (w *WalletContext) MaxSwappableSOL(reserve uint64) uint64 {
	if w.SOLBalance <= reserve {
		return 0
	}
	return w.SOLBalance - reserve
}

// RecalculateTotalValue sums SOL and every priced token balance into
// TotalValueUSD. Missing prices leave that asset out of the sum (§4.1:
// "missing price leaves total_value_usd as the sum of priced assets only").
func (w *WalletContext) RecalculateTotalValue() {
	total := 0.0
	if price, ok := w.TokenPrices[WellKnownSOLMint]; ok {
		total += w.SOLBalanceSOL() * price
	}
	for mint, bal := range w.TokenBalances {
		price, ok := w.TokenPrices[mint]
		if !ok {
			continue
		}
		amount := float64(bal.Amount) / pow10(bal.Decimals)
		total += amount * price
	}
	w.TotalValueUSD = total
}

func pow10(decimals uint8) float64 {
	v := 1.0
	for i := uint8(0); i < decimals; i++ {
		v *= 10
	}
	return v
}

func formatAmount(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}
	scale := uint64(1)
	for i := uint8(0); i < decimals; i++ {
		scale *= 10
	}
	whole := amount / scale
	frac := amount % scale
	return fmt.Sprintf("%d.%0*d", whole, decimals, frac)
}
