package tools

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"reev-core/internal/ledger"
	"reev-core/internal/reeverr"
)

// BalanceValidator queries the live fork for SOL and SPL balances and
// enforces the amount > 0 / sufficient-funds invariants every
// amount-consuming tool depends on (§4.3). Grounded on
// original_source/crates/reev-lib/src/balance_validation.rs's
// BalanceValidator, which points an rpc_client at the local fork.
type BalanceValidator interface {
	SOLBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, ata solana.PublicKey) (uint64, error)
	MaxSwappableSOL(ctx context.Context, owner solana.PublicKey, reserve uint64) (uint64, error)
	ValidateAmount(amount uint64) error
	ValidateSufficientSOL(ctx context.Context, owner solana.PublicKey, requested uint64) error
	ValidateSufficientToken(ctx context.Context, ata solana.PublicKey, requested uint64) error
}

// LiveBalanceValidator is the reference BalanceValidator, backed by a live
// ledger.ReadClient. Per §9's "Open questions" note, simulated/placeholder
// balance paths are not implemented here: the real path is mandatory for
// every amount-consuming tool.
type LiveBalanceValidator struct {
	read ledger.ReadClient
}

// NewLiveBalanceValidator returns a LiveBalanceValidator reading from read.
func NewLiveBalanceValidator(read ledger.ReadClient) *LiveBalanceValidator {
	return &LiveBalanceValidator{read: read}
}

func (v *LiveBalanceValidator) SOLBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	acc, err := v.read.GetAccountInfo(ctx, owner)
	if err != nil {
		return 0, err
	}
	if acc == nil {
		return 0, nil
	}
	return acc.Lamports, nil
}

func (v *LiveBalanceValidator) TokenBalance(ctx context.Context, ata solana.PublicKey) (uint64, error) {
	amount, _, err := v.read.GetTokenAccountBalance(ctx, ata)
	if err != nil {
		return 0, err
	}
	return amount, nil
}

func (v *LiveBalanceValidator) MaxSwappableSOL(ctx context.Context, owner solana.PublicKey, reserve uint64) (uint64, error) {
	balance, err := v.SOLBalance(ctx, owner)
	if err != nil {
		return 0, err
	}
	if balance <= reserve {
		return 0, nil
	}
	return balance - reserve, nil
}

// ValidateAmount enforces amount > 0 (§4.3, §8 boundary behavior).
func (v *LiveBalanceValidator) ValidateAmount(amount uint64) error {
	if amount == 0 {
		return reeverr.New(reeverr.KindValidation, reeverr.TagInvalidAmount, "amount must be greater than zero")
	}
	return nil
}

// ValidateSufficientSOL fails with InsufficientFunds{requested, available}
// when requested exceeds the owner's current SOL balance; no gas buffer is
// reserved by this check (§4.3, S3).
func (v *LiveBalanceValidator) ValidateSufficientSOL(ctx context.Context, owner solana.PublicKey, requested uint64) error {
	available, err := v.SOLBalance(ctx, owner)
	if err != nil {
		return err
	}
	if requested > available {
		return reeverr.Errorf(reeverr.KindValidation, reeverr.TagInsufficientFunds,
			"insufficient funds: requested=%d available=%d", requested, available)
	}
	return nil
}

// ValidateSufficientToken fails with InsufficientFunds when requested
// exceeds the ATA's parsed token amount.
func (v *LiveBalanceValidator) ValidateSufficientToken(ctx context.Context, ata solana.PublicKey, requested uint64) error {
	available, err := v.TokenBalance(ctx, ata)
	if err != nil {
		return err
	}
	if requested > available {
		return reeverr.Errorf(reeverr.KindValidation, reeverr.TagInsufficientFunds,
			"insufficient funds: requested=%d available=%d", requested, available)
	}
	return nil
}

// DescribeInsufficientFunds formats an InsufficientFunds detail string for
// session event context maps.
func DescribeInsufficientFunds(requested, available uint64) string {
	return fmt.Sprintf("requested=%d available=%d", requested, available)
}
