package tools

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"reev-core/internal/flow"
	"reev-core/internal/keymap"
)

// LendOperation discriminates which of the four lending tools a
// LendProvider call builds instructions for.
type LendOperation string

const (
	LendOpDeposit  LendOperation = "deposit"
	LendOpWithdraw LendOperation = "withdraw"
	LendOpMint     LendOperation = "mint"
	LendOpRedeem   LendOperation = "redeem"
)

// LendProvider builds the actual lending-protocol instructions via an
// external routing provider, mirroring SwapRouter's abstraction boundary
// (§4.3, §1 Non-goals).
type LendProvider interface {
	BuildLendInstructions(ctx context.Context, op LendOperation, owner, mint solana.PublicKey, amount uint64) ([]solana.Instruction, error)
}

// LendSpecs returns the four lend_earn_* tool Specs (deposit, withdraw,
// mint, redeem), sharing validation and submission logic against the given
// provider. The tool-selection policy (§4.4: prefer deposit over mint
// unless shares are mentioned) lives in the Agent Driver's
// context-injection prompt, not here: C3 only exposes the closed tool set,
// it does not choose between them.
func LendSpecs(provider LendProvider) []Spec {
	return []Spec{
		lendSpec(flow.ToolLendDeposit, LendOpDeposit, provider,
			"Deposit a token into the lending protocol to start earning yield."),
		lendSpec(flow.ToolLendWithdraw, LendOpWithdraw, provider,
			"Withdraw an underlying token amount from the lending protocol."),
		lendSpec(flow.ToolLendMint, LendOpMint, provider,
			"Mint lending-protocol shares for a specified share amount. Prefer lend_earn_deposit unless the prompt explicitly asks for a share amount."),
		lendSpec(flow.ToolLendRedeem, LendOpRedeem, provider,
			"Redeem lending-protocol shares for the underlying token."),
	}
}

func lendSpec(name flow.ToolName, op LendOperation, provider LendProvider, description string) Spec {
	return Spec{
		Name:        name,
		Description: description,
		Required:    []string{"mint", "amount"},
		Validate: func(km *keymap.KeyMap, args Args) error {
			var issues []FieldIssue
			validatePubkeyField(km, "mint", args.String("mint"), &issues)
			amount, ok := args.Uint64("amount")
			validateAmountField("amount", amount, ok, &issues)
			return issuesToError(issues)
		},
		Handle: func(ctx context.Context, km *keymap.KeyMap, args Args, balances BalanceValidator, submitter Submitter) (HandlerResult, error) {
			owner, err := km.Resolve(keymap.UserWallet)
			if err != nil {
				return HandlerResult{}, err
			}
			mint, err := resolvePubkeyArg(km, args.String("mint"))
			if err != nil {
				return HandlerResult{}, err
			}
			amount, _ := args.Uint64("amount")

			if err := balances.ValidateAmount(amount); err != nil {
				return HandlerResult{}, err
			}
			if op == LendOpDeposit || op == LendOpMint {
				ata, _, ataErr := solana.FindAssociatedTokenAddress(owner, mint)
				if ataErr != nil {
					return HandlerResult{}, ataErr
				}
				if err := balances.ValidateSufficientToken(ctx, ata, amount); err != nil {
					return HandlerResult{}, err
				}
			}

			ixs, err := provider.BuildLendInstructions(ctx, op, owner, mint, amount)
			if err != nil {
				return HandlerResult{}, err
			}
			sig, err := submitter.Submit(ctx, owner, ixs)
			if err != nil {
				return HandlerResult{}, err
			}
			return HandlerResult{
				Instructions:         ixs,
				TransactionSignature: sig,
				OperationType:        string(op),
				Completed:            true,
			}, nil
		},
	}
}
