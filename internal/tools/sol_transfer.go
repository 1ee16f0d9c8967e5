package tools

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"reev-core/internal/keymap"
)

// SOLTransferSpec builds the native SOL transfer tool (§4.3 sol_transfer).
func SOLTransferSpec() Spec {
	return Spec{
		Name: "sol_transfer",
		Description: "Transfer native SOL from the user's wallet to a recipient. " +
			"Do not call get_account_balance first if the context block already states the SOL balance.",
		Required: []string{"recipient", "amount_lamports"},
		Validate: func(km *keymap.KeyMap, args Args) error {
			var issues []FieldIssue
			validatePubkeyField(km, "recipient", args.String("recipient"), &issues)
			amount, ok := args.Uint64("amount_lamports")
			validateAmountField("amount_lamports", amount, ok, &issues)
			return issuesToError(issues)
		},
		Handle: func(ctx context.Context, km *keymap.KeyMap, args Args, balances BalanceValidator, submitter Submitter) (HandlerResult, error) {
			owner, err := km.Resolve(keymap.UserWallet)
			if err != nil {
				return HandlerResult{}, err
			}
			recipient, err := resolvePubkeyArg(km, args.String("recipient"))
			if err != nil {
				return HandlerResult{}, err
			}
			amount, _ := args.Uint64("amount_lamports")

			if err := balances.ValidateAmount(amount); err != nil {
				return HandlerResult{}, err
			}
			if err := balances.ValidateSufficientSOL(ctx, owner, amount); err != nil {
				return HandlerResult{}, err
			}

			ix := system.NewTransferInstruction(amount, owner, recipient).Build()
			sig, err := submitter.Submit(ctx, owner, []solana.Instruction{ix})
			if err != nil {
				return HandlerResult{}, err
			}
			return HandlerResult{
				Instructions:         []solana.Instruction{ix},
				TransactionSignature: sig,
				OperationType:        "sol_transfer",
				Completed:            true,
			}, nil
		},
	}
}
