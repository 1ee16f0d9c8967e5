package tools

import (
	"context"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"

	"reev-core/internal/keymap"
)

// SPLTransferSpec builds the SPL token transfer tool (§4.3 spl_transfer).
func SPLTransferSpec() Spec {
	return Spec{
		Name:        "spl_transfer",
		Description: "Transfer an SPL token from the user's associated token account to a recipient's ATA.",
		Required:    []string{"mint", "recipient", "amount"},
		Validate: func(km *keymap.KeyMap, args Args) error {
			var issues []FieldIssue
			validatePubkeyField(km, "mint", args.String("mint"), &issues)
			validatePubkeyField(km, "recipient", args.String("recipient"), &issues)
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
			recipient, err := resolvePubkeyArg(km, args.String("recipient"))
			if err != nil {
				return HandlerResult{}, err
			}
			amount, _ := args.Uint64("amount")

			if err := balances.ValidateAmount(amount); err != nil {
				return HandlerResult{}, err
			}

			sourceATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
			if err != nil {
				return HandlerResult{}, err
			}
			destATA, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
			if err != nil {
				return HandlerResult{}, err
			}
			if err := balances.ValidateSufficientToken(ctx, sourceATA, amount); err != nil {
				return HandlerResult{}, err
			}

			createDest := associatedtokenaccount.NewCreateInstruction(owner, recipient, mint).Build()
			transfer := token.NewTransferInstruction(amount, sourceATA, destATA, owner, nil).Build()

			ixs := []solana.Instruction{createDest, transfer}
			sig, err := submitter.Submit(ctx, owner, ixs)
			if err != nil {
				return HandlerResult{}, err
			}
			return HandlerResult{
				Instructions:         ixs,
				TransactionSignature: sig,
				OperationType:        "spl_transfer",
				Completed:            true,
			}, nil
		},
	}
}
