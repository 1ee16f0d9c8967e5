package tools

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"reev-core/internal/keymap"
	"reev-core/internal/reeverr"
	"reev-core/internal/walletctx"
)

// SwapRouter builds the actual swap instructions via an external routing
// provider (§4.3: "possibly via an external routing provider"). The core
// depends only on this abstract contract; the concrete Jupiter wire
// protocol is out of scope (§1 Non-goals).
type SwapRouter interface {
	BuildSwapInstructions(ctx context.Context, owner, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint64) ([]solana.Instruction, error)
}

// JupiterSwapSpec builds the jupiter_swap tool (§4.3). slippage_bps
// defaults to 100 and must be in [1,1000]; input_mint == output_mint is
// rejected.
func JupiterSwapSpec(router SwapRouter) Spec {
	return Spec{
		Name:        "jupiter_swap",
		Description: "Swap one token for another via Jupiter routing. Do not re-check balances the context block already reports.",
		Required:    []string{"input_mint", "output_mint", "amount"},
		Validate: func(km *keymap.KeyMap, args Args) error {
			var issues []FieldIssue
			validatePubkeyField(km, "input_mint", args.String("input_mint"), &issues)
			validatePubkeyField(km, "output_mint", args.String("output_mint"), &issues)
			amount, ok := args.Uint64("amount")
			validateAmountField("amount", amount, ok, &issues)
			slippage := validateSlippage(args, &issues)
			_ = slippage
			if err := issuesToError(issues); err != nil {
				return err
			}
			if args.String("input_mint") == args.String("output_mint") {
				return reeverr.New(reeverr.KindValidation, reeverr.TagSameMint, "input_mint and output_mint must differ")
			}
			return nil
		},
		Handle: func(ctx context.Context, km *keymap.KeyMap, args Args, balances BalanceValidator, submitter Submitter) (HandlerResult, error) {
			owner, err := km.Resolve(keymap.UserWallet)
			if err != nil {
				return HandlerResult{}, err
			}
			inputMint, err := resolvePubkeyArg(km, args.String("input_mint"))
			if err != nil {
				return HandlerResult{}, err
			}
			outputMint, err := resolvePubkeyArg(km, args.String("output_mint"))
			if err != nil {
				return HandlerResult{}, err
			}
			amount, _ := args.Uint64("amount")
			slippage, ok := args.Uint64("slippage_bps")
			if !ok {
				slippage = DefaultSlippageBps
			}

			if err := balances.ValidateAmount(amount); err != nil {
				return HandlerResult{}, err
			}
			if inputMint.String() == walletctx.WellKnownSOLMint {
				if err := balances.ValidateSufficientSOL(ctx, owner, amount); err != nil {
					return HandlerResult{}, err
				}
			} else {
				ata, _, ataErr := solana.FindAssociatedTokenAddress(owner, inputMint)
				if ataErr != nil {
					return HandlerResult{}, ataErr
				}
				if err := balances.ValidateSufficientToken(ctx, ata, amount); err != nil {
					return HandlerResult{}, err
				}
			}

			ixs, err := router.BuildSwapInstructions(ctx, owner, inputMint, outputMint, amount, slippage)
			if err != nil {
				return HandlerResult{}, reeverr.Wrap(reeverr.KindExecution, reeverr.TagTxBuildFailure, "build swap instructions", err)
			}
			sig, err := submitter.Submit(ctx, owner, ixs)
			if err != nil {
				return HandlerResult{}, err
			}
			return HandlerResult{
				Instructions:         ixs,
				TransactionSignature: sig,
				OperationType:        "jupiter_swap",
				Completed:            true,
			}, nil
		},
	}
}
