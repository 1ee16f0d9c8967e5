package tools

import (
	"context"
	"fmt"

	"reev-core/internal/keymap"
	"reev-core/internal/reeverr"
)

// GetAccountBalanceSpec builds the discovery-only get_account_balance tool
// (§4.3). Its description discourages use when context already supplies
// the needed balance. This tool never submits a transaction: its Handle
// always returns an error, so Registry.Invoke rejects it, and balance reads
// run outside Invoke's no-signature protocol check through
// Registry.InvokeBalanceQuery instead.
func GetAccountBalanceSpec() Spec {
	return Spec{
		Name: "get_account_balance",
		Description: "Query the live SOL balance, in lamports, of an account. The account-context block already " +
			"reports every balance relevant to this prompt; call this tool only in discovery mode when context was reported incomplete.",
		Required: []string{"account"},
		Validate: func(km *keymap.KeyMap, args Args) error {
			var issues []FieldIssue
			validatePubkeyField(km, "account", args.String("account"), &issues)
			return issuesToError(issues)
		},
		Handle: func(ctx context.Context, km *keymap.KeyMap, args Args, balances BalanceValidator, submitter Submitter) (HandlerResult, error) {
			return HandlerResult{}, reeverr.New(reeverr.KindValidation, reeverr.TagInvalidPubkey,
				"get_account_balance must be invoked via Registry.InvokeBalanceQuery, not Registry.Invoke")
		},
	}
}

// InvokeBalanceQuery runs the get_account_balance tool's real, live-fork
// read of the account's lamport balance; SPL token amounts are not read
// (§4.3, §9 open question: simulation paths, if retained, MUST
// NOT produce transaction_signature values). It is a separate entry point
// from Invoke because this tool is the one closed-set member that never
// submits a transaction, so it cannot satisfy Invoke's no-signature
// protocol-violation check.
func (r *Registry) InvokeBalanceQuery(ctx context.Context, km *keymap.KeyMap, args Args, balances BalanceValidator) (string, error) {
	spec, ok := r.specs["get_account_balance"]
	if !ok {
		return "", reeverr.New(reeverr.KindValidation, reeverr.TagInvalidPubkey, "get_account_balance is not registered")
	}
	if spec.Validate != nil {
		if err := spec.Validate(km, args); err != nil {
			return "", err
		}
	}
	account, err := resolvePubkeyArg(km, args.String("account"))
	if err != nil {
		return "", err
	}
	balance, err := balances.SOLBalance(ctx, account)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d lamports", balance), nil
}
