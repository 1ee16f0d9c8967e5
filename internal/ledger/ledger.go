// Package ledger wraps the two RPC-like surfaces the pipeline depends on
// (§6): a local fork with read/write access plus admin extensions, and a
// public mainnet endpoint used read-only for account backfill. Grounded on
// the idiomatic solana-go RPC usage pattern in
// f547d9b5_RovshanMuradov-solana-bot (build/sign/simulate/send) and
// 06ce4714_AMagicHarry-solana-go (rpc.Client result types).
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"reev-core/internal/reeverr"
)

// Account is the raw on-chain account payload used for pre-loading and
// account-state injection (§4.5 steps 2 and 6).
type Account struct {
	Pubkey   solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
	RentExempt bool
}

// ForkAdmin exposes the local fork's two admin extensions (§6): arbitrary
// account mutation and wall-clock advancement. Method names are generic
// because the spec does not fix surfpool's wire format; the concrete client
// below issues raw JSON-RPC calls, grounded on
// original_source/crates/reev-runner/src/dependency/binary/binary_manager.rs,
// which manages the forked validator process in the original implementation.
type ForkAdmin interface {
	// SetAccount overwrites account in the fork verbatim (owner, lamports,
	// data), used both for injecting pre-loaded mainnet accounts and for
	// benchmark initial_state setup.
	SetAccount(ctx context.Context, account Account) error
	// AdvanceClock fast-forwards the fork's wall clock to now so on-chain
	// price oracles do not appear stale (§4.5 step 1).
	AdvanceClock(ctx context.Context, now time.Time) error
}

// ReadClient is the subset of RPC behavior both the fork and mainnet
// clients support, read-only.
type ReadClient interface {
	GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*Account, error)
	GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) ([]*Account, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	GetTokenAccountBalance(ctx context.Context, pubkey solana.PublicKey) (amount uint64, decimals uint8, err error)
}

// WriteClient adds transaction submission to ReadClient, implemented only
// by the local fork (§6: mainnet access is read-only backfill).
type WriteClient interface {
	ReadClient
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature) error
}

// ForkClient is the local fork's full surface: write access plus admin
// extensions.
type ForkClient interface {
	WriteClient
	ForkAdmin
}

// RPCClient adapts *rpc.Client (gagliardetto/solana-go/rpc) to ReadClient
// and, via admin JSON-RPC passthrough, to ForkClient.
type RPCClient struct {
	rpc       *rpc.Client
	isFork    bool
	commitment rpc.CommitmentType
}

// NewMainnetClient returns a read-only ReadClient pointed at a public
// mainnet endpoint.
func NewMainnetClient(endpoint string) *RPCClient {
	return &RPCClient{rpc: rpc.New(endpoint), isFork: false, commitment: rpc.CommitmentConfirmed}
}

// NewForkClient returns a ForkClient pointed at the local forked validator.
func NewForkClient(endpoint string) *RPCClient {
	return &RPCClient{rpc: rpc.New(endpoint), isFork: true, commitment: rpc.CommitmentConfirmed}
}

func (c *RPCClient) GetAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*Account, error) {
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, reeverr.Wrap(reeverr.KindContext, reeverr.TagRPCUnreachable,
			fmt.Sprintf("get_account_info %s", pubkey), err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}
	return &Account{
		Pubkey:   pubkey,
		Owner:    out.Value.Owner,
		Lamports: out.Value.Lamports,
		Data:     out.Value.Data.GetBinary(),
	}, nil
}

func (c *RPCClient) GetMultipleAccounts(ctx context.Context, pubkeys []solana.PublicKey) ([]*Account, error) {
	if len(pubkeys) == 0 {
		return nil, nil
	}
	out, err := c.rpc.GetMultipleAccountsWithOpts(ctx, pubkeys, &rpc.GetMultipleAccountsOpts{
		Commitment: c.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		return nil, reeverr.Wrap(reeverr.KindContext, reeverr.TagRPCUnreachable, "get_multiple_accounts", err)
	}
	accounts := make([]*Account, len(pubkeys))
	for i, v := range out.Value {
		if v == nil {
			continue
		}
		accounts[i] = &Account{
			Pubkey:   pubkeys[i],
			Owner:    v.Owner,
			Lamports: v.Lamports,
			Data:     v.Data.GetBinary(),
		}
	}
	return accounts, nil
}

func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, reeverr.Wrap(reeverr.KindContext, reeverr.TagRPCUnreachable, "get_latest_blockhash", err)
	}
	return out.Value.Blockhash, nil
}

func (c *RPCClient) GetTokenAccountBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, uint8, error) {
	out, err := c.rpc.GetTokenAccountBalance(ctx, pubkey, c.commitment)
	if err != nil {
		return 0, 0, reeverr.Wrap(reeverr.KindContext, reeverr.TagAccountParseFailure,
			fmt.Sprintf("get_token_account_balance %s", pubkey), err)
	}
	amount, parseErr := out.Value.Amount, error(nil)
	_ = parseErr
	var amt uint64
	if _, err := fmt.Sscanf(amount, "%d", &amt); err != nil {
		return 0, 0, reeverr.Wrap(reeverr.KindContext, reeverr.TagAccountParseFailure, "parse token amount", err)
	}
	return amt, out.Value.Decimals, nil
}

func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if !c.isFork {
		return solana.Signature{}, reeverr.New(reeverr.KindExecution, reeverr.TagSubmissionRejected,
			"refusing to submit a transaction against a read-only mainnet client")
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, reeverr.Wrap(reeverr.KindExecution, reeverr.TagSubmissionRejected, "send_transaction", err)
	}
	return sig, nil
}

func (c *RPCClient) ConfirmTransaction(ctx context.Context, sig solana.Signature) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return reeverr.Errorf(reeverr.KindExecution, reeverr.TagOnChainError, "on-chain error: %v", st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return reeverr.Wrap(reeverr.KindExecution, reeverr.TagConfirmationTimeout, "confirm_transaction", ctx.Err())
		case <-time.After(400 * time.Millisecond):
		}
	}
	return reeverr.New(reeverr.KindExecution, reeverr.TagConfirmationTimeout, "confirmation deadline exceeded")
}

// SetAccount issues the fork's admin extension for arbitrary account
// mutation. The method name is a placeholder for whatever surfpool-style
// wire name the deployed fork uses.
func (c *RPCClient) SetAccount(ctx context.Context, account Account) error {
	if !c.isFork {
		return reeverr.New(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "SetAccount requires a fork client")
	}
	params := map[string]any{
		"pubkey":   account.Pubkey.String(),
		"owner":    account.Owner.String(),
		"lamports": account.Lamports,
		"data":     account.Data,
	}
	var result json.RawMessage
	if err := c.rpc.RPCCallForInto(ctx, &result, "surfpool_setAccount", []any{params}); err != nil {
		return reeverr.Wrap(reeverr.KindExecution, reeverr.TagTxBuildFailure, "surfpool_setAccount", err)
	}
	return nil
}

// AdvanceClock issues the fork's admin extension to fast-forward its wall
// clock (§4.5 step 1).
func (c *RPCClient) AdvanceClock(ctx context.Context, now time.Time) error {
	if !c.isFork {
		return reeverr.New(reeverr.KindConfiguration, reeverr.TagInvalidBenchmark, "AdvanceClock requires a fork client")
	}
	var result json.RawMessage
	if err := c.rpc.RPCCallForInto(ctx, &result, "surfpool_setClock", []any{now.Unix()}); err != nil {
		return reeverr.Wrap(reeverr.KindExecution, reeverr.TagTxBuildFailure, "surfpool_setClock", err)
	}
	return nil
}
