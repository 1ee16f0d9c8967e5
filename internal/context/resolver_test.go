package context

import (
	"context"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"reev-core/internal/benchmark"
	"reev-core/internal/keymap"
	"reev-core/internal/ledger"
	"reev-core/internal/walletctx"
)

type fakeReadClient struct {
	lamports uint64
}

func (f *fakeReadClient) GetAccountInfo(_ context.Context, pubkey solana.PublicKey) (*ledger.Account, error) {
	return &ledger.Account{Pubkey: pubkey, Owner: solana.SystemProgramID, Lamports: f.lamports}, nil
}

func (f *fakeReadClient) GetMultipleAccounts(_ context.Context, pubkeys []solana.PublicKey) ([]*ledger.Account, error) {
	out := make([]*ledger.Account, len(pubkeys))
	for i, pk := range pubkeys {
		out[i] = &ledger.Account{Pubkey: pk, Owner: solana.SystemProgramID, Lamports: f.lamports}
	}
	return out, nil
}

func (f *fakeReadClient) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}

func (f *fakeReadClient) GetTokenAccountBalance(context.Context, solana.PublicKey) (uint64, uint8, error) {
	return 50_000_000, 6, nil
}

func TestResolver_ResolveBindsUserWallet(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	spec := &benchmark.Spec{
		ID: "001-sol-transfer",
		InitialState: []benchmark.AccountRecord{
			{Pubkey: wallet.String(), Owner: solana.SystemProgramID.String(), Lamports: 1_000_000_000},
		},
	}
	r := New(&fakeReadClient{lamports: 1_000_000_000}, DefaultStaticPriceSource())
	resolved, err := r.Resolve(context.Background(), spec, wallet, nil)
	require.NoError(t, err)
	require.True(t, resolved.KeyMap.Has(keymap.UserWallet))
	got, err := resolved.KeyMap.Resolve(keymap.UserWallet)
	require.NoError(t, err)
	require.Equal(t, wallet, got)
	require.Equal(t, uint64(1_000_000_000), resolved.Wallet.SOLBalance)
}

func TestResolver_ResolveParsesSPLAccounts(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	usdcATA := solana.NewWallet().PublicKey()
	spec := &benchmark.Spec{
		ID: "002-spl-transfer",
		InitialState: []benchmark.AccountRecord{
			{Pubkey: wallet.String(), Owner: solana.SystemProgramID.String(), Lamports: 1_000_000_000},
			{Pubkey: usdcATA.String(), Owner: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", Lamports: 2_039_280, Data: &benchmark.SPLAccountData{
				Mint:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				Owner:  wallet.String(),
				Amount: 50_000_000,
			}},
		},
	}
	r := New(&fakeReadClient{lamports: 1_000_000_000}, DefaultStaticPriceSource())
	resolved, err := r.Resolve(context.Background(), spec, wallet, nil)
	require.NoError(t, err)
	bal := resolved.Wallet.GetTokenBalance("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.Equal(t, uint64(50_000_000), bal.Amount)
	require.Equal(t, "USDC", bal.Symbol)
	require.Equal(t, uint8(6), bal.Decimals)
}

// missingWalletReadClient reports no SOL account for the wallet, modeling a
// wallet that has not yet landed on the fork, so Resolve must flag the
// resulting context as incomplete (§4.4 discovery-mode trigger).
type missingWalletReadClient struct {
	wallet solana.PublicKey
}

func (f *missingWalletReadClient) GetAccountInfo(_ context.Context, pubkey solana.PublicKey) (*ledger.Account, error) {
	if pubkey == f.wallet {
		return nil, nil
	}
	return &ledger.Account{Pubkey: pubkey, Owner: solana.SystemProgramID}, nil
}

func (f *missingWalletReadClient) GetMultipleAccounts(context.Context, []solana.PublicKey) ([]*ledger.Account, error) {
	return nil, nil
}

func (f *missingWalletReadClient) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}

func (f *missingWalletReadClient) GetTokenAccountBalance(context.Context, solana.PublicKey) (uint64, uint8, error) {
	return 0, 0, nil
}

func TestResolver_ResolveFlagsIncompleteContextWhenTheWalletAccountIsUnobserved(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	spec := &benchmark.Spec{
		ID: "003-fresh-wallet",
		InitialState: []benchmark.AccountRecord{
			{Pubkey: wallet.String(), Owner: solana.SystemProgramID.String()},
		},
	}
	r := New(&missingWalletReadClient{wallet: wallet}, DefaultStaticPriceSource())
	resolved, err := r.Resolve(context.Background(), spec, wallet, nil)
	require.NoError(t, err)
	require.True(t, resolved.IncompleteContext)
	require.NotEmpty(t, resolved.IncompleteReasons)
}

func TestResolver_ResolveReportsCompleteContextWhenEveryAccountIsObserved(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	spec := &benchmark.Spec{
		ID: "001-sol-transfer",
		InitialState: []benchmark.AccountRecord{
			{Pubkey: wallet.String(), Owner: solana.SystemProgramID.String(), Lamports: 1_000_000_000},
		},
	}
	r := New(&fakeReadClient{lamports: 1_000_000_000}, DefaultStaticPriceSource())
	resolved, err := r.Resolve(context.Background(), spec, wallet, nil)
	require.NoError(t, err)
	require.False(t, resolved.IncompleteContext)
	require.Empty(t, resolved.IncompleteReasons)
}

func TestWalletContext_MaxSwappableSOL(t *testing.T) {
	wc := walletctx.New(solana.NewWallet().PublicKey())
	wc.SOLBalance = 2_000_000_000
	require.Equal(t, uint64(1_950_000_000), wc.MaxSwappableSOL(walletctx.GasBufferLamports))

	wc.SOLBalance = 10_000_000
	require.Equal(t, uint64(0), wc.MaxSwappableSOL(walletctx.GasBufferLamports))
}
