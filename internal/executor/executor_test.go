package executor

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/require"

	"reev-core/internal/ledger"
	"reev-core/internal/session"
)

type stubForkClient struct {
	blockhash solana.Hash
}

func (s *stubForkClient) GetAccountInfo(context.Context, solana.PublicKey) (*ledger.Account, error) {
	return &ledger.Account{Owner: solana.SystemProgramID, Lamports: 1}, nil
}
func (s *stubForkClient) GetMultipleAccounts(_ context.Context, pubkeys []solana.PublicKey) ([]*ledger.Account, error) {
	out := make([]*ledger.Account, len(pubkeys))
	for i, pk := range pubkeys {
		out[i] = &ledger.Account{Pubkey: pk, Owner: solana.SystemProgramID, Lamports: 1}
	}
	return out, nil
}
func (s *stubForkClient) GetLatestBlockhash(context.Context) (solana.Hash, error) { return s.blockhash, nil }
func (s *stubForkClient) GetTokenAccountBalance(context.Context, solana.PublicKey) (uint64, uint8, error) {
	return 0, 0, nil
}
func (s *stubForkClient) SendTransaction(context.Context, *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	sig[0] = 1
	return sig, nil
}
func (s *stubForkClient) ConfirmTransaction(context.Context, solana.Signature) error { return nil }
func (s *stubForkClient) SetAccount(context.Context, ledger.Account) error           { return nil }
func (s *stubForkClient) AdvanceClock(context.Context, time.Time) error              { return nil }

type stubMainnetClient struct{}

func (s *stubMainnetClient) GetAccountInfo(context.Context, solana.PublicKey) (*ledger.Account, error) {
	return nil, nil
}
func (s *stubMainnetClient) GetMultipleAccounts(_ context.Context, pubkeys []solana.PublicKey) ([]*ledger.Account, error) {
	return make([]*ledger.Account, len(pubkeys)), nil
}
func (s *stubMainnetClient) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, nil
}
func (s *stubMainnetClient) GetTokenAccountBalance(context.Context, solana.PublicKey) (uint64, uint8, error) {
	return 0, 0, nil
}

type stubSigner struct {
	key solana.PrivateKey
}

func (s stubSigner) PublicKey() solana.PublicKey { return s.key.PublicKey() }
func (s stubSigner) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	})
	return err
}

func TestExecutor_SubmitRecordsTransactionExecutionEvent(t *testing.T) {
	payerWallet := solana.NewWallet()
	payer := payerWallet.PublicKey()
	recipient := solana.NewWallet().PublicKey()
	ix := system.NewTransferInstruction(1000, payer, recipient).Build()

	fork := &stubForkClient{}
	mainnet := &stubMainnetClient{}
	signer := stubSigner{key: payerWallet.PrivateKey}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	log := session.NewLog("sess-1", "bench-1", "claude-sonnet", now)

	exec := New(fork, mainnet, signer, log, WithNow(func() time.Time { return now }))
	sig, err := exec.Submit(context.Background(), payer, []solana.Instruction{ix})
	require.NoError(t, err)
	require.NotEmpty(t, sig)

	require.Len(t, log.Events, 1)
	require.Equal(t, session.EventTransactionExecution, log.Events[0].Kind)
	require.True(t, log.Events[0].TransactionExecution.Success)
	require.Equal(t, sig, log.Events[0].TransactionExecution.Signature)
}
