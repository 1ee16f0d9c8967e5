// Package executor implements C5, the Transaction Executor: it takes a
// produced instruction list and runs it against the local fork with
// mainnet-level account realism (clock align, ALT/account pre-loading,
// compile, sign, submit, confirm). Grounded on the idiomatic solana-go
// transaction build/sign/submit pattern in
// f547d9b5_RovshanMuradov-solana-bot/internal/dex/pumpfun/transactions.go.
package executor

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"reev-core/internal/ledger"
	"reev-core/internal/reeverr"
	"reev-core/internal/session"
	"reev-core/internal/telemetry"
)

// AddressLookupTable is the deserialized {key, addresses} record used to
// expand a v0 message's account set (§4.5 step 3).
type AddressLookupTable struct {
	Key       solana.PublicKey
	Addresses []solana.PublicKey
}

// Signer signs a compiled transaction with the execution's local keypair.
// Kept as an interface so tests can substitute a deterministic signer.
type Signer interface {
	Sign(tx *solana.Transaction) error
	PublicKey() solana.PublicKey
}

// WalletSigner adapts a solana.Wallet (or any type exposing the same
// shape) to Signer.
type WalletSigner struct {
	PrivateKey solana.PrivateKey
}

func (w WalletSigner) PublicKey() solana.PublicKey { return w.PrivateKey.PublicKey() }

func (w WalletSigner) Sign(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PrivateKey.PublicKey()) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// Executor implements the C5 algorithm and satisfies tools.Submitter so
// tool handlers can delegate transaction execution to it without C3
// importing this package.
type Executor struct {
	fork      ledger.ForkClient
	mainnet   ledger.ReadClient
	signer    Signer
	log       *session.Log
	logger    telemetry.Logger
	tracer    telemetry.Tracer
	now       func() time.Time
	lookupTables map[string]AddressLookupTable
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the telemetry logger.
func WithLogger(l telemetry.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithTracer sets the telemetry tracer.
func WithTracer(t telemetry.Tracer) Option { return func(e *Executor) { e.tracer = t } }

// WithNow overrides the executor's clock, for tests.
func WithNow(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

// New returns an Executor submitting against fork, backfilling missing
// accounts from mainnet, signing with signer, and appending
// TransactionExecution events to log.
func New(fork ledger.ForkClient, mainnet ledger.ReadClient, signer Signer, log *session.Log, opts ...Option) *Executor {
	e := &Executor{
		fork:    fork,
		mainnet: mainnet,
		signer:  signer,
		log:     log,
		logger:  telemetry.NoopLogger{},
		tracer:  telemetry.NoopTracer{},
		now:     time.Now,
		lookupTables: make(map[string]AddressLookupTable),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit runs the full C5 algorithm for one instruction set and returns the
// confirmed signature (§4.5). It satisfies tools.Submitter.
func (e *Executor) Submit(ctx context.Context, payer solana.PublicKey, instructions []solana.Instruction) (string, error) {
	ctx, span := e.tracer.StartSpan(ctx, "executor.Submit")
	defer span.End()

	started := e.now()
	programIDs := instructionProgramIDs(instructions)

	// Step 1: clock align.
	if err := e.fork.AdvanceClock(ctx, started); err != nil {
		return e.recordFailure(started, len(instructions), programIDs, err)
	}

	// Steps 2-3: gather and deserialize ALTs referenced by the
	// instructions. This reference implementation accepts pre-registered
	// lookup tables (RegisterLookupTable) rather than scanning instruction
	// account metas for ALT references, since the closed C3 tool set never
	// emits ALT-addressed instructions directly; swap/lend providers that
	// do so register their tables before Submit is called.
	altAccounts := e.allALTAddresses()

	// Step 4: compile v0 message.
	blockhash, err := e.fork.GetLatestBlockhash(ctx)
	if err != nil {
		return e.recordFailure(started, len(instructions), programIDs, err)
	}
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(payer))
	if err != nil {
		return e.recordFailure(started, len(instructions), programIDs, reeverr.Wrap(reeverr.KindExecution, reeverr.TagTxBuildFailure, "compile message", err))
	}

	// Step 5: discover full account set (static keys + every ALT address).
	keys := staticKeys(tx)
	keys = append(keys, altAccounts...)
	keys = dedupeKeys(keys)

	// Step 6: pre-load missing accounts from mainnet, chunked 100 at a time.
	if err := e.preloadMissing(ctx, keys); err != nil {
		return e.recordFailure(started, len(instructions), programIDs, err)
	}

	// Step 7: sign.
	if err := e.signer.Sign(tx); err != nil {
		return e.recordFailure(started, len(instructions), programIDs, reeverr.Wrap(reeverr.KindExecution, reeverr.TagTxBuildFailure, "sign transaction", err))
	}

	// Step 8: submit & confirm.
	sig, err := e.fork.SendTransaction(ctx, tx)
	if err != nil {
		return e.recordFailure(started, len(instructions), programIDs, err)
	}
	if err := e.fork.ConfirmTransaction(ctx, sig); err != nil {
		return e.recordFailure(started, len(instructions), programIDs, err)
	}

	e.record(started, len(instructions), programIDs, sig.String(), true, "")
	return sig.String(), nil
}

// RegisterLookupTable makes table available for account discovery in
// subsequent Submit calls (§4.5 step 2: "For each referenced
// address-lookup-table pubkey, read it from the fork").
func (e *Executor) RegisterLookupTable(table AddressLookupTable) {
	e.lookupTables[table.Key.String()] = table
}

func (e *Executor) allALTAddresses() []solana.PublicKey {
	var out []solana.PublicKey
	for _, t := range e.lookupTables {
		out = append(out, t.Addresses...)
	}
	return out
}

func (e *Executor) preloadMissing(ctx context.Context, keys []solana.PublicKey) error {
	const chunkSize = 100
	for start := 0; start < len(keys); start += chunkSize {
		end := start + chunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		existing, err := e.fork.GetMultipleAccounts(ctx, chunk)
		if err != nil {
			return err
		}
		var missing []solana.PublicKey
		for i, acc := range existing {
			if acc == nil {
				missing = append(missing, chunk[i])
			}
		}
		if len(missing) == 0 {
			continue
		}
		mainnetAccounts, err := e.mainnet.GetMultipleAccounts(ctx, missing)
		if err != nil {
			return reeverr.Wrap(reeverr.KindContext, reeverr.TagRPCUnreachable, "backfill from mainnet", err)
		}
		for i, acc := range mainnetAccounts {
			if acc == nil {
				// Unknown on mainnet: left absent from the fork. Whether the
				// transaction creates this account is not checked here.
				continue
			}
			if err := e.fork.SetAccount(ctx, *acc); err != nil {
				return reeverr.Wrap(reeverr.KindExecution, reeverr.TagTxBuildFailure, "inject preloaded account", err)
			}
			_ = missing[i]
		}
	}
	return nil
}

func staticKeys(tx *solana.Transaction) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)
	return keys
}

func dedupeKeys(keys []solana.PublicKey) []solana.PublicKey {
	seen := make(map[solana.PublicKey]bool, len(keys))
	out := make([]solana.PublicKey, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func (e *Executor) recordFailure(started time.Time, instructionCount int, programIDs []string, err error) (string, error) {
	e.record(started, instructionCount, programIDs, "", false, err.Error())
	return "", err
}

func (e *Executor) record(started time.Time, instructionCount int, programIDs []string, signature string, success bool, errMsg string) {
	if e.log == nil {
		return
	}
	now := e.now()
	_ = e.log.Append(session.Event{
		Kind:      session.EventTransactionExecution,
		Timestamp: now,
		TransactionExecution: &session.TransactionExecutionPayload{
			Signature:        signature,
			InstructionCount: instructionCount,
			ProgramIDs:       programIDs,
			Success:          success,
			Error:            errMsg,
			DurationMs:       now.Sub(started).Milliseconds(),
		},
	}, now)
}

func instructionProgramIDs(instructions []solana.Instruction) []string {
	ids := make([]string, len(instructions))
	for i, ix := range instructions {
		ids[i] = ix.ProgramID().String()
	}
	return ids
}
