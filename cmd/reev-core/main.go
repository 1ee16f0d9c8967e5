// Command reev-core runs a single benchmark execution end to end against a
// local forked Solana validator: it resolves on-chain context (C1), plans
// or loads a flow (C2), drives an agent through each step's tool-call
// conversation (C4) against the closed tool registry (C3), executes any
// produced instructions on the fork (C5), scores the result against the
// benchmark's ground truth (C6), and consolidates per-step session logs
// into one persisted record (C7). Grounded on the teacher's
// registry/cmd/registry/main.go shape: a run() returning error, configuration
// loaded up front, resources closed via defer.
//
// # Configuration
//
// Environment variables (see internal/config):
//
//	REEV_FORK_RPC_ENDPOINT          - local fork RPC URL (default: http://127.0.0.1:8899)
//	REEV_MAINNET_RPC_ENDPOINT       - mainnet read-only RPC URL
//	REEV_MONGO_URI, REEV_MONGO_DATABASE
//	REEV_REDIS_ADDR, REEV_REDIS_PASSWORD
//	REEV_MAX_CONCURRENT_EXECUTIONS  - §5 backpressure cap (default: 4)
//	REEV_KEYPAIR_PATH               - funded local payer keypair (required)
//	ANTHROPIC_API_KEY / OPENAI_API_KEY - at least one required
//	REEV_CONSOLIDATION_TIMEOUT      - loaded into Config (default: 60s); the consolidator's
//	                                  status check uses its fixed DefaultTimeout instead
//
// # Example
//
//	REEV_KEYPAIR_PATH=./payer.json ANTHROPIC_API_KEY=sk-... \
//	  reev-core -benchmark ./benchmarks/swap_sol_usdc.yaml -wallet <pubkey>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reev-core/internal/agentdriver"
	"reev-core/internal/agentdriver/anthropicmodel"
	"reev-core/internal/agentdriver/openaimodel"
	"reev-core/internal/benchmark"
	"reev-core/internal/config"
	"reev-core/internal/consolidator"
	rcontext "reev-core/internal/context"
	"reev-core/internal/executor"
	"reev-core/internal/execqueue"
	"reev-core/internal/flow"
	"reev-core/internal/keymap"
	"reev-core/internal/ledger"
	"reev-core/internal/planner"
	"reev-core/internal/scorer"
	"reev-core/internal/session"
	"reev-core/internal/storage/mongo"
	"reev-core/internal/tools"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	benchmarkPath := flag.String("benchmark", "", "path to a benchmark YAML file (required)")
	walletArg := flag.String("wallet", "", "wallet pubkey under test (defaults to the payer keypair's own pubkey)")
	dotenvPath := flag.String("dotenv", "", "optional .env file to load before reading the environment")
	agentKind := flag.String("agent", "", "model backend: anthropic, openai, or deterministic (default: inferred from configured API keys)")
	flag.Parse()

	if *benchmarkPath == "" {
		return fmt.Errorf("-benchmark is required")
	}

	cfg, err := config.Load(*dotenvPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	payer, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
	if err != nil {
		return fmt.Errorf("load keypair %s: %w", cfg.KeypairPath, err)
	}

	wallet := payer.PublicKey()
	if *walletArg != "" {
		wallet, err = solana.PublicKeyFromBase58(*walletArg)
		if err != nil {
			return fmt.Errorf("parse -wallet: %w", err)
		}
	}

	raw, err := os.ReadFile(*benchmarkPath)
	if err != nil {
		return fmt.Errorf("read benchmark file: %w", err)
	}
	spec, err := benchmark.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse benchmark: %w", err)
	}

	ctx := context.Background()

	forkClient := ledger.NewForkClient(cfg.ForkRPCEndpoint)
	mainnetClient := ledger.NewMainnetClient(cfg.MainnetRPCEndpoint)

	mongoClient, err := mongo.Connect(ctx, mongo.Options{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer func() {
		if cerr := mongoClient.Close(ctx); cerr != nil {
			log.Printf("close mongo: %v", cerr)
		}
	}()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer func() {
		if cerr := rdb.Close(); cerr != nil {
			log.Printf("close redis: %v", cerr)
		}
	}()
	queue, err := execqueue.NewRedis(rdb, cfg.MaxConcurrentExecutions, "reev-core")
	if err != nil {
		return fmt.Errorf("create execution queue: %w", err)
	}

	benchmarkStore := mongo.NewBenchmarkStore(mongoClient)
	sessionStore := mongo.NewSessionStore(mongoClient)
	consolidatedStore := mongo.NewConsolidatedStore(mongoClient)

	fingerprint := benchmark.Fingerprint(spec.ID, spec.Prompt)
	if err := benchmarkStore.Put(ctx, fingerprint, string(raw)); err != nil {
		return fmt.Errorf("persist benchmark: %w", err)
	}

	executionID := uuid.NewString()

	if err := queue.TryAcquire(ctx, executionID); err != nil {
		return fmt.Errorf("acquire execution slot: %w", err)
	}
	defer func() {
		if rerr := queue.Release(ctx, executionID); rerr != nil {
			log.Printf("release execution slot: %v", rerr)
		}
	}()

	acquired, err := queue.AcquireFork(ctx, cfg.ForkRPCEndpoint, executionID, 5*time.Minute)
	if err != nil {
		return fmt.Errorf("acquire fork lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("fork %s is currently held by another execution", cfg.ForkRPCEndpoint)
	}
	defer func() {
		if rerr := queue.ReleaseFork(ctx, cfg.ForkRPCEndpoint, executionID); rerr != nil {
			log.Printf("release fork lock: %v", rerr)
		}
	}()

	resolver := rcontext.New(forkClient, nil)
	resolved, err := resolver.Resolve(ctx, spec, wallet, nil)
	if err != nil {
		return fmt.Errorf("resolve context: %w", err)
	}

	f, err := resolveFlow(spec, resolved)
	if err != nil {
		return fmt.Errorf("build flow: %w", err)
	}
	if err := f.Validate(); err != nil {
		return fmt.Errorf("invalid flow: %w", err)
	}

	registry := tools.DefaultRegistry(unimplementedSwapRouter{}, unimplementedLendProvider{})
	balances := tools.NewLiveBalanceValidator(forkClient)

	client, agentType, err := selectModelClient(cfg, *agentKind)
	if err != nil {
		return fmt.Errorf("select model client: %w", err)
	}
	limiter := agentdriver.NewAdaptiveRateLimiter(60000, 120000)
	driver := agentdriver.New(limiter.Wrap(client), registry)

	baseline := captureBaseline(ctx, forkClient, f.GroundTruth, resolved.KeyMap)

	var (
		logs  []*session.Log
		steps []consolidator.StepSession
	)
	for _, step := range f.Steps {
		sessionID := fmt.Sprintf("%s-step-%d", executionID, step.StepID)
		stepLog := session.NewLog(sessionID, spec.ID, agentType, time.Now())

		exec := executor.New(forkClient, mainnetClient, executor.WalletSigner{PrivateKey: payer}, stepLog)

		params := agentdriver.RunParams{
			Step:              step,
			RefinedPrompt:     step.Prompt,
			WalletCtx:         resolved.Wallet,
			KeyMap:            resolved.KeyMap,
			Balances:          balances,
			Submitter:         exec,
			ExpectedToolCalls: f.GroundTruth.ExpectedToolCalls,
			DiscoveryMode:     resolved.IncompleteContext,
		}

		var altParams *agentdriver.RunParams
		if step.Recovery != nil && step.Recovery.Kind == flow.RecoveryAlternativeFlow {
			if altStep, ok := lookupAlternativeStep(f, step.Recovery.AlternativeFlowID); ok {
				alt := params
				alt.Step = altStep
				alt.RefinedPrompt = altStep.Prompt
				altParams = &alt
			}
		}

		result, runErr := driver.RunStep(ctx, stepLog, params, altParams)

		succeeded := runErr == nil && result.Success
		finalStatus := session.StatusSucceeded
		if !succeeded {
			finalStatus = session.StatusFailed
		}
		sealedAt := time.Now()
		if sealErr := stepLog.Seal(sealedAt, session.FinalResult{
			Success:     succeeded,
			Status:      finalStatus,
			TotalTimeMs: sealedAt.Sub(stepLog.StartTime).Milliseconds(),
		}); sealErr != nil {
			return fmt.Errorf("seal step %d log: %w", step.StepID, sealErr)
		}

		if err := sessionStore.WriteSealed(ctx, stepLog, executionID, fingerprint); err != nil {
			return fmt.Errorf("persist step %d session: %w", step.StepID, err)
		}

		logs = append(logs, stepLog)
		steps = append(steps, consolidator.StepSession{StepIndex: step.StepID, Log: stepLog})

		resolved, err = resolver.RefreshAfterStep(ctx, resolved, nil, nil)
		if err != nil {
			return fmt.Errorf("refresh context after step %d: %w", step.StepID, err)
		}

		if runErr != nil && step.Critical {
			break
		}
	}

	sc := scorer.New(forkClient)
	scoreResult, err := sc.Score(ctx, f.GroundTruth, logs, resolved.KeyMap, baseline)
	if err != nil {
		return fmt.Errorf("score execution: %w", err)
	}

	cons := consolidator.New(consolidatedStore, uuid.NewString, time.Now)
	consolidated, err := cons.Consolidate(ctx, executionID, steps)
	if err != nil {
		return fmt.Errorf("consolidate execution: %w", err)
	}

	fmt.Printf("execution_id=%s overall_score=%.3f succeeded=%v consolidated_session_id=%s\n",
		executionID, scoreResult.Overall, scoreResult.Succeeded, consolidated.ConsolidatedSessionID)

	return nil
}

// resolveFlow prefers a benchmark-authored fixed flow (Spec.ToFlow); when a
// benchmark instead ships only a bare prompt, C2's Planner synthesizes one
// from the resolved wallet context. A bare-prompt benchmark may still
// declare an explicit ground_truth block (e.g. S3's insufficient-funds
// scenario, which must score 0.0 rather than vacuously pass); when it does,
// that declared ground truth overlays the planner's synthesized one the same
// way ToFlow applies it to an authored flow, so a benchmark author's
// assertions always win over what the planner inferred.
func resolveFlow(spec *benchmark.Spec, resolved *rcontext.Resolved) (*flow.Flow, error) {
	if len(spec.Flow) > 0 {
		return spec.ToFlow()
	}
	p := planner.New(nil)
	f, err := p.Plan(spec.ID, spec.Prompt, resolved.Wallet)
	if err != nil {
		return nil, err
	}
	if spec.HasExplicitGroundTruth() {
		f.GroundTruth = spec.ToGroundTruth()
	}
	return f, nil
}

// lookupAlternativeStep resolves a RecoveryStrategy's AlternativeFlowID
// (a "step_N" reference, §6's depends_on convention) against f's step pool.
func lookupAlternativeStep(f *flow.Flow, ref string) (flow.Step, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(ref, "step_"))
	if err != nil {
		return flow.Step{}, false
	}
	for _, s := range f.Steps {
		if s.StepID == n {
			return s, true
		}
	}
	return flow.Step{}, false
}

// selectModelClient picks a Client per the -agent flag, falling back to
// whichever of cfg's model credentials is configured.
func selectModelClient(cfg config.Config, requested string) (agentdriver.Client, string, error) {
	switch requested {
	case "anthropic":
		c, err := anthropicmodel.NewFromAPIKey(cfg.AnthropicAPIKey, "claude-sonnet-4-5", 2048)
		return c, "anthropic", err
	case "openai":
		c, err := openaimodel.NewFromAPIKey(cfg.OpenAIAPIKey, "gpt-4o")
		return c, "openai", err
	case "deterministic":
		return agentdriver.NewDeterministicAgent(nil), "deterministic", nil
	}

	if cfg.AnthropicAPIKey != "" {
		c, err := anthropicmodel.NewFromAPIKey(cfg.AnthropicAPIKey, "claude-sonnet-4-5", 2048)
		return c, "anthropic", err
	}
	c, err := openaimodel.NewFromAPIKey(cfg.OpenAIAPIKey, "gpt-4o")
	return c, "openai", err
}

// captureBaseline reads pre-execution balances for every pubkey referenced
// by a *_change assertion, so the Scorer can compute deltas (§4.6).
func captureBaseline(ctx context.Context, read ledger.ReadClient, gt flow.GroundTruth, km *keymap.KeyMap) scorer.Baseline {
	baseline := scorer.Baseline{}
	for _, a := range gt.FinalStateAssertions {
		if a.Kind != flow.AssertSolBalanceChange && a.Kind != flow.AssertTokenAccountBalanceChange {
			continue
		}
		pubkey, err := solana.PublicKeyFromBase58(a.Pubkey)
		if err != nil {
			if pubkey, err = km.Resolve(keymap.Placeholder(a.Pubkey)); err != nil {
				continue
			}
		}
		if a.Kind == flow.AssertTokenAccountBalanceChange {
			if amount, _, err := read.GetTokenAccountBalance(ctx, pubkey); err == nil {
				baseline[a.Pubkey] = int64(amount)
			}
			continue
		}
		acct, err := read.GetAccountInfo(ctx, pubkey)
		if err != nil || acct == nil {
			continue
		}
		baseline[a.Pubkey] = int64(acct.Lamports)
	}
	return baseline
}

// unimplementedSwapRouter and unimplementedLendProvider stand in for the
// external Jupiter/lending-protocol routing integrations, which are out of
// scope for this harness (§1 Non-goals: "concrete on-chain program
// integrations beyond the fixed eight-tool registry's abstract
// contracts"). A deployment wires a real SwapRouter/LendProvider here.
type unimplementedSwapRouter struct{}

func (unimplementedSwapRouter) BuildSwapInstructions(context.Context, solana.PublicKey, solana.PublicKey, solana.PublicKey, uint64, uint64) ([]solana.Instruction, error) {
	return nil, fmt.Errorf("no SwapRouter is configured for this deployment")
}

type unimplementedLendProvider struct{}

func (unimplementedLendProvider) BuildLendInstructions(context.Context, tools.LendOperation, solana.PublicKey, solana.PublicKey, uint64) ([]solana.Instruction, error) {
	return nil, fmt.Errorf("no LendProvider is configured for this deployment")
}
