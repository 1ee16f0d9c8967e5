// Package config loads the harness's runtime configuration from the
// process environment, grounded on the teacher's registry/cmd/registry's
// envOr/envIntOr/envDurationOr helpers (generalized into a single Load that
// returns a populated Config instead of scattering os.Getenv calls through
// main), with .env file support via github.com/joho/godotenv the way
// Jint8888-Pocket-Omega and codeready-toolchain-tarsy load local
// development configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"reev-core/internal/reeverr"
)

// Config bundles every environment-sourced setting the harness needs (§6
// "Ledger interface", §5 concurrency model, C4 model credentials).
type Config struct {
	// ForkRPCEndpoint is the local forked-validator RPC URL.
	ForkRPCEndpoint string
	// MainnetRPCEndpoint is the public, read-only mainnet RPC URL used for
	// account backfill (§6).
	MainnetRPCEndpoint string

	// MongoURI and MongoDatabase address the persistent store (§6).
	MongoURI      string
	MongoDatabase string

	// RedisAddr and RedisPassword address the execution queue's backing
	// store (§5).
	RedisAddr     string
	RedisPassword string

	// MaxConcurrentExecutions is the §5 backpressure cap.
	MaxConcurrentExecutions int

	// AnthropicAPIKey and OpenAIAPIKey are C4 model credentials; at least
	// one must be set for the harness to drive a live agent (the
	// DeterministicAgent test double needs neither).
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// KeypairPath points at the local fork's funded payer keypair file.
	KeypairPath string

	// ConsolidationTimeout is the configured §4.7 in_progress -> timeout
	// bound. consolidator.Status does not read it; it uses its own
	// consolidator.DefaultTimeout.
	ConsolidationTimeout time.Duration
}

// Load reads Config from the process environment, optionally overlaying a
// .env file at dotenvPath first (pass "" to skip; a missing file is not an
// error, mirroring godotenv.Load's common "best effort" use in local dev).
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return Config{}, reeverr.Wrap(reeverr.KindConfiguration, reeverr.TagMissingEnv,
				fmt.Sprintf("failed to load .env file %s", dotenvPath), err)
		}
	}

	cfg := Config{
		ForkRPCEndpoint:         envOr("REEV_FORK_RPC_ENDPOINT", "http://127.0.0.1:8899"),
		MainnetRPCEndpoint:      envOr("REEV_MAINNET_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
		MongoURI:                envOr("REEV_MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:           envOr("REEV_MONGO_DATABASE", "reev_core"),
		RedisAddr:               envOr("REEV_REDIS_ADDR", "localhost:6379"),
		RedisPassword:           os.Getenv("REEV_REDIS_PASSWORD"),
		MaxConcurrentExecutions: envIntOr("REEV_MAX_CONCURRENT_EXECUTIONS", 4),
		AnthropicAPIKey:         os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:            os.Getenv("OPENAI_API_KEY"),
		KeypairPath:             os.Getenv("REEV_KEYPAIR_PATH"),
		ConsolidationTimeout:    envDurationOr("REEV_CONSOLIDATION_TIMEOUT", 60*time.Second),
	}

	if cfg.KeypairPath == "" {
		return Config{}, reeverr.New(reeverr.KindConfiguration, reeverr.TagMissingEnv,
			"REEV_KEYPAIR_PATH is required")
	}
	if cfg.AnthropicAPIKey == "" && cfg.OpenAIAPIKey == "" {
		return Config{}, reeverr.New(reeverr.KindConfiguration, reeverr.TagMissingEnv,
			"at least one of ANTHROPIC_API_KEY or OPENAI_API_KEY is required")
	}
	if cfg.MaxConcurrentExecutions <= 0 {
		return Config{}, reeverr.New(reeverr.KindConfiguration, reeverr.TagMissingEnv,
			"REEV_MAX_CONCURRENT_EXECUTIONS must be positive")
	}

	return cfg, nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
