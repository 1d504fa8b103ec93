package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
)

// Config holds the configuration for the solver service
type Config struct {
	PollingInterval time.Duration
	PrivateKey      string
	// Claimant receives rewards, zero means the solver account
	Claimant       address.Address
	Chains         map[uint64]ChainConfig
	Solana         *SolanaConfig
	Tron           *TronConfig
	WorkerCount    int
	MetricsPort    string
	CircuitBreaker CircuitBreakerConfig
	MaxRetries     int
	RetryBackoff   time.Duration
	MaxGasPrice    *big.Int
	LoggerConfig   LoggerConfig

	// RedisURL selects the Redis queue, empty keeps jobs in memory
	RedisURL string
	// DatabaseURL selects the Postgres repository, empty keeps records in memory
	DatabaseURL string

	FundedRetries    int
	FundedRetryDelay time.Duration
	FulfillMode      string
	NativeEnabled    bool
	FeePermille      uint64
	TransferLimit    *big.Int
	BendWallets      []address.Address
	CrowdLiquidity   CrowdLiquidityConfig

	RescanInterval        time.Duration
	ProverRefreshInterval time.Duration
	WatcherBlockRange     uint64
	WatcherConfirmations  uint64
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// CrowdLiquidityConfig holds the crowd liquidity settings
type CrowdLiquidityConfig struct {
	Enabled       bool
	FeePercentage uint64
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}
	return FromEnv()
}

// FromEnv reads and validates the configuration from the process environment
func FromEnv() (*Config, error) {
	cfg := &Config{
		PrivateKey:  os.Getenv("PRIVATE_KEY"),
		RedisURL:    os.Getenv("REDIS_URL"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	}
	var err error

	if cfg.PollingInterval, err = GetEnvPollingInterval(); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = GetEnvWorkerCount(); err != nil {
		return nil, err
	}
	if cfg.MetricsPort, err = GetEnvMetricsPort(); err != nil {
		return nil, err
	}
	if cfg.CircuitBreaker, err = GetEnvCircuitBreaker(); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = GetEnvMaxRetries(); err != nil {
		return nil, err
	}
	if cfg.RetryBackoff, err = GetEnvRetryBackoff(); err != nil {
		return nil, err
	}
	if cfg.MaxGasPrice, err = GetEnvMaxGasPrice(); err != nil {
		return nil, err
	}
	if cfg.LoggerConfig.Level, err = GetEnvLogLevel(); err != nil {
		return nil, err
	}
	if cfg.LoggerConfig.Coloring, err = GetEnvLogColoring(); err != nil {
		return nil, err
	}
	if cfg.FundedRetries, cfg.FundedRetryDelay, err = GetEnvFunding(); err != nil {
		return nil, err
	}
	if cfg.FulfillMode, err = GetEnvFulfillMode(); err != nil {
		return nil, err
	}
	if cfg.NativeEnabled, err = getEnvBool("NATIVE_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.FeePermille, cfg.TransferLimit, err = GetEnvFee(); err != nil {
		return nil, err
	}
	if cfg.BendWallets, err = GetEnvBendWallets(); err != nil {
		return nil, err
	}
	if cfg.CrowdLiquidity.Enabled, cfg.CrowdLiquidity.FeePercentage, err = GetEnvCrowdLiquidity(); err != nil {
		return nil, err
	}
	if cfg.RescanInterval, cfg.ProverRefreshInterval, err = GetEnvIntervals(); err != nil {
		return nil, err
	}
	if cfg.WatcherBlockRange, cfg.WatcherConfirmations, err = GetEnvWatcher(); err != nil {
		return nil, err
	}

	if claimant := os.Getenv("CLAIMANT"); claimant != "" {
		if cfg.Claimant, err = address.ParseHex(claimant); err != nil {
			return nil, fmt.Errorf("invalid CLAIMANT value: %w", err)
		}
	}

	// Initialize chain configurations
	if cfg.Chains, err = GetEnvChainConfigs(); err != nil {
		return nil, err
	}
	if cfg.Solana, err = GetEnvSolana(); err != nil {
		return nil, err
	}
	if cfg.Tron, err = GetEnvTron(); err != nil {
		return nil, err
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain configuration is required")
	}
	for chainID, chainConfig := range cfg.Chains {
		if chainConfig.RPCURL == "" {
			return fmt.Errorf("CHAIN_%d_RPC_URL for chain %d is required", chainID, chainID)
		}
		if chainConfig.PortalAddress == (common.Address{}) {
			return fmt.Errorf("CHAIN_%d_PORTAL_ADDRESS for chain %d is required", chainID, chainID)
		}
	}
	if cfg.CrowdLiquidity.Enabled {
		pools := 0
		for _, chainConfig := range cfg.Chains {
			if chainConfig.CrowdLiquidityPool != (common.Address{}) {
				pools++
			}
		}
		if pools == 0 {
			return fmt.Errorf("CROWD_LIQUIDITY_ENABLED requires at least one CHAIN_<ID>_CL_POOL")
		}
	}
	return nil
}
