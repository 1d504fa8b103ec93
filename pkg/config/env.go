package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/speedrun-hq/portal-solver/pkg/logger"
)

const (
	// DefaultPollingInterval defines the default watcher polling interval in seconds
	DefaultPollingInterval = 5

	// DefaultWorkerCount defines the default number of workers per queue
	DefaultWorkerCount = 5

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker
	DefaultCircuitBreakerWindow = 5 * time.Minute

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker
	DefaultCircuitBreakerReset = 15 * time.Minute

	// DefaultMaxRetries defines the number of deliveries of a queue job
	DefaultMaxRetries = 3

	// DefaultRetryBackoff defines the delay before the first job retry
	DefaultRetryBackoff = 10 * time.Second

	// DefaultMaxGasPrice defines the maximum gas price for transactions
	DefaultMaxGasPrice = "50000000000" // 50 Gwei

	// DefaultFundedRetries defines the number of funding re-checks of a new intent
	DefaultFundedRetries = 5

	// DefaultFundedRetryDelay defines the delay between funding checks
	DefaultFundedRetryDelay = 2 * time.Second

	// DefaultFulfillMode proves every fulfillment in its own message
	DefaultFulfillMode = "single"

	// DefaultFeePermille is the solver fee, 5 means 0.5%
	DefaultFeePermille = 5

	// DefaultCrowdLiquidityFeePercentage is in millionths, 10000 is 1%
	DefaultCrowdLiquidityFeePercentage = 10000

	// DefaultRescanInterval defines how often INFEASABLE intents are retried
	DefaultRescanInterval = 5 * time.Minute

	// DefaultProverRefreshInterval defines how often the prover snapshot is rebuilt
	DefaultProverRefreshInterval = 10 * time.Minute

	// DefaultWatcherBlockRange caps the blocks read per log query
	DefaultWatcherBlockRange = 2000

	// DefaultLogLevel is the level used when LOG_LEVEL is unset
	DefaultLogLevel = "info"
)

func getEnvInt(key string, def int, min int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an integer", key, value)
	}
	if parsed < min {
		return 0, fmt.Errorf("%s must be greater than or equal to %d", key, min)
	}
	return parsed, nil
}

func getEnvUint(key string, def uint64) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be an unsigned integer", key, value)
	}
	return parsed, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}
	if value == "true" {
		return true, nil
	} else if value == "false" {
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", key, value)
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", key, value)
	}
	return parsed, nil
}

// getEnvBigInt returns nil when the variable and def are empty
func getEnvBigInt(key string, def string) (*big.Int, error) {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	if value == "" {
		return nil, nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid %s value: %s, must be a valid integer string", key, value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("%s must be greater than or equal to 0", key)
	}
	return parsed, nil
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// GetEnvPollingInterval returns the watcher polling interval from environment variables
func GetEnvPollingInterval() (time.Duration, error) {
	interval, err := getEnvInt("POLLING_INTERVAL", DefaultPollingInterval, 1)
	if err != nil {
		return 0, err
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvWorkerCount returns the number of workers per queue from environment variables
func GetEnvWorkerCount() (int, error) {
	return getEnvInt("WORKER_COUNT", DefaultWorkerCount, 1)
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreaker returns the circuit breaker settings from environment variables
func GetEnvCircuitBreaker() (CircuitBreakerConfig, error) {
	var cfg CircuitBreakerConfig
	var err error
	if cfg.Enabled, err = getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled); err != nil {
		return cfg, err
	}
	if cfg.Threshold, err = getEnvInt("CIRCUIT_BREAKER_THRESHOLD", DefaultCircuitBreakerThreshold, 1); err != nil {
		return cfg, err
	}
	if cfg.WindowDuration, err = getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow); err != nil {
		return cfg, err
	}
	if cfg.ResetTimeout, err = getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GetEnvMaxRetries returns the number of deliveries of a queue job from environment variables
func GetEnvMaxRetries() (int, error) {
	return getEnvInt("MAX_RETRIES", DefaultMaxRetries, 1)
}

// GetEnvRetryBackoff returns the base delay between job deliveries
func GetEnvRetryBackoff() (time.Duration, error) {
	return getEnvDuration("RETRY_BACKOFF", DefaultRetryBackoff)
}

// GetEnvMaxGasPrice returns the maximum gas price from environment variables
func GetEnvMaxGasPrice() (*big.Int, error) {
	return getEnvBigInt("MAX_GAS_PRICE", DefaultMaxGasPrice)
}

// GetEnvFunding returns the funding check retries and delay
func GetEnvFunding() (int, time.Duration, error) {
	retries, err := getEnvInt("FUNDED_RETRIES", DefaultFundedRetries, 0)
	if err != nil {
		return 0, 0, err
	}
	delay, err := getEnvDuration("FUNDED_RETRY_DELAY", DefaultFundedRetryDelay)
	if err != nil {
		return 0, 0, err
	}
	return retries, delay, nil
}

// GetEnvFulfillMode returns the hyperlane fulfill mode, single or batch
func GetEnvFulfillMode() (string, error) {
	mode := os.Getenv("FULFILL_MODE")
	if mode == "" {
		return DefaultFulfillMode, nil
	}
	if mode != "single" && mode != "batch" {
		return "", fmt.Errorf("invalid FULFILL_MODE value: %s, must be 'single' or 'batch'", mode)
	}
	return mode, nil
}

// GetEnvFee returns the solver fee in permille and the transfer limit
func GetEnvFee() (uint64, *big.Int, error) {
	permille, err := getEnvUint("FEE_PERMILLE", DefaultFeePermille)
	if err != nil {
		return 0, nil, err
	}
	limit, err := getEnvBigInt("TRANSFER_LIMIT", "")
	if err != nil {
		return 0, nil, err
	}
	return permille, limit, nil
}

// GetEnvCrowdLiquidity returns the crowd liquidity switch and default fee
func GetEnvCrowdLiquidity() (bool, uint64, error) {
	enabled, err := getEnvBool("CROWD_LIQUIDITY_ENABLED", false)
	if err != nil {
		return false, 0, err
	}
	fee, err := getEnvUint("CROWD_LIQUIDITY_FEE_PERCENTAGE", DefaultCrowdLiquidityFeePercentage)
	if err != nil {
		return false, 0, err
	}
	return enabled, fee, nil
}

// GetEnvIntervals returns the rescan and prover refresh intervals
func GetEnvIntervals() (time.Duration, time.Duration, error) {
	rescan, err := getEnvDuration("RESCAN_INTERVAL", DefaultRescanInterval)
	if err != nil {
		return 0, 0, err
	}
	refresh, err := getEnvDuration("PROVER_REFRESH_INTERVAL", DefaultProverRefreshInterval)
	if err != nil {
		return 0, 0, err
	}
	return rescan, refresh, nil
}

// GetEnvWatcher returns the log query range and confirmation depth
func GetEnvWatcher() (uint64, uint64, error) {
	blockRange, err := getEnvUint("WATCHER_BLOCK_RANGE", DefaultWatcherBlockRange)
	if err != nil {
		return 0, 0, err
	}
	confirmations, err := getEnvUint("WATCHER_CONFIRMATIONS", 0)
	if err != nil {
		return 0, 0, err
	}
	return blockRange, confirmations, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = DefaultLogLevel
	}
	switch level {
	case "debug", "info", "notice", "error":
		return logger.ParseLevel(level), nil
	}
	return logger.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
}

// GetEnvLogColoring returns whether log output is colored
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", true)
}
