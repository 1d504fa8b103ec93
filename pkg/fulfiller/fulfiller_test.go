package fulfiller

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/config"
	"github.com/speedrun-hq/portal-solver/pkg/intent"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/metrics"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/prover"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedBalances map[address.Address]*big.Int

func (b fixedBalances) Balance(_ context.Context, token address.Address) (*big.Int, error) {
	return b[token], nil
}

func (b fixedBalances) BalanceOf(_ context.Context, token, _ address.Address) (*big.Int, error) {
	return b[token], nil
}

var usdc = address.FromEVM(common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"))

func testConfig() *config.Config {
	return &config.Config{
		PollingInterval: time.Second,
		Claimant:        address.FromEVM(common.HexToAddress("0xc1a1")),
		WorkerCount:     1,
		CircuitBreaker: config.CircuitBreakerConfig{
			Enabled:        true,
			Threshold:      3,
			WindowDuration: time.Minute,
			ResetTimeout:   time.Hour,
		},
		MaxRetries:            3,
		RetryBackoff:          time.Second,
		FundedRetries:         1,
		FulfillMode:           "single",
		FeePermille:           5,
		RescanInterval:        time.Minute,
		ProverRefreshInterval: time.Minute,
		WatcherBlockRange:     100,
		CrowdLiquidity:        config.CrowdLiquidityConfig{Enabled: true, FeePercentage: 10000},
	}
}

func testChains() *chainSet {
	set := newChainSet()
	balances := fixedBalances{usdc: big.NewInt(1_000_000)}
	set.solvers[destination] = &intent.Solver{
		ChainID:  destination,
		VM:       chaintype.EVM,
		Targets:  map[address.Address]intent.Target{usdc: {}},
		Balances: balances,
	}
	set.pools[destination] = &intent.Pool{
		Address:  address.FromEVM(common.HexToAddress("0x9001")),
		Balances: balances,
		Fees:     staticPoolFee(10000),
	}
	set.provers[address.FromEVM(common.HexToAddress("0x1111"))] = prover.Hyperlane
	return set
}

func TestNewFulfillerWiring(t *testing.T) {
	cfg := testConfig()
	q := queue.NewMemoryQueue(&logger.EmptyLogger{}, 0)
	s := newFulfiller(cfg, repository.NewMemoryRepository(), q, testChains(), &logger.EmptyLogger{})

	require.NotNil(t, s.crowd)
	require.Contains(t, s.circuitBreakers, destination)
	assert.True(t, s.circuitBreakers[destination].IsEnabled())

	handlers := s.handlers()
	assert.Len(t, handlers, 5)
	for _, name := range []string{queue.CreateQueue, queue.ValidateQueue, queue.FeasibilityQueue, queue.FulfillQueue, queue.WithdrawalQueue} {
		assert.Contains(t, handlers, name)
	}
	assert.Same(t, s.chains.solvers[destination], s.pipeline.Solvers()[destination])
}

func TestNewFulfillerWithoutCrowdLiquidity(t *testing.T) {
	cfg := testConfig()
	cfg.CrowdLiquidity.Enabled = false
	s := newFulfiller(cfg, repository.NewMemoryRepository(), queue.NewMemoryQueue(&logger.EmptyLogger{}, 0), testChains(), &logger.EmptyLogger{})
	assert.Nil(t, s.crowd)
}

func TestEffectiveMaxGas(t *testing.T) {
	cfg := &config.Config{MaxGasPrice: big.NewInt(42)}

	assert.Equal(t, big.NewInt(7), effectiveMaxGas(cfg, config.ChainConfig{ChainID: 1, MaxGasPrice: big.NewInt(7)}))
	assert.Equal(t, "150000000000", effectiveMaxGas(cfg, config.ChainConfig{ChainID: 1}).String())
	assert.Equal(t, big.NewInt(42), effectiveMaxGas(cfg, config.ChainConfig{ChainID: 999}))
}

func TestMetricsManagerUpdate(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	for _, hash := range []common.Hash{common.HexToHash("0x0a"), common.HexToHash("0x0b")} {
		require.NoError(t, repo.Create(ctx, &models.IntentRecord{
			Hash:   hash.Hex(),
			Status: models.StatusPending,
			Intent: models.Intent{Hash: hash, DestinationChainID: destination},
		}))
	}

	mm := NewMetricsManager(repo, testChains().solvers, &logger.EmptyLogger{})
	mm.UpdateMetrics(ctx)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.PendingIntents))
	assert.Equal(t, float64(1_000_000), testutil.ToFloat64(metrics.TokenBalance.WithLabelValues("8453", usdc.Hex())))
}

func TestTrimHexPrefix(t *testing.T) {
	assert.Equal(t, "ab", trimHexPrefix("0xab"))
	assert.Equal(t, "ab", trimHexPrefix("0Xab"))
	assert.Equal(t, "ab", trimHexPrefix("ab"))
}
