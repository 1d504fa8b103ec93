package config

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chains"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("PRIVATE_KEY", "0x01")
	t.Setenv("SOLVER_CHAINS", "10,8453")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.PollingInterval)
	assert.Equal(t, DefaultWorkerCount, cfg.WorkerCount)
	assert.Equal(t, DefaultMetricsPort, cfg.MetricsPort)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultRetryBackoff, cfg.RetryBackoff)
	assert.Equal(t, big.NewInt(50_000_000_000), cfg.MaxGasPrice)
	assert.Equal(t, logger.InfoLevel, cfg.LoggerConfig.Level)
	assert.True(t, cfg.LoggerConfig.Coloring)
	assert.Equal(t, "single", cfg.FulfillMode)
	assert.Equal(t, uint64(DefaultFeePermille), cfg.FeePermille)
	assert.Nil(t, cfg.TransferLimit)
	assert.False(t, cfg.CrowdLiquidity.Enabled)
	assert.True(t, cfg.Claimant.IsZero())
	assert.Nil(t, cfg.Solana)
	assert.Nil(t, cfg.Tron)

	require.Len(t, cfg.Chains, 2)
	base := cfg.Chains[8453]
	assert.Equal(t, "https://mainnet.base.org", base.RPCURL)
	assert.Equal(t, common.HexToAddress(DefaultPortalAddress), base.PortalAddress)
	assert.Equal(t, chains.DefaultTargets(8453), base.Targets)
	assert.Nil(t, base.MaxBalance)
}

func TestChainConfigOverrides(t *testing.T) {
	t.Setenv("CHAIN_8453_RPC_URL", "http://localhost:8545")
	t.Setenv("CHAIN_8453_TARGETS", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913, 0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb")
	t.Setenv("CHAIN_8453_MAX_BALANCE", "1000000")
	t.Setenv("CHAIN_8453_START_BLOCK", "42")
	t.Setenv("CHAIN_8453_CL_POOL", "0x0000000000000000000000000000000000000b01")
	t.Setenv("CHAIN_8453_FEE_PERCENTAGE", "2500")

	cfg, err := GetEnvChainConfig(8453)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Len(t, cfg.Targets, 2)
	assert.Equal(t, big.NewInt(1_000_000), cfg.MaxBalance)
	assert.Equal(t, uint64(42), cfg.StartBlock)
	assert.Equal(t, common.HexToAddress("0xb01"), cfg.CrowdLiquidityPool)
	assert.Equal(t, uint64(2500), cfg.FeePercentage)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		err  string
	}{
		{
			name: "missing private key",
			env:  map[string]string{},
			err:  "PRIVATE_KEY",
		},
		{
			name: "chain without rpc",
			env:  map[string]string{"PRIVATE_KEY": "0x01", "SOLVER_CHAINS": "999"},
			err:  "CHAIN_999_RPC_URL",
		},
		{
			name: "bad solver chain",
			env:  map[string]string{"PRIVATE_KEY": "0x01", "SOLVER_CHAINS": "base"},
			err:  "SOLVER_CHAINS",
		},
		{
			name: "bad target",
			env:  map[string]string{"PRIVATE_KEY": "0x01", "SOLVER_CHAINS": "10", "CHAIN_10_TARGETS": "0x12"},
			err:  "CHAIN_10_TARGETS",
		},
		{
			name: "bad fulfill mode",
			env:  map[string]string{"PRIVATE_KEY": "0x01", "FULFILL_MODE": "parallel"},
			err:  "FULFILL_MODE",
		},
		{
			name: "bad log level",
			env:  map[string]string{"PRIVATE_KEY": "0x01", "LOG_LEVEL": "verbose"},
			err:  "LOG_LEVEL",
		},
		{
			name: "crowd liquidity without pool",
			env:  map[string]string{"PRIVATE_KEY": "0x01", "SOLVER_CHAINS": "10", "CROWD_LIQUIDITY_ENABLED": "true"},
			err:  "CL_POOL",
		},
		{
			name: "tron without portal",
			env:  map[string]string{"PRIVATE_KEY": "0x01", "SOLVER_CHAINS": "10", "TRON_PRIVATE_KEY": "0x02"},
			err:  "TRON_PORTAL_ADDRESS",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PRIVATE_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestSolanaAndTron(t *testing.T) {
	t.Setenv("SOLANA_PRIVATE_KEY", "key")
	solana, err := GetEnvSolana()
	require.NoError(t, err)
	require.NotNil(t, solana)
	assert.Equal(t, DefaultSolanaRPCURL, solana.RPCURL)
	usdc, err := address.ParseSolana(DefaultSolanaUSDC)
	require.NoError(t, err)
	assert.Equal(t, []address.Address{usdc}, solana.Targets)
	assert.Equal(t, float64(DefaultSolanaRequestsPerSecond), solana.RequestsPerSecond)

	t.Setenv("TRON_PRIVATE_KEY", "key")
	t.Setenv("TRON_PORTAL_ADDRESS", DefaultTronUSDT)
	tron, err := GetEnvTron()
	require.NoError(t, err)
	require.NotNil(t, tron)
	assert.Equal(t, DefaultTronAPIURL, tron.APIURL)
	assert.Len(t, tron.Targets, 1)
	assert.True(t, tron.HyperProver.IsZero())
}

func TestGetEnvBendWallets(t *testing.T) {
	t.Setenv("BEND_WALLETS", "0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7,")
	wallets, err := GetEnvBendWallets()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, address.FromEVM(common.HexToAddress("0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7")), wallets[0])
}
