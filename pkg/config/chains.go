package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chains"
)

// DefaultPortalAddress is the Portal deployment shared by the EVM chains
const DefaultPortalAddress = "0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7"

// default public RPC endpoints
var defaultRPCURLs = map[uint64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	137:   "https://polygon-rpc.com",
	8453:  "https://mainnet.base.org",
	42161: "https://arb1.arbitrum.io/rpc",
}

const (
	// DefaultSolanaRPCURL is the public Solana mainnet endpoint
	DefaultSolanaRPCURL = "https://api.mainnet-beta.solana.com"
	// DefaultSolanaUSDC is the USDC mint on Solana
	DefaultSolanaUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	// DefaultSolanaRequestsPerSecond throttles the Solana RPC client
	DefaultSolanaRequestsPerSecond = 10

	// DefaultTronAPIURL is the TronGrid endpoint
	DefaultTronAPIURL = "https://api.trongrid.io"
	// DefaultTronUSDT is the USDT contract on Tron
	DefaultTronUSDT = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

// ChainConfig holds the configuration for a specific EVM chain
type ChainConfig struct {
	ChainID       uint64
	RPCURL        string
	PortalAddress common.Address
	// KernelAddress is the smart account the solver executes through, zero for an EOA
	KernelAddress common.Address
	HyperProver   common.Address
	StorageProver common.Address
	Targets       []address.Address
	// MaxBalance caps the solver balance of every target, nil disables the cap
	MaxBalance *big.Int
	// NativeMax caps the native balance, nil disables the cap
	NativeMax   *big.Int
	StartBlock  uint64
	MaxGasPrice *big.Int
	// CrowdLiquidityPool is the pool of the chain, zero when the chain has none
	CrowdLiquidityPool common.Address
	// FeePercentage overrides the crowd liquidity fee on this chain, 0 keeps the default
	FeePercentage uint64
}

// SolanaConfig holds the Solana solver settings
type SolanaConfig struct {
	PrivateKey        string
	RPCURL            string
	PortalProgram     string
	Targets           []address.Address
	RequestsPerSecond float64
}

// TronConfig holds the Tron solver settings
type TronConfig struct {
	PrivateKey    string
	APIURL        string
	APIKey        string
	PortalAddress address.Address
	HyperProver   address.Address
	Targets       []address.Address
}

func chainEnv(chainID uint64, key string) string {
	return fmt.Sprintf("CHAIN_%d_%s", chainID, key)
}

func getEnvEVMAddress(key string, def string) (common.Address, error) {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	if value == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s value: %s, must be a hex address", key, value)
	}
	return common.HexToAddress(value), nil
}

// parseAddresses parses every entry of a list with parse
func parseAddresses(key string, values []string, parse func(string) (address.Address, error)) ([]address.Address, error) {
	out := make([]address.Address, 0, len(values))
	for _, v := range values {
		addr, err := parse(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %s: %w", key, v, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// GetEnvSolverChains returns the EVM chains to solve on, SOLVER_CHAINS or the default list
func GetEnvSolverChains() ([]uint64, error) {
	values := getEnvList("SOLVER_CHAINS")
	if len(values) == 0 {
		return chains.ChainList, nil
	}
	ids := make([]uint64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SOLVER_CHAINS entry: %s, must be a chain id", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetEnvChainConfig reads the CHAIN_<ID>_* variables of one EVM chain
func GetEnvChainConfig(chainID uint64) (ChainConfig, error) {
	cfg := ChainConfig{ChainID: chainID}
	var err error

	cfg.RPCURL = os.Getenv(chainEnv(chainID, "RPC_URL"))
	if cfg.RPCURL == "" {
		cfg.RPCURL = defaultRPCURLs[chainID]
	}
	if cfg.PortalAddress, err = getEnvEVMAddress(chainEnv(chainID, "PORTAL_ADDRESS"), DefaultPortalAddress); err != nil {
		return cfg, err
	}
	if cfg.KernelAddress, err = getEnvEVMAddress(chainEnv(chainID, "KERNEL_ADDRESS"), ""); err != nil {
		return cfg, err
	}
	if cfg.HyperProver, err = getEnvEVMAddress(chainEnv(chainID, "HYPER_PROVER"), ""); err != nil {
		return cfg, err
	}
	if cfg.StorageProver, err = getEnvEVMAddress(chainEnv(chainID, "STORAGE_PROVER"), ""); err != nil {
		return cfg, err
	}
	if cfg.CrowdLiquidityPool, err = getEnvEVMAddress(chainEnv(chainID, "CL_POOL"), ""); err != nil {
		return cfg, err
	}

	targetsKey := chainEnv(chainID, "TARGETS")
	if values := getEnvList(targetsKey); len(values) > 0 {
		if cfg.Targets, err = parseAddresses(targetsKey, values, address.ParseEVM); err != nil {
			return cfg, err
		}
	} else {
		cfg.Targets = chains.DefaultTargets(chainID)
	}

	if cfg.MaxBalance, err = getEnvBigInt(chainEnv(chainID, "MAX_BALANCE"), ""); err != nil {
		return cfg, err
	}
	if cfg.NativeMax, err = getEnvBigInt(chainEnv(chainID, "NATIVE_MAX"), ""); err != nil {
		return cfg, err
	}
	if cfg.MaxGasPrice, err = getEnvBigInt(chainEnv(chainID, "MAX_GAS_PRICE"), ""); err != nil {
		return cfg, err
	}
	if cfg.StartBlock, err = getEnvUint(chainEnv(chainID, "START_BLOCK"), 0); err != nil {
		return cfg, err
	}
	if cfg.FeePercentage, err = getEnvUint(chainEnv(chainID, "FEE_PERCENTAGE"), 0); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// GetEnvChainConfigs reads the configuration of every solver chain
func GetEnvChainConfigs() (map[uint64]ChainConfig, error) {
	ids, err := GetEnvSolverChains()
	if err != nil {
		return nil, err
	}
	configs := make(map[uint64]ChainConfig, len(ids))
	for _, id := range ids {
		cfg, err := GetEnvChainConfig(id)
		if err != nil {
			return nil, err
		}
		configs[id] = cfg
	}
	return configs, nil
}

// GetEnvSolana returns the Solana settings, nil when SOLANA_PRIVATE_KEY is unset
func GetEnvSolana() (*SolanaConfig, error) {
	key := os.Getenv("SOLANA_PRIVATE_KEY")
	if key == "" {
		return nil, nil
	}
	cfg := &SolanaConfig{
		PrivateKey:    key,
		RPCURL:        os.Getenv("SOLANA_RPC_URL"),
		PortalProgram: os.Getenv("SOLANA_PORTAL_PROGRAM"),
	}
	if cfg.RPCURL == "" {
		cfg.RPCURL = DefaultSolanaRPCURL
	}

	targets := getEnvList("SOLANA_TARGETS")
	if len(targets) == 0 {
		targets = []string{DefaultSolanaUSDC}
	}
	var err error
	if cfg.Targets, err = parseAddresses("SOLANA_TARGETS", targets, address.ParseSolana); err != nil {
		return nil, err
	}

	rps, err := getEnvInt("SOLANA_REQUESTS_PER_SECOND", DefaultSolanaRequestsPerSecond, 1)
	if err != nil {
		return nil, err
	}
	cfg.RequestsPerSecond = float64(rps)
	return cfg, nil
}

// GetEnvTron returns the Tron settings, nil when TRON_PRIVATE_KEY is unset
func GetEnvTron() (*TronConfig, error) {
	key := os.Getenv("TRON_PRIVATE_KEY")
	if key == "" {
		return nil, nil
	}
	cfg := &TronConfig{
		PrivateKey: key,
		APIURL:     os.Getenv("TRON_API_URL"),
		APIKey:     os.Getenv("TRON_API_KEY"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultTronAPIURL
	}

	portal := os.Getenv("TRON_PORTAL_ADDRESS")
	if portal == "" {
		return nil, fmt.Errorf("TRON_PORTAL_ADDRESS is required when TRON_PRIVATE_KEY is set")
	}
	var err error
	if cfg.PortalAddress, err = address.ParseTron(portal); err != nil {
		return nil, fmt.Errorf("invalid TRON_PORTAL_ADDRESS value: %w", err)
	}
	if prover := os.Getenv("TRON_HYPER_PROVER"); prover != "" {
		if cfg.HyperProver, err = address.ParseTron(prover); err != nil {
			return nil, fmt.Errorf("invalid TRON_HYPER_PROVER value: %w", err)
		}
	}

	targets := getEnvList("TRON_TARGETS")
	if len(targets) == 0 {
		targets = []string{DefaultTronUSDT}
	}
	if cfg.Targets, err = parseAddresses("TRON_TARGETS", targets, address.ParseTron); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetEnvBendWallets returns the creator allow-list, empty disables the gate
func GetEnvBendWallets() ([]address.Address, error) {
	return parseAddresses("BEND_WALLETS", getEnvList("BEND_WALLETS"), address.ParseEVM)
}
