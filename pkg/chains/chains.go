// Package chains holds the static tables of the chains the solver knows by default.
package chains

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
)

// TokenType is a stablecoin symbol
type TokenType string

const (
	TokenTypeUSDC TokenType = "USDC"
	TokenTypeUSDT TokenType = "USDT"
)

// Tokenlist contains the stablecoins configured as default targets
var Tokenlist = []TokenType{TokenTypeUSDC, TokenTypeUSDT}

// ChainList contains the EVM chains a solver is configured for when
// SOLVER_CHAINS is not set
var ChainList = []uint64{
	1,     // Ethereum
	10,    // Optimism
	137,   // Polygon
	8453,  // Base
	42161, // Arbitrum
}

// chainNames maps chain IDs to their names
var chainNames = map[uint64]string{
	1:                              "ETHEREUM",
	10:                             "OPTIMISM",
	56:                             "BSC",
	137:                            "POLYGON",
	8453:                           "BASE",
	42161:                          "ARBITRUM",
	43114:                          "AVALANCHE",
	chaintype.TronMainnetChainID:   "TRON",
	chaintype.SolanaMainnetChainID: "SOLANA",
}

// stableAddresses maps chain IDs to the stablecoin addresses of the chain
var stableAddresses = map[uint64]map[TokenType]string{
	1: {
		TokenTypeUSDC: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TokenTypeUSDT: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
	},
	10: {
		TokenTypeUSDC: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		TokenTypeUSDT: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58",
	},
	137: {
		TokenTypeUSDC: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		TokenTypeUSDT: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
	},
	8453: {
		TokenTypeUSDC: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	},
	42161: {
		TokenTypeUSDC: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		TokenTypeUSDT: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9",
	},
}

// GetChainName returns the name of the chain for a given chain ID
func GetChainName(chainID uint64) string {
	return chainNames[chainID]
}

// GetTokenEthAddress returns the address of a stablecoin, zero when unknown
func GetTokenEthAddress(chainID uint64, tokenType TokenType) common.Address {
	addr, ok := stableAddresses[chainID][tokenType]
	if !ok {
		return common.Address{}
	}
	return common.HexToAddress(addr)
}

// DefaultTargets returns the known stablecoins of a chain as portal addresses
func DefaultTargets(chainID uint64) []address.Address {
	var targets []address.Address
	for _, tokenType := range Tokenlist {
		if addr := GetTokenEthAddress(chainID, tokenType); addr != (common.Address{}) {
			targets = append(targets, address.FromEVM(addr))
		}
	}
	return targets
}
