package chains

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetChainName(t *testing.T) {
	assert.Equal(t, "BASE", GetChainName(8453))
	assert.Equal(t, "SOLANA", GetChainName(chaintype.SolanaMainnetChainID))
	assert.Equal(t, "", GetChainName(999))
}

func TestDefaultTargets(t *testing.T) {
	base := DefaultTargets(8453)
	require.Len(t, base, 1)
	assert.Equal(t, address.FromEVM(common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")), base[0])

	assert.Len(t, DefaultTargets(10), 2)
	assert.Empty(t, DefaultTargets(999))
	assert.Equal(t, common.Address{}, GetTokenEthAddress(8453, TokenTypeUSDT))
}

func TestChainListIsEVM(t *testing.T) {
	for _, chainID := range ChainList {
		vm, err := chaintype.Detect(chainID)
		require.NoError(t, err)
		assert.Equal(t, chaintype.EVM, vm, "chain %d", chainID)
	}
}
