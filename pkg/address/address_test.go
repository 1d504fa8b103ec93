package address

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTron(t *testing.T) {
	// USDT on Tron mainnet
	a, err := ParseTron("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	require.NoError(t, err)

	evm, err := a.EVM()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa614f803b6fd780986a42c78ec9c7f77e6ded13c"), evm)

	back, err := a.Tron()
	require.NoError(t, err)
	assert.Equal(t, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", back)
}

func TestTronFromEVM(t *testing.T) {
	a, err := ParseEVM("0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7")
	require.NoError(t, err)

	tron, err := a.Tron()
	require.NoError(t, err)
	assert.Equal(t, "TPBake69ub1a7uxkaRTYiYhEJWvnugHNPa", tron)
}

func TestParseTronRejectsBadChecksum(t *testing.T) {
	_, err := ParseTron("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.False(t, IsValidBase58Check("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u"))
	assert.True(t, IsValidBase58Check("TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"))
}

func TestParseSolana(t *testing.T) {
	a, err := ParseSolana("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)
	assert.Equal(t, "0xc6fa7af3bedbad3a3d65f36aabc97431b1bbe4c2d2f6e0e47ca60203452f5d61", a.Hex())
	assert.Equal(t, "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", a.Solana())
	assert.False(t, a.IsEVMCompatible())

	_, err = a.EVM()
	assert.ErrorIs(t, err, ErrNotEVMCompatible)

	_, err = ParseSolana("abc")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestParseHex(t *testing.T) {
	short, err := ParseHex("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	require.NoError(t, err)
	long, err := ParseHex("0x000000000000000000000000833589fcd6edb6e08f4c7c32d4f71b54bda02913")
	require.NoError(t, err)
	assert.Equal(t, short, long)
	assert.True(t, short.IsEVMCompatible())

	_, err = ParseHex("0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestAddressJSON(t *testing.T) {
	a, err := ParseEVM("0xde255Aab8e56a6Ae6913Df3a9Bbb6a9f22367f4C")
	require.NoError(t, err)

	raw, err := json.Marshal(struct{ Prover Address }{a})
	require.NoError(t, err)

	var out struct{ Prover Address }
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, a, out.Prover)
}
