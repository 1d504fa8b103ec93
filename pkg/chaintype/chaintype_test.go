package chaintype

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		chain    interface{}
		expected VMType
		isErr    bool
	}{
		{name: "base int", chain: 8453, expected: EVM},
		{name: "ethereum uint64", chain: uint64(1), expected: EVM},
		{name: "arbitrum string", chain: "42161", expected: EVM},
		{name: "big int", chain: big.NewInt(10), expected: EVM},
		{name: "optimism int8", chain: int8(10), expected: EVM},
		{name: "polygon int16", chain: int16(137), expected: EVM},
		{name: "ethereum uint8", chain: uint8(1), expected: EVM},
		{name: "base uint16", chain: uint16(8453), expected: EVM},
		{name: "negative int8", chain: int8(-1), isErr: true},
		{name: "largest evm id", chain: uint64(4294967295), expected: EVM},
		{name: "tron mainnet", chain: 728126428, expected: TVM},
		{name: "tron shasta", chain: uint64(2494104990), expected: TVM},
		{name: "tron nile string", chain: "3448148188", expected: TVM},
		{name: "solana mainnet id", chain: int64(1399811149), expected: SVM},
		{name: "solana devnet id", chain: uint32(1399811150), expected: SVM},
		{name: "solana testnet name", chain: "solana-testnet", expected: SVM},
		{name: "solana mainnet name mixed case", chain: "Solana-Mainnet", expected: SVM},
		{name: "zero", chain: 0, isErr: true},
		{name: "negative", chain: -1, isErr: true},
		{name: "above 2^32", chain: uint64(4294967296), isErr: true},
		{name: "garbage string", chain: "ethereum", isErr: true},
		{name: "nil big int", chain: (*big.Int)(nil), isErr: true},
		{name: "float", chain: 1.5, isErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm, err := Detect(tt.chain)
			if tt.isErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrUnknownChainType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, vm)
		})
	}
}

func TestDetectorCachesResults(t *testing.T) {
	d, err := NewDetector(8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		vm, err := d.Detect(8453)
		require.NoError(t, err)
		assert.Equal(t, EVM, vm)
	}
	vm, err := d.Detect("solana-mainnet")
	require.NoError(t, err)
	assert.Equal(t, SVM, vm)
	assert.Equal(t, 2, d.Len())

	_, err = d.Detect(0)
	assert.ErrorIs(t, err, ErrUnknownChainType)
	assert.Equal(t, 2, d.Len())
}

func TestDetectUsesSharedDetector(t *testing.T) {
	before := Shared().Len()
	vm, err := Detect(uint64(3448148188))
	require.NoError(t, err)
	assert.Equal(t, TVM, vm)

	_, ok := Shared().cache.Peek("3448148188")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, Shared().Len(), before)

	// same id through another identifier form hits the same entry
	size := Shared().Len()
	vm, err = Detect("3448148188")
	require.NoError(t, err)
	assert.Equal(t, TVM, vm)
	assert.Equal(t, size, Shared().Len())
}

func TestIsValidAddressForChain(t *testing.T) {
	tests := []struct {
		addr  string
		vm    VMType
		valid bool
	}{
		{"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", EVM, true},
		{"0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", EVM, true},
		{"833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", EVM, false},
		{"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA029", EVM, false},
		{"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", TVM, true},
		{"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u", TVM, false},
		{"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", TVM, false},
		{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", SVM, true},
		{"11111111111111111111111111111111", SVM, true},
		{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTD0O", SVM, false},
		{"short", SVM, false},
		{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", VMType("MOVE"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.vm)+"_"+tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidAddressForChain(tt.addr, tt.vm))
		})
	}
}

func TestGetAddressFormat(t *testing.T) {
	f, err := GetAddressFormat(TVM)
	require.NoError(t, err)
	assert.Equal(t, "T", f.Prefix)
	assert.Equal(t, 34, f.MinLength)

	f, err = GetAddressFormat(SVM)
	require.NoError(t, err)
	assert.Equal(t, 32, f.MinLength)
	assert.Equal(t, 44, f.MaxLength)

	_, err = GetAddressFormat(VMType("MOVE"))
	assert.ErrorIs(t, err, ErrUnknownChainType)
}

func TestParseAndFormatAddress(t *testing.T) {
	for _, tt := range []struct {
		addr string
		vm   VMType
	}{
		{"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", EVM},
		{"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", TVM},
		{"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", SVM},
	} {
		a, err := ParseAddress(tt.addr, tt.vm)
		require.NoError(t, err)
		out, err := FormatAddress(a, tt.vm)
		require.NoError(t, err)
		assert.Equal(t, tt.addr, out)
	}
}
