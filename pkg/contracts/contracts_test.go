package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferSelector(t *testing.T) {
	assert.Equal(t, "0xa9059cbb", hexutil.Encode(TransferSelector))
}

func TestDecodeTransfer(t *testing.T) {
	to := common.HexToAddress("0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7")
	data, err := PackTransfer(to, big.NewInt(70000))
	require.NoError(t, err)
	assert.Equal(t,
		"0xa9059cbb00000000000000000000000090f0c8acc1e083bcb4f487f84fc349ae8d5e28d70000000000000000000000000000000000000000000000000000000000011170",
		hexutil.Encode(data))

	gotTo, amount, err := DecodeTransfer(data)
	require.NoError(t, err)
	assert.Equal(t, to, gotTo)
	assert.Equal(t, int64(70000), amount.Int64())

	approve, err := PackApprove(to, big.NewInt(1))
	require.NoError(t, err)
	_, _, err = DecodeTransfer(approve)
	assert.ErrorIs(t, err, ErrNotTransfer)

	_, _, err = DecodeTransfer(data[:10])
	assert.ErrorIs(t, err, ErrNotTransfer)
}

func TestEncodeProofs(t *testing.T) {
	out := EncodeProofs(10, common.HexToHash("0x01"), common.HexToHash("0x02"))
	require.Len(t, out, 72)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 10}, out[:8])
	assert.Equal(t, byte(1), out[39])
	assert.Equal(t, byte(2), out[71])
}

func TestEncodeHyperlaneData(t *testing.T) {
	prover := common.BytesToHash(common.HexToAddress("0xde255Aab8e56a6Ae6913Df3a9Bbb6a9f22367f4C").Bytes())
	out, err := EncodeHyperlaneData(prover)
	require.NoError(t, err)
	// offset, prover, bytes offset, hook, bytes length
	require.Len(t, out, 5*32)
	assert.Equal(t, prover.Bytes(), out[32:64])
}

func TestPackExecuteBatch(t *testing.T) {
	executions := []Execution{
		{Target: common.HexToAddress("0x01"), CallData: []byte{0xaa}},
		{Target: common.HexToAddress("0x02"), Value: big.NewInt(5), CallData: []byte{0xbb}},
	}
	data, err := PackExecuteBatch(executions)
	require.NoError(t, err)
	assert.Equal(t, KernelParsedABI.Methods["execute"].ID, data[:4])
	assert.Equal(t, byte(0x01), data[4])
	assert.Equal(t, int64(5), TotalValue(executions).Int64())
}

func TestPortalTopics(t *testing.T) {
	assert.NotEqual(t, common.Hash{}, IntentPublishedTopic())
	assert.NotEqual(t, IntentPublishedTopic(), IntentWithdrawnTopic())
	_, ok := PortalParsedABI.Methods["fulfillAndProve"]
	assert.True(t, ok)
}
