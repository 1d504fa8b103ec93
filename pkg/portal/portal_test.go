package portal

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	goldenRouteHash  = "0xba9ba7c5d705007edc8637cf963eff8bb54f1bfa15d066ed9d6cab6a989420e2"
	goldenRewardHash = "0x3a3c2a81d2c99aa187ffd78dc3801e7d4c09b9a2dd6e89a16c6d5d5c2ed9c2a6"
	goldenIntentHash = "0x3dfc026bb437333020c091d1cd3956dcd485914989e1933d9d2ce69c0c60b82f"
	// transfer(0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7, 70000)
	goldenCallData = "0xa9059cbb00000000000000000000000090f0c8acc1e083bcb4f487f84fc349ae8d5e28d70000000000000000000000000000000000000000000000000000000000011170"
)

func mustEVM(t *testing.T, s string) address.Address {
	t.Helper()
	a, err := address.ParseEVM(s)
	require.NoError(t, err)
	return a
}

func goldenIntent(t *testing.T) *models.Intent {
	t.Helper()
	usdcBase := mustEVM(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	creator := mustEVM(t, "0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7")
	return &models.Intent{
		SourceChainID:      10,
		DestinationChainID: 8453,
		Route: models.Route{
			Salt:         common.HexToHash("0xe00330d78c883f2c711f01b5c5ba5ed03a5452c7e6c3146607a6f18e3404f1e4"),
			Deadline:     1756385182,
			Portal:       creator,
			NativeAmount: big.NewInt(0),
			Tokens:       []models.TokenAmount{{Token: usdcBase, Amount: big.NewInt(70000)}},
			Calls: []models.Call{{
				Target: usdcBase,
				Data:   hexutil.MustDecode(goldenCallData),
				Value:  big.NewInt(0),
			}},
		},
		Reward: models.Reward{
			Deadline:     1756385182,
			Creator:      creator,
			Prover:       mustEVM(t, "0xde255Aab8e56a6Ae6913Df3a9Bbb6a9f22367f4C"),
			NativeAmount: big.NewInt(0),
			Tokens: []models.TokenAmount{{
				Token:  mustEVM(t, "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"),
				Amount: big.NewInt(100000),
			}},
		},
	}
}

func assertSameJSON(t *testing.T, expected, actual interface{}) {
	t.Helper()
	e, err := json.Marshal(expected)
	require.NoError(t, err)
	a, err := json.Marshal(actual)
	require.NoError(t, err)
	assert.JSONEq(t, string(e), string(a))
}

func TestGoldenVector(t *testing.T) {
	intent := goldenIntent(t)

	routeBytes, err := Encode(intent.Route, chaintype.EVM)
	require.NoError(t, err)
	assert.Len(t, routeBytes, 608)

	rewardBytes, err := Encode(&intent.Reward, chaintype.EVM)
	require.NoError(t, err)
	assert.Len(t, rewardBytes, 288)

	hashes, err := GetIntentHash(intent)
	require.NoError(t, err)
	assert.Equal(t, goldenRouteHash, hashes.RouteHash.Hex())
	assert.Equal(t, goldenRewardHash, hashes.RewardHash.Hex())
	assert.Equal(t, goldenIntentHash, hashes.IntentHash.Hex())

	fromParts := GetIntentHashFromParts(8453, hashes.RouteHash, hashes.RewardHash)
	assert.Equal(t, hashes, fromParts)
}

func TestHashDeterminism(t *testing.T) {
	intent := goldenIntent(t)
	first, err := ComputeRouteHash(intent.Route, intent.DestinationChainID)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ComputeRouteHash(goldenIntent(t).Route, 8453)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	reward1, err := ComputeRewardHash(intent.Reward, 10)
	require.NoError(t, err)
	reward2, err := ComputeRewardHash(intent.Reward, 10)
	require.NoError(t, err)
	assert.Equal(t, reward1, reward2)
}

func TestHashesClassifyThroughSharedDetector(t *testing.T) {
	intent := goldenIntent(t)
	_, err := ComputeRouteHash(intent.Route, chaintype.TronShastaChainID)
	require.NoError(t, err)
	assert.True(t, chaintype.Shared().Contains(chaintype.TronShastaChainID))

	_, err = ComputeRewardHash(intent.Reward, 10)
	require.NoError(t, err)
	assert.True(t, chaintype.Shared().Contains(10))
}

func TestTronSharesEVMLayout(t *testing.T) {
	intent := goldenIntent(t)
	evmHash, err := ComputeRouteHash(intent.Route, 8453)
	require.NoError(t, err)
	tronHash, err := ComputeRouteHash(intent.Route, chaintype.TronMainnetChainID)
	require.NoError(t, err)
	assert.Equal(t, evmHash, tronHash)
}

func TestRoundTrip(t *testing.T) {
	for _, vm := range []chaintype.VMType{chaintype.EVM, chaintype.TVM, chaintype.SVM} {
		t.Run(string(vm), func(t *testing.T) {
			intent := goldenIntent(t)
			intent.Route.NativeAmount = big.NewInt(5)
			intent.Reward.NativeAmount = big.NewInt(7)

			routeBytes, err := Encode(intent.Route, vm)
			require.NoError(t, err)
			route, err := DecodeRoute(routeBytes, vm)
			require.NoError(t, err)
			assertSameJSON(t, intent.Route, route)

			rewardBytes, err := Encode(intent.Reward, vm)
			require.NoError(t, err)
			reward, err := DecodeReward(rewardBytes, vm)
			require.NoError(t, err)
			assertSameJSON(t, intent.Reward, reward)
		})
	}
}

func TestSVMRoundTripKeepsFullAddresses(t *testing.T) {
	mint, err := address.ParseSolana("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	require.NoError(t, err)
	program, err := address.ParseSolana("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	require.NoError(t, err)

	route := models.Route{
		Salt:         common.HexToHash("0x01"),
		Deadline:     42,
		Portal:       program,
		NativeAmount: big.NewInt(0),
		Tokens:       []models.TokenAmount{{Token: mint, Amount: big.NewInt(1_000_000)}},
		Calls:        []models.Call{{Target: program, Data: []byte{1, 2, 3}, Value: big.NewInt(0)}},
	}
	encoded, err := Encode(route, chaintype.SVM)
	require.NoError(t, err)
	// salt + deadline + portal + native + (len + token + amount) + (len + target + len + data)
	assert.Len(t, encoded, 32+8+32+8+(4+32+8)+(4+32+4+3))

	decoded, err := DecodeRoute(encoded, chaintype.SVM)
	require.NoError(t, err)
	assert.Equal(t, mint, decoded.Tokens[0].Token)
	assert.Equal(t, program, decoded.Calls[0].Target)

	_, err = Encode(route, chaintype.EVM)
	assert.ErrorIs(t, err, address.ErrNotEVMCompatible)
}

func TestSVMEncodingErrors(t *testing.T) {
	intent := goldenIntent(t)

	withValue := intent.Route
	withValue.Calls = []models.Call{{Target: intent.Route.Portal, Value: big.NewInt(1)}}
	_, err := Encode(withValue, chaintype.SVM)
	assert.ErrorIs(t, err, ErrCallValueNotSupported)

	overflow := intent.Reward
	overflow.Tokens = []models.TokenAmount{{Token: intent.Reward.Creator, Amount: new(big.Int).Lsh(big.NewInt(1), 64)}}
	_, err = Encode(overflow, chaintype.SVM)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = DecodeReward([]byte{1, 2, 3}, chaintype.SVM)
	assert.Error(t, err)
}

func TestUnsupportedInputs(t *testing.T) {
	_, err := Encode(goldenIntent(t).Route, chaintype.VMType("MOVE"))
	assert.ErrorIs(t, err, ErrUnsupportedVM)

	_, err = Encode("route", chaintype.EVM)
	assert.Error(t, err)

	_, err = ComputeRouteHash(goldenIntent(t).Route, 0)
	assert.ErrorIs(t, err, chaintype.ErrUnknownChainType)

	_, err = DecodeRoute([]byte{0x01}, chaintype.EVM)
	assert.Error(t, err)
}

func publishedLog(t *testing.T, intent *models.Intent, hash common.Hash) types.Log {
	t.Helper()
	event := contracts.PortalParsedABI.Events["IntentPublished"]
	routeBytes, err := Encode(intent.Route, chaintype.EVM)
	require.NoError(t, err)
	reward, err := ToEvmReward(intent.Reward)
	require.NoError(t, err)

	data, err := event.Inputs.NonIndexed().Pack(
		intent.DestinationChainID,
		intent.Reward.Deadline,
		reward.NativeAmount,
		reward.Tokens,
		routeBytes,
	)
	require.NoError(t, err)

	return types.Log{
		Address: common.HexToAddress("0x90F0c8aCC1E083Bcb4F487f84FC349ae8d5e28D7"),
		Topics: []common.Hash{
			event.ID,
			hash,
			common.BytesToHash(reward.Creator.Bytes()),
			common.BytesToHash(reward.Prover.Bytes()),
		},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xabc"),
		Index:       3,
	}
}

func TestDecodeIntentPublished(t *testing.T) {
	expected := goldenIntent(t)
	log := publishedLog(t, expected, common.HexToHash(goldenIntentHash))

	intent, err := DecodeIntentPublished(log, 10)
	require.NoError(t, err)
	assert.Equal(t, goldenIntentHash, intent.Hash.Hex())
	assert.Equal(t, uint64(8453), intent.DestinationChainID)
	assert.Equal(t, uint(3), intent.LogIndex)
	assert.Equal(t, expected.Reward.Creator, intent.Reward.Creator)
	assertSameJSON(t, expected.Route, intent.Route)

	raw := RawEventFromLog(10, log)
	replayed, err := DecodeIntentPublished(LogFromRawEvent(raw), 10)
	require.NoError(t, err)
	assert.Equal(t, intent.Hash, replayed.Hash)
}

func TestDecodeIntentPublishedRejectsWrongHash(t *testing.T) {
	log := publishedLog(t, goldenIntent(t), common.HexToHash("0x1234"))
	_, err := DecodeIntentPublished(log, 10)
	assert.ErrorIs(t, err, ErrIntentHashMismatch)
}
