package portal

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/models"
)

// IntentHashes groups the three hashes that identify an intent
type IntentHashes struct {
	IntentHash common.Hash
	RouteHash  common.Hash
	RewardHash common.Hash
}

// ComputeRouteHash hashes a route with the codec of its destination chain
func ComputeRouteHash(route models.Route, destination uint64) (common.Hash, error) {
	vm, err := chaintype.Detect(destination)
	if err != nil {
		return common.Hash{}, err
	}
	encoded, err := Encode(route, vm)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// ComputeRewardHash hashes a reward with the codec of its source chain
func ComputeRewardHash(reward models.Reward, source uint64) (common.Hash, error) {
	vm, err := chaintype.Detect(source)
	if err != nil {
		return common.Hash{}, err
	}
	encoded, err := Encode(reward, vm)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// GetIntentHash computes the route, reward and intent hashes of an intent
func GetIntentHash(intent *models.Intent) (IntentHashes, error) {
	routeHash, err := ComputeRouteHash(intent.Route, intent.DestinationChainID)
	if err != nil {
		return IntentHashes{}, fmt.Errorf("route hash: %w", err)
	}
	rewardHash, err := ComputeRewardHash(intent.Reward, intent.SourceChainID)
	if err != nil {
		return IntentHashes{}, fmt.Errorf("reward hash: %w", err)
	}
	return GetIntentHashFromParts(intent.DestinationChainID, routeHash, rewardHash), nil
}

// GetIntentHashFromParts computes keccak256(uint64 destination ++ routeHash ++ rewardHash)
func GetIntentHashFromParts(destination uint64, routeHash, rewardHash common.Hash) IntentHashes {
	packed := make([]byte, 0, 8+2*common.HashLength)
	packed = binary.BigEndian.AppendUint64(packed, destination)
	packed = append(packed, routeHash.Bytes()...)
	packed = append(packed, rewardHash.Bytes()...)
	return IntentHashes{
		IntentHash: crypto.Keccak256Hash(packed),
		RouteHash:  routeHash,
		RewardHash: rewardHash,
	}
}
