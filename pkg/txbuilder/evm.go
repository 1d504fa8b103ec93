package txbuilder

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/contracts"
	"github.com/speedrun-hq/portal-solver/pkg/models"
	"github.com/speedrun-hq/portal-solver/pkg/portal"
)

// FeeQuoter quotes the native fee of a prover message
type FeeQuoter interface {
	FetchProverFee(ctx context.Context, prover common.Address, source uint64, encodedProofs, data []byte) (*big.Int, error)
}

// EVMBuilder builds Kernel batches for EVM destinations
type EVMBuilder struct {
	// LocalProver is the hyperlane prover deployed on the destination chain
	LocalProver common.Address
	Fees        FeeQuoter
}

var _ Builder = (*EVMBuilder)(nil)

// NewEVMBuilder creates a builder for one EVM destination chain
func NewEVMBuilder(localProver common.Address, fees FeeQuoter) *EVMBuilder {
	return &EVMBuilder{LocalProver: localProver, Fees: fees}
}

func (b *EVMBuilder) Build(ctx context.Context, intent *models.Intent, plan Plan) (*ChainTransaction, error) {
	calls, err := buildPortalCalls(ctx, b.LocalProver, b.Fees, intent, plan)
	if err != nil {
		return nil, err
	}
	return &ChainTransaction{VM: chaintype.EVM, EVM: calls}, nil
}

// buildPortalCalls returns one funding call per ERC-20 transfer of the route
// followed by the portal fulfill call. Tron destinations share the layout.
func buildPortalCalls(ctx context.Context, localProver common.Address, fees FeeQuoter, intent *models.Intent, plan Plan) ([]contracts.Execution, error) {
	hashes, err := portal.GetIntentHash(intent)
	if err != nil {
		return nil, err
	}
	if intent.Hash != (common.Hash{}) && hashes.IntentHash != intent.Hash {
		return nil, fmt.Errorf("%w: event %s, computed %s", portal.ErrIntentHashMismatch, intent.Hash.Hex(), hashes.IntentHash.Hex())
	}

	route, err := portal.ToEvmRoute(intent.Route)
	if err != nil {
		return nil, err
	}

	calls := make([]contracts.Execution, 0, len(route.Calls)+1)
	for i, call := range route.Calls {
		if !contracts.IsTransfer(call.Data) {
			continue
		}
		_, amount, err := contracts.DecodeTransfer(call.Data)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}

		var data []byte
		switch plan.Path {
		case PathWallet:
			data, err = contracts.PackApprove(route.Portal, amount)
		case PathCrowdLiquidity:
			data, err = contracts.PackTransfer(route.Portal, amount)
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedPath, plan.Path)
		}
		if err != nil {
			return nil, err
		}
		calls = append(calls, contracts.Execution{Target: call.Target, Value: new(big.Int), CallData: data})
	}

	fulfill, err := fulfillCall(ctx, localProver, fees, intent, route, hashes, plan)
	if err != nil {
		return nil, err
	}
	return append(calls, fulfill), nil
}

// fulfillCall selects the portal entrypoint from the reward prover type. The
// native value of the route calls is forwarded with it.
func fulfillCall(ctx context.Context, localProver common.Address, fees FeeQuoter, intent *models.Intent, route contracts.PortalRoute, hashes portal.IntentHashes, plan Plan) (contracts.Execution, error) {
	claimant := common.Hash(plan.Claimant)
	value := intent.TotalCallValue()

	var (
		data []byte
		err  error
	)
	switch {
	case plan.Provers != nil && plan.Provers.IsStorageProver(intent.Reward.Prover):
		data, err = contracts.PackFulfillStorage(hashes.IntentHash, route, hashes.RewardHash, claimant)

	case plan.Provers != nil && plan.Provers.IsHyperlaneProver(intent.Reward.Prover):
		if plan.Mode == ModeBatch {
			data, err = contracts.PackFulfill(hashes.IntentHash, route, hashes.RewardHash, claimant)
			break
		}
		if localProver == (common.Address{}) {
			return contracts.Execution{}, ErrNoLocalProver
		}
		var messageData []byte
		messageData, err = contracts.EncodeHyperlaneData(common.Hash(intent.Reward.Prover))
		if err != nil {
			return contracts.Execution{}, err
		}
		proofs := contracts.EncodeProofs(intent.SourceChainID, hashes.IntentHash, claimant)
		var fee *big.Int
		fee, err = fees.FetchProverFee(ctx, localProver, intent.SourceChainID, proofs, messageData)
		if err != nil {
			return contracts.Execution{}, err
		}
		value.Add(value, fee)
		data, err = contracts.PackFulfillAndProve(hashes.IntentHash, route, hashes.RewardHash, claimant, localProver, intent.SourceChainID, messageData)

	default:
		return contracts.Execution{}, fmt.Errorf("%w: %s", ErrUnsupportedProver, intent.Reward.Prover.Hex())
	}
	if err != nil {
		return contracts.Execution{}, fmt.Errorf("failed to encode fulfill: %w", err)
	}
	return contracts.Execution{Target: route.Portal, Value: value, CallData: data}, nil
}
